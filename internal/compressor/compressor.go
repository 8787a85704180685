package compressor

import (
	"context"
	"fmt"

	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/scanner"
)

// MaxInputSize is the largest input the compressor will load into memory.
const MaxInputSize int64 = 500 * 1024 * 1024

// Status is the terminal state of one file.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProgressFunc is called once per finished file. It is invoked from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(done, total int, result CompressionResult)

// CompressionParams defines the input of one batch.
type CompressionParams struct {
	Files    []scanner.InputFile
	BasePath string
	Config   *config.Config
	Progress ProgressFunc
}

// CompressionResult describes the result of compressing a single file.
type CompressionResult struct {
	OriginalPath   string `json:"original_path"`
	OutputPath     string `json:"output_path"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
	Status         Status `json:"status"`
	Message        string `json:"message,omitempty"`
}

// Compressor defines the interface for image compression.
type Compressor interface {
	// Compress processes every file in params. The returned slice is index-aligned
	// with params.Files; per-file failures are reported in the results, never as
	// the returned error.
	Compress(ctx context.Context, params CompressionParams) ([]CompressionResult, error)
}
