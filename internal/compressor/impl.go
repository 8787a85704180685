package compressor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"photo-compressor-go/internal/codec"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/metadata"
	"photo-compressor-go/internal/outputpath"
	"photo-compressor-go/internal/resize"
	"photo-compressor-go/internal/scanner"
)

// Deriver computes resize targets for one file.
type Deriver interface {
	Derive(req config.ResizeConfig, path, mime string, keepMetadata bool) (resize.Target, error)
}

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	codec    codec.Codec
	deriver  Deriver
	metadata metadata.Copier
	logger   *logrus.Logger
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(c codec.Codec, deriver Deriver, copier metadata.Copier, logger *logrus.Logger) *DefaultCompressor {
	if copier == nil {
		copier = metadata.NopCopier{}
	}
	return &DefaultCompressor{
		codec:    c,
		deriver:  deriver,
		metadata: copier,
		logger:   logger,
	}
}

// Workers returns the pool size for a threads setting: 0 means one per CPU, and
// the CPU count is never exceeded.
func Workers(threads int) int {
	n := runtime.NumCPU()
	if threads > 0 && threads < n {
		n = threads
	}
	return max(n, 1)
}

// Compress runs every file through the pipeline on a fixed worker pool. Files not
// started when ctx is cancelled are reported as skipped.
func (c *DefaultCompressor) Compress(ctx context.Context, params CompressionParams) ([]CompressionResult, error) {
	if params.Config == nil {
		return nil, errors.New("compress: missing configuration")
	}
	total := len(params.Files)
	if total == 0 {
		return nil, nil
	}

	op := codec.OperationFor(params.Config)
	numWorkers := min(Workers(params.Config.Threads), total)

	logger.WithOperation(c.logger, "compress").WithFields(logrus.Fields{
		"files":     total,
		"workers":   numWorkers,
		"operation": op.String(),
		"dry_run":   params.Config.DryRun,
	}).Info("Starting batch")

	type job struct {
		index int
		file  scanner.InputFile
	}
	type result struct {
		index int
		res   CompressionResult
	}

	jobs := make(chan job, total)
	results := make(chan result, total)
	var done atomic.Int64

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				var r CompressionResult
				if ctx.Err() != nil {
					r = skipped(j.file, j.file.Size, "batch cancelled")
				} else {
					r = c.compressOne(j.file, params.BasePath, params.Config, op)
				}
				c.logResult(r)
				n := done.Add(1)
				if params.Progress != nil {
					params.Progress(int(n), total, r)
				}
				results <- result{index: j.index, res: r}
			}
		}()
	}

	for i, f := range params.Files {
		jobs <- job{index: i, file: f}
	}
	close(jobs)

	wg.Wait()
	close(results)

	resArr := make([]CompressionResult, total)
	for r := range results {
		resArr[r.index] = r.res
	}
	return resArr, nil
}

// compressOne takes one file from stat to a terminal state.
func (c *DefaultCompressor) compressOne(f scanner.InputFile, basePath string, cfg *config.Config, op codec.Operation) CompressionResult {
	info, err := os.Stat(f.Path)
	if err != nil {
		return failed(f, f.Size, "", fmt.Errorf("stat input: %w", err))
	}
	size := info.Size()
	if size > MaxInputSize {
		return skipped(f, size, "exceeds size limit")
	}

	dest, err := outputpath.Resolve(outputpath.Request{
		OutputRoot:    cfg.GetOutputRoot(f.Path),
		InputPath:     f.Path,
		BasePath:      basePath,
		KeepStructure: cfg.KeepStructure,
		Suffix:        cfg.Suffix,
		Format:        cfg.Format,
	})
	if err != nil {
		return failed(f, size, "", fmt.Errorf("resolve output path: %w", err))
	}
	outPath := dest.Path()

	if cfg.Overwrite == config.OverwriteNever && exists(outPath) {
		r := skipped(f, size, "destination already exists")
		r.OutputPath = outPath
		return r
	}

	if cfg.DryRun {
		return CompressionResult{
			OriginalPath:   f.Path,
			OutputPath:     outPath,
			OriginalSize:   size,
			CompressedSize: size,
			Status:         StatusSuccess,
			Message:        "dry run",
		}
	}

	params := codec.NewParameters(cfg)
	if cfg.Resize.NeedsResize() {
		target, err := c.deriver.Derive(cfg.Resize, f.Path, f.MIME, cfg.Exif)
		if err != nil {
			return failed(f, size, outPath, fmt.Errorf("read dimensions: %w", err))
		}
		params.Width, params.Height, params.Orientation = target.Width, target.Height, target.Orientation
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return failed(f, size, outPath, fmt.Errorf("read input: %w", err))
	}
	out, err := op.Apply(c.codec, data, params)
	if err != nil {
		return failed(f, size, outPath, fmt.Errorf("compress: %w", err))
	}

	if err := outputpath.EnsureDir(dest.Dir); err != nil {
		return failed(f, size, outPath, fmt.Errorf("create output directory: %w", err))
	}

	keepMetadata := params.KeepMetadata && producesJPEG(op, f.MIME)
	p, err := c.persist(f, dest, out, cfg, keepMetadata)
	if err != nil {
		return failed(f, size, outPath, err)
	}
	if p.lostToExisting {
		r := skipped(f, size, fmt.Sprintf("existing file is not bigger (%d bytes)", p.existingSize))
		r.OutputPath = outPath
		return r
	}

	return CompressionResult{
		OriginalPath:   f.Path,
		OutputPath:     outPath,
		OriginalSize:   size,
		CompressedSize: p.size,
		Status:         StatusSuccess,
		Message:        p.warning,
	}
}

func producesJPEG(op codec.Operation, inputMIME string) bool {
	if op.Kind == codec.OpConvert {
		return op.Format == codec.JPEG
	}
	return inputMIME == scanner.MIMEJPEG
}

func (c *DefaultCompressor) logResult(r CompressionResult) {
	entry := logger.WithFileOperation(c.logger, r.OriginalPath, "compress").WithFields(logrus.Fields{
		"output":          r.OutputPath,
		"original_size":   r.OriginalSize,
		"compressed_size": r.CompressedSize,
	})
	switch r.Status {
	case StatusSuccess:
		entry.Debug("File compressed")
	case StatusSkipped:
		entry.WithField("reason", r.Message).Info("File skipped")
	default:
		entry.WithField("error", r.Message).Warn("File failed")
	}
}

func skipped(f scanner.InputFile, size int64, msg string) CompressionResult {
	return CompressionResult{
		OriginalPath:   f.Path,
		OriginalSize:   size,
		CompressedSize: size,
		Status:         StatusSkipped,
		Message:        msg,
	}
}

func failed(f scanner.InputFile, size int64, outPath string, err error) CompressionResult {
	return CompressionResult{
		OriginalPath:   f.Path,
		OutputPath:     outPath,
		OriginalSize:   size,
		CompressedSize: size,
		Status:         StatusError,
		Message:        err.Error(),
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
