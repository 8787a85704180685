package statistics

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/extractor"
)

// Statistics folds per-file compression results into batch totals. Record is safe
// for concurrent use so it can be fed from a progress hook.
type Statistics struct {
	mutex sync.RWMutex

	TotalFiles      int64
	FilesCompressed int64
	FilesSkipped    int64
	FilesWithErrors int64

	OriginalBytes   int64
	CompressedBytes int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	CacheHits    int64
	CacheMisses  int64
	CacheHitRate float64

	FileTypeStats map[string]int64
	Errors        []StatError
}

// StatError represents a file that ended in error.
type StatError struct {
	FilePath string
	Error    string
}

// Summary is a point-in-time copy of the totals.
type Summary struct {
	TotalFiles      int64         `json:"total_files"`
	FilesCompressed int64         `json:"files_compressed"`
	FilesSkipped    int64         `json:"files_skipped"`
	FilesWithErrors int64         `json:"files_with_errors"`
	OriginalBytes   int64         `json:"original_bytes"`
	CompressedBytes int64         `json:"compressed_bytes"`
	SavedBytes      int64         `json:"saved_bytes"`
	SavedPercent    float64       `json:"saved_percent"`
	Duration        time.Duration `json:"duration"`
	FilesPerSecond  float64       `json:"files_per_second"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// FromResults aggregates a finished batch.
func FromResults(results []compressor.CompressionResult) *Statistics {
	s := NewStatistics()
	for _, r := range results {
		s.Record(r)
	}
	s.Finalize()
	return s
}

// Record adds one result.
func (s *Statistics) Record(r compressor.CompressionResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.TotalFiles++
	s.OriginalBytes += r.OriginalSize
	s.CompressedBytes += r.CompressedSize

	switch r.Status {
	case compressor.StatusSuccess:
		s.FilesCompressed++
		s.FileTypeStats[fileType(r)]++
	case compressor.StatusSkipped:
		s.FilesSkipped++
	default:
		s.FilesWithErrors++
		s.Errors = append(s.Errors, StatError{FilePath: r.OriginalPath, Error: r.Message})
	}
}

func fileType(r compressor.CompressionResult) string {
	path := r.OutputPath
	if path == "" {
		path = r.OriginalPath
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "none"
	}
	return ext
}

// SetCacheStats records the orientation cache usage of the batch.
func (s *Statistics) SetCacheStats(stats extractor.CacheStats) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.CacheHits = stats.Hits
	s.CacheMisses = stats.Misses
	s.CacheHitRate = stats.HitRate
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(s.TotalFiles) / s.Duration.Seconds()
	}
}

// Snapshot returns the current totals.
func (s *Statistics) Snapshot() Summary {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return Summary{
		TotalFiles:      s.TotalFiles,
		FilesCompressed: s.FilesCompressed,
		FilesSkipped:    s.FilesSkipped,
		FilesWithErrors: s.FilesWithErrors,
		OriginalBytes:   s.OriginalBytes,
		CompressedBytes: s.CompressedBytes,
		SavedBytes:      s.OriginalBytes - s.CompressedBytes,
		SavedPercent:    savedPercent(s.OriginalBytes, s.CompressedBytes),
		Duration:        s.Duration,
		FilesPerSecond:  s.FilesPerSecond,
	}
}

// HasErrors reports whether any file ended in error.
func (s *Statistics) HasErrors() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.FilesWithErrors > 0
}

func savedPercent(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-compressed) * 100 / float64(original)
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	sum := s.Snapshot()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return fmt.Sprintf(`Compression Summary:

Files:
		Total: %d
		Compressed: %d
		Skipped: %d
		Errors: %d

Size:
		Original: %s
		Compressed: %s
		Saved: %s (%.1f%%)

Performance:
		Duration: %v
		Files/Second: %.2f

Orientation Cache:
		Hits: %d
		Misses: %d
		Hit Rate: %.2f%%`,
		sum.TotalFiles,
		sum.FilesCompressed,
		sum.FilesSkipped,
		sum.FilesWithErrors,
		FormatBytes(sum.OriginalBytes),
		FormatBytes(sum.CompressedBytes),
		FormatBytes(sum.SavedBytes),
		sum.SavedPercent,
		sum.Duration.Round(time.Millisecond),
		sum.FilesPerSecond,
		s.CacheHits,
		s.CacheMisses,
		s.CacheHitRate*100)
}

// GetFileTypeBreakdown returns a formatted breakdown of compressed output types.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for t := range s.FileTypeStats {
		types = append(types, t)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, t := range types {
		result += fmt.Sprintf("  %s: %d\n", t, s.FileTypeStats[t])
	}
	return result
}

// GetErrorSummary returns a summary of the files that failed.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  %s - %s\n", err.FilePath, err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count. Negative counts
// (outputs that grew) keep their sign.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
