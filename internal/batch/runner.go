// Package batch runs one compression batch end to end: discovery, dispatch and
// aggregation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"
)

// ErrNoInputFiles is returned when the arguments contain no supported image.
var ErrNoInputFiles = errors.New("no supported images found in the given paths")

// LogHookFunc receives user-facing progress messages, e.g. for a websocket.
type LogHookFunc func(level, message string)

// Scanner discovers input files.
type Scanner interface {
	Scan(args []string, recursive bool) scanner.Discovery
}

// Hooks are optional observers of a run.
type Hooks struct {
	Log      LogHookFunc
	Progress compressor.ProgressFunc
}

// Outcome is everything a finished run produced.
type Outcome struct {
	Discovery scanner.Discovery
	Results   []compressor.CompressionResult
	Stats     *statistics.Statistics
}

// Runner ties the scanner, the compressor and the aggregator together.
type Runner struct {
	config      *config.Config
	logger      *logrus.Logger
	scanner     Scanner
	compressor  compressor.Compressor
	orientation extractor.CachedOrientationExtractor
	hooks       Hooks
}

// NewRunner returns a Runner without hooks.
func NewRunner(cfg *config.Config, logger *logrus.Logger, sc Scanner, comp compressor.Compressor) *Runner {
	return NewRunnerWithHooks(cfg, logger, sc, comp, nil, Hooks{})
}

// NewRunnerWithHooks returns a Runner that reports to hooks. orientation may be nil;
// when set its cache statistics are added to the run statistics.
func NewRunnerWithHooks(
	cfg *config.Config,
	logger *logrus.Logger,
	sc Scanner,
	comp compressor.Compressor,
	orientation extractor.CachedOrientationExtractor,
	hooks Hooks,
) *Runner {
	return &Runner{
		config:      cfg,
		logger:      logger,
		scanner:     sc,
		compressor:  comp,
		orientation: orientation,
		hooks:       hooks,
	}
}

// Scan runs discovery only.
func (r *Runner) Scan(args []string) scanner.Discovery {
	return r.scanner.Scan(args, r.config.Recursive)
}

// Run compresses every supported image reachable from args.
func (r *Runner) Run(ctx context.Context, args []string) (*Outcome, error) {
	r.logger.Info("Starting compression run")
	start := time.Now()

	discovery := r.Scan(args)
	if len(discovery.Files) == 0 {
		return nil, ErrNoInputFiles
	}
	r.logger.WithFields(logrus.Fields{
		"files":     len(discovery.Files),
		"base_path": discovery.BasePath,
	}).Info("Discovered images")
	r.emit("info", fmt.Sprintf("Found %d images", len(discovery.Files)))
	if r.config.DryRun {
		r.emit("info", "Running in dry-run mode - no files will be written")
	}

	stats := statistics.NewStatistics()
	stats.StartTime = start

	results, err := r.compressor.Compress(ctx, compressor.CompressionParams{
		Files:    discovery.Files,
		BasePath: discovery.BasePath,
		Config:   r.config,
		Progress: func(done, total int, res compressor.CompressionResult) {
			stats.Record(res)
			r.report(res)
			if r.hooks.Progress != nil {
				r.hooks.Progress(done, total, res)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	if r.orientation != nil {
		stats.SetCacheStats(r.orientation.GetCacheStats())
	}
	stats.Finalize()

	sum := stats.Snapshot()
	r.logger.WithFields(logrus.Fields{
		"compressed":  sum.FilesCompressed,
		"skipped":     sum.FilesSkipped,
		"errors":      sum.FilesWithErrors,
		"saved_bytes": sum.SavedBytes,
		"duration":    sum.Duration.String(),
	}).Info("Compression run completed")

	return &Outcome{Discovery: discovery, Results: results, Stats: stats}, nil
}

func (r *Runner) report(res compressor.CompressionResult) {
	switch res.Status {
	case compressor.StatusSuccess:
		if r.config.DryRun {
			r.emit("info", fmt.Sprintf("DRY-RUN: Would compress %s -> %s", res.OriginalPath, res.OutputPath))
			return
		}
		r.emit("info", fmt.Sprintf("Compressed %s -> %s (%s -> %s)", res.OriginalPath, res.OutputPath,
			statistics.FormatBytes(res.OriginalSize), statistics.FormatBytes(res.CompressedSize)))
	case compressor.StatusSkipped:
		r.emit("warn", fmt.Sprintf("Skipped %s: %s", res.OriginalPath, res.Message))
	default:
		r.emit("error", fmt.Sprintf("Failed %s: %s", res.OriginalPath, res.Message))
	}
}

func (r *Runner) emit(level, message string) {
	if r.hooks.Log != nil {
		r.hooks.Log(level, message)
	}
}
