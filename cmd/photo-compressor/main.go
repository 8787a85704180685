package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-compressor-go/internal/batch"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/report"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	port    int
	version = "dev"
)

// errFilesFailed makes the process exit non-zero when any file ended in error.
var errFilesFailed = errors.New("one or more files could not be compressed")

// rootCmd compresses the given files and directories.
var rootCmd = &cobra.Command{
	Use:   "photo-compressor [files or directories...]",
	Short: "Batch compress and convert images",
	Long: `photo-compressor compresses, resizes and converts JPEG, PNG, WebP and GIF
images found in the given files and directories.

Features:
- Content-based detection of supported images
- Optional recursion with the input folder structure kept in the output
- Resize by width, height, long edge or short edge, EXIF orientation aware
- Overwrite policies: all, never, bigger
- Staged writes: an existing output is only replaced by a complete file
- Dry-run mode for safe testing`,
	Version:       version,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// scanCmd lists what a compression run would pick up.
var scanCmd = &cobra.Command{
	Use:   "scan [files or directories...]",
	Short: "List the images a run would process, without compressing",
	Long: `Scan the given paths with the same rules as a compression run and print the
inferred base path and the supported images that were found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with websocket progress",
	Long: `Starts an HTTP server that runs compression batches on request.

Endpoints:
- GET  /api/status       current batch state and statistics
- POST /api/compress     start a batch
- POST /api/stop         cancel the running batch
- GET  /api/results      results of the last batch
- GET  /api/directories  browse the filesystem
- GET  /ws               progress events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	pf.BoolVar(&verbose, "verbose", false, "enable debug logging")
	pf.BoolVarP(&quiet, "quiet", "Q", false, "only log errors")

	pf.IntP("quality", "q", 80, "compression quality (0-100)")
	pf.Bool("lossless", false, "lossless compression")
	pf.Int64("max-size", 0, "maximum output size in bytes")
	pf.StringP("format", "f", "original", "output format: original, jpeg, png, webp, tiff, gif")
	pf.String("suffix", "", "suffix appended to output file names")
	pf.BoolP("recursive", "R", false, "descend into subdirectories")
	pf.BoolP("keep-structure", "S", false, "keep the folder structure of the inputs (requires --recursive)")
	pf.StringP("overwrite", "O", "all", "overwrite policy: all, never, bigger")
	pf.StringP("output", "o", "", "output folder")
	pf.Bool("same-folder-as-input", false, "write outputs next to their inputs")
	pf.Int("width", 0, "resize to this width")
	pf.Int("height", 0, "resize to this height")
	pf.Int("long-edge", 0, "resize so the long edge has this size")
	pf.Int("short-edge", 0, "resize so the short edge has this size")
	pf.Bool("no-upscale", false, "never enlarge images")
	pf.Bool("keep-dates", false, "keep modification and access times")
	pf.BoolP("exif", "e", false, "keep EXIF metadata (JPEG output)")
	pf.Int("png-opt-level", 3, "PNG optimization level (0-6)")
	pf.Bool("zopfli", false, "use the strongest PNG compression")
	pf.BoolP("dry-run", "d", false, "report what would be done without writing")
	pf.Int("threads", 0, "worker threads (0 uses every CPU)")
	pf.Int("verbose-level", 1, "recap verbosity: 0 quiet, 1 summary, 2 warnings, 3 all")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the web server on")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes one batch and prints the recap.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, closeRunner := batch.NewDefaultRunner(cfg, log, batch.Hooks{})
	defer func() {
		if err := closeRunner(); err != nil {
			log.WithError(err).Warn("Failed to stop exiftool")
		}
	}()

	outcome, err := runner.Run(ctx, args)
	if err != nil {
		return err
	}

	report.NewPrinter(os.Stdout, cfg.OutputVerbosity, report.UseColors()).Recap(outcome.Results, outcome.Stats)
	if verbose {
		fmt.Fprintln(os.Stderr, outcome.Stats.GetSummary())
	}

	if outcome.Stats.HasErrors() {
		return errFilesFailed
	}
	return nil
}

// runScan prints what discovery finds.
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.ReadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	discovery := scanner.NewScanner(log).Scan(args, cfg.Recursive)

	report.NewPrinter(os.Stdout, max(cfg.OutputVerbosity, config.VerbosityProgress), report.UseColors()).Discovery(discovery)
	if len(discovery.Files) == 0 {
		return batch.ErrNoInputFiles
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.ReadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	fmt.Printf("photo-compressor API listening on http://localhost:%d (Ctrl+C to stop)\n", port)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped gracefully")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
