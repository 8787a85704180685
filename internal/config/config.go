package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// OverwritePolicy controls what happens when the destination file already exists.
type OverwritePolicy string

const (
	// OverwriteAll always replaces the destination.
	OverwriteAll OverwritePolicy = "all"
	// OverwriteNever skips files whose destination already exists.
	OverwriteNever OverwritePolicy = "never"
	// OverwriteBigger replaces the destination only if the new output is smaller.
	OverwriteBigger OverwritePolicy = "bigger"
)

// OutputFormat is the requested output encoding.
type OutputFormat string

const (
	FormatOriginal OutputFormat = "original"
	FormatJPEG     OutputFormat = "jpeg"
	FormatPNG      OutputFormat = "png"
	FormatWebP     OutputFormat = "webp"
	FormatTIFF     OutputFormat = "tiff"
	FormatGIF      OutputFormat = "gif"
)

// Verbosity levels for the end-of-run recap.
const (
	VerbosityQuiet    = 0
	VerbosityProgress = 1
	VerbosityWarnings = 2
	VerbosityAll      = 3
)

// Config represents the main configuration structure
type Config struct {
	Quality           int             `mapstructure:"quality"`
	Lossless          bool            `mapstructure:"lossless"`
	MaxSize           int64           `mapstructure:"max_size"`
	Format            OutputFormat    `mapstructure:"format"`
	Suffix            string          `mapstructure:"suffix"`
	Recursive         bool            `mapstructure:"recursive"`
	KeepStructure     bool            `mapstructure:"keep_structure"`
	Overwrite         OverwritePolicy `mapstructure:"overwrite"`
	Output            string          `mapstructure:"output"`
	SameFolderAsInput bool            `mapstructure:"same_folder_as_input"`
	Resize            ResizeConfig    `mapstructure:"resize"`
	KeepDates         bool            `mapstructure:"keep_dates"`
	Exif              bool            `mapstructure:"exif"`
	PNG               PNGConfig       `mapstructure:"png"`
	DryRun            bool            `mapstructure:"dry_run"`
	Threads           int             `mapstructure:"threads"`
	OutputVerbosity   int             `mapstructure:"output_verbosity"`
	Logging           LoggingConfig   `mapstructure:"logging"`
}

// ResizeConfig contains the requested output geometry. Zero means unset.
type ResizeConfig struct {
	Width     int  `mapstructure:"width"`
	Height    int  `mapstructure:"height"`
	LongEdge  int  `mapstructure:"long_edge"`
	ShortEdge int  `mapstructure:"short_edge"`
	NoUpscale bool `mapstructure:"no_upscale"`
}

// PNGConfig contains PNG specific tuning
type PNGConfig struct {
	OptimizationLevel int  `mapstructure:"optimization_level"`
	Zopfli            bool `mapstructure:"zopfli"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Quality:         80,
		Format:          FormatOriginal,
		Overwrite:       OverwriteAll,
		PNG:             PNGConfig{OptimizationLevel: 3},
		OutputVerbosity: VerbosityProgress,
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// flagKeys maps command line flag names to their configuration keys.
var flagKeys = map[string]string{
	"quality":              "quality",
	"lossless":             "lossless",
	"max-size":             "max_size",
	"format":               "format",
	"suffix":               "suffix",
	"recursive":            "recursive",
	"keep-structure":       "keep_structure",
	"overwrite":            "overwrite",
	"output":               "output",
	"same-folder-as-input": "same_folder_as_input",
	"width":                "resize.width",
	"height":               "resize.height",
	"long-edge":            "resize.long_edge",
	"short-edge":           "resize.short_edge",
	"no-upscale":           "resize.no_upscale",
	"keep-dates":           "keep_dates",
	"exif":                 "exif",
	"png-opt-level":        "png.optimization_level",
	"zopfli":               "png.zopfli",
	"dry-run":              "dry_run",
	"threads":              "threads",
	"verbose-level":        "output_verbosity",
}

// LoadConfig loads configuration from file, environment variables and, when flags is
// non-nil, any explicitly set command line flags, then validates it.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	config, err := ReadConfig(configPath, flags)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// ReadConfig is LoadConfig without validation, for commands that only use part of
// the configuration.
func ReadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-compressor")
		v.AddConfigPath("/etc/photo-compressor")
	}

	v.SetEnvPrefix("PHOTO_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Normalize()
	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("quality", c.Quality)
	v.SetDefault("lossless", c.Lossless)
	v.SetDefault("max_size", c.MaxSize)
	v.SetDefault("format", string(c.Format))
	v.SetDefault("overwrite", string(c.Overwrite))
	v.SetDefault("png.optimization_level", c.PNG.OptimizationLevel)
	v.SetDefault("output_verbosity", c.OutputVerbosity)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Normalize lowercases enum values and expands the output folder.
func (c *Config) Normalize() {
	c.Format = OutputFormat(strings.ToLower(strings.TrimSpace(string(c.Format))))
	if c.Format == "" {
		c.Format = FormatOriginal
	}
	if c.Format == "jpg" {
		c.Format = FormatJPEG
	}
	c.Overwrite = OverwritePolicy(strings.ToLower(strings.TrimSpace(string(c.Overwrite))))
	if c.Overwrite == "" {
		c.Overwrite = OverwriteAll
	}
	if c.Output != "" {
		c.Output = expandPath(c.Output)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, but found %d", c.Quality)
	}
	if c.Lossless && c.MaxSize > 0 {
		return fmt.Errorf("lossless and max_size cannot be used together")
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("max_size must be positive, but found %d", c.MaxSize)
	}

	switch c.Format {
	case FormatOriginal, FormatJPEG, FormatPNG, FormatWebP, FormatTIFF, FormatGIF:
	default:
		return fmt.Errorf("invalid format: %s (valid: original, jpeg, png, webp, tiff, gif)", c.Format)
	}

	switch c.Overwrite {
	case OverwriteAll, OverwriteNever, OverwriteBigger:
	default:
		return fmt.Errorf("invalid overwrite policy: %s (valid: all, never, bigger)", c.Overwrite)
	}

	if c.Output == "" && !c.SameFolderAsInput {
		return fmt.Errorf("either output or same_folder_as_input is required")
	}
	if c.Output != "" && c.SameFolderAsInput {
		return fmt.Errorf("output and same_folder_as_input cannot be used together")
	}

	if err := c.Resize.validate(); err != nil {
		return err
	}

	if c.KeepStructure && !c.Recursive {
		return fmt.Errorf("keep_structure can be used only with recursive")
	}
	if c.PNG.OptimizationLevel < 0 || c.PNG.OptimizationLevel > 6 {
		return fmt.Errorf("png optimization level must be between 0 and 6, but found %d", c.PNG.OptimizationLevel)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, but found %d", c.Threads)
	}
	if c.OutputVerbosity < VerbosityQuiet || c.OutputVerbosity > VerbosityAll {
		return fmt.Errorf("verbosity must be between 0 and 3, but found %d", c.OutputVerbosity)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func (r ResizeConfig) validate() error {
	if r.Width < 0 || r.Height < 0 || r.LongEdge < 0 || r.ShortEdge < 0 {
		return fmt.Errorf("resize dimensions must not be negative")
	}
	if (r.Width > 0 || r.Height > 0) && (r.LongEdge > 0 || r.ShortEdge > 0) {
		return fmt.Errorf("width and height cannot be combined with long_edge or short_edge")
	}
	if r.LongEdge > 0 && r.ShortEdge > 0 {
		return fmt.Errorf("long_edge and short_edge cannot be used together")
	}
	return nil
}

// NeedsResize reports whether any target geometry was requested.
func (r ResizeConfig) NeedsResize() bool {
	return r.Width > 0 || r.Height > 0 || r.LongEdge > 0 || r.ShortEdge > 0
}

// GetOutputRoot returns the output folder for an input file.
func (c *Config) GetOutputRoot(inputPath string) string {
	if c.SameFolderAsInput {
		return filepath.Dir(inputPath)
	}
	return c.Output
}

// Helper functions

func expandPath(path string) string {
	expandedPath := os.ExpandEnv(path)
	if strings.HasPrefix(expandedPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expandedPath
		}
		expandedPath = filepath.Join(home, expandedPath[1:])
	}
	return expandedPath
}
