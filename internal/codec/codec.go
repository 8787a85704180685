// Package codec defines the image compression engine consumed by the dispatcher and
// the small closed set of operations a file can go through.
package codec

import (
	"errors"
	"fmt"

	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
)

// ErrUnsupportedFormat is returned for formats the codec cannot decode or encode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is an encodable image format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
	TIFF Format = "tiff"
	GIF  Format = "gif"
)

// FormatFor maps a configured output format to a codec format. It returns false for
// config.FormatOriginal.
func FormatFor(f config.OutputFormat) (Format, bool) {
	switch f {
	case config.FormatJPEG:
		return JPEG, true
	case config.FormatPNG:
		return PNG, true
	case config.FormatWebP:
		return WebP, true
	case config.FormatTIFF:
		return TIFF, true
	case config.FormatGIF:
		return GIF, true
	default:
		return "", false
	}
}

// Parameters tune a single codec call.
type Parameters struct {
	Quality      int // 0..100
	Lossless     bool
	KeepMetadata bool

	// Target size in logical (display) pixels; zero keeps the aspect ratio.
	Width       int
	Height      int
	Orientation extractor.Orientation

	PNGOptimizationLevel int // 0..6
	Zopfli               bool
}

// NewParameters builds codec parameters from the configuration.
func NewParameters(cfg *config.Config) Parameters {
	return Parameters{
		Quality:              cfg.Quality,
		Lossless:             cfg.Lossless,
		KeepMetadata:         cfg.Exif,
		Orientation:          extractor.OrientationNormal,
		PNGOptimizationLevel: cfg.PNG.OptimizationLevel,
		Zopfli:               cfg.PNG.Zopfli,
	}
}

// Codec compresses and converts encoded images in memory.
type Codec interface {
	// Recompress re-encodes data in its own format.
	Recompress(data []byte, p Parameters) ([]byte, error)
	// Convert re-encodes data as format.
	Convert(data []byte, p Parameters, format Format) ([]byte, error)
	// CompressToSize re-encodes data so that it fits in maxBytes when possible,
	// returning the smallest candidate otherwise.
	CompressToSize(data []byte, p Parameters, maxBytes int64) ([]byte, error)
}

// OpKind enumerates codec operations.
type OpKind int

const (
	OpRecompress OpKind = iota
	OpConvert
	OpCompressToSize
)

func (k OpKind) String() string {
	switch k {
	case OpRecompress:
		return "recompress"
	case OpConvert:
		return "convert"
	case OpCompressToSize:
		return "compress-to-size"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Operation is the codec work selected for a file. Convert with a MaxBytes budget runs
// a size-budget pass on the converted output.
type Operation struct {
	Kind     OpKind
	Format   Format
	MaxBytes int64
}

// OperationFor selects the operation for a validated configuration.
func OperationFor(cfg *config.Config) Operation {
	if format, ok := FormatFor(cfg.Format); ok {
		return Operation{Kind: OpConvert, Format: format, MaxBytes: cfg.MaxSize}
	}
	if cfg.MaxSize > 0 {
		return Operation{Kind: OpCompressToSize, MaxBytes: cfg.MaxSize}
	}
	return Operation{Kind: OpRecompress}
}

func (op Operation) String() string {
	switch {
	case op.Kind == OpConvert && op.MaxBytes > 0:
		return fmt.Sprintf("convert to %s within %d bytes", op.Format, op.MaxBytes)
	case op.Kind == OpConvert:
		return fmt.Sprintf("convert to %s", op.Format)
	case op.Kind == OpCompressToSize:
		return fmt.Sprintf("compress within %d bytes", op.MaxBytes)
	default:
		return op.Kind.String()
	}
}

// Apply runs the operation on c.
func (op Operation) Apply(c Codec, data []byte, p Parameters) ([]byte, error) {
	switch op.Kind {
	case OpRecompress:
		return c.Recompress(data, p)
	case OpCompressToSize:
		return c.CompressToSize(data, p, op.MaxBytes)
	case OpConvert:
		out, err := c.Convert(data, p, op.Format)
		if err != nil || op.MaxBytes <= 0 {
			return out, err
		}
		// Geometry was applied by the conversion.
		second := p
		second.Width, second.Height = 0, 0
		second.Orientation = extractor.OrientationNormal
		return c.CompressToSize(out, second, op.MaxBytes)
	default:
		return nil, fmt.Errorf("unknown codec operation %s", op.Kind)
	}
}
