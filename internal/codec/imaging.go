package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ImagingCodec is the default Codec, built on disintegration/imaging.
// Pixels are never rotated: EXIF orientation only decides which raw axis a logical
// target dimension applies to. Metadata is not carried by the encoders.
// Animated GIFs keep every frame when the output is GIF; converting one to
// another format keeps its first frame.
type ImagingCodec struct{}

// NewImagingCodec returns an ImagingCodec.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

// Recompress implements Codec.
func (c *ImagingCodec) Recompress(data []byte, p Parameters) ([]byte, error) {
	if g, ok := animation(data); ok {
		return encodeAnimation(g, p, gifColors(p))
	}
	img, format, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	return c.encode(c.resize(img, p), format, p)
}

// Convert implements Codec.
func (c *ImagingCodec) Convert(data []byte, p Parameters, format Format) ([]byte, error) {
	if format == GIF {
		if g, ok := animation(data); ok {
			return encodeAnimation(g, p, gifColors(p))
		}
	}
	img, _, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	return c.encode(c.resize(img, p), format, p)
}

// CompressToSize implements Codec. JPEG searches quality up to the configured one and
// GIF searches palette size for the best output within maxBytes; other formats are
// encoded once.
func (c *ImagingCodec) CompressToSize(data []byte, p Parameters, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("invalid size budget %d", maxBytes)
	}
	noResize := p.Width == 0 && p.Height == 0
	if noResize && int64(len(data)) <= maxBytes {
		return append([]byte(nil), data...), nil
	}

	if g, ok := animation(data); ok {
		return searchLargest(2, 256, maxBytes, func(n int) ([]byte, error) {
			return encodeAnimation(g, p, n)
		})
	}

	img, format, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	img = c.resize(img, p)

	switch format {
	case JPEG:
		return searchLargest(1, jpegQuality(p), maxBytes, func(q int) ([]byte, error) {
			return encodeJPEG(img, q)
		})
	case GIF:
		return searchLargest(2, 256, maxBytes, func(n int) ([]byte, error) {
			return encodeGIF(img, n)
		})
	default:
		return c.encode(img, format, p)
	}
}

func (c *ImagingCodec) decode(data []byte) (image.Image, Format, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	format, ok := decodedFormats[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", name, err)
	}
	return img, format, nil
}

var decodedFormats = map[string]Format{
	"jpeg": JPEG,
	"png":  PNG,
	"gif":  GIF,
	"webp": WebP,
	"tiff": TIFF,
}

func (c *ImagingCodec) resize(img image.Image, p Parameters) image.Image {
	if p.Width == 0 && p.Height == 0 {
		return img
	}
	width, height := p.Width, p.Height
	if p.Orientation.SwapsAxes() {
		width, height = height, width
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

func (c *ImagingCodec) encode(img image.Image, format Format, p Parameters) ([]byte, error) {
	switch format {
	case JPEG:
		return encodeJPEG(img, jpegQuality(p))
	case PNG:
		return encodeWith(img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(p)))
	case GIF:
		return encodeGIF(img, gifColors(p))
	case TIFF:
		return encodeWith(img, imaging.TIFF)
	case WebP:
		return nil, fmt.Errorf("%w: webp encoding", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	return encodeWith(img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func encodeGIF(img image.Image, colors int) ([]byte, error) {
	return encodeWith(img, imaging.GIF, imaging.GIFNumColors(colors))
}

func encodeWith(img image.Image, format imaging.Format, opts ...imaging.EncodeOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func jpegQuality(p Parameters) int {
	if p.Lossless {
		return 100
	}
	return clamp(p.Quality, 1, 100)
}

func pngLevel(p Parameters) png.CompressionLevel {
	if p.Zopfli {
		return png.BestCompression
	}
	switch {
	case p.PNGOptimizationLevel <= 0:
		return png.NoCompression
	case p.PNGOptimizationLevel <= 2:
		return png.BestSpeed
	case p.PNGOptimizationLevel <= 5:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func gifColors(p Parameters) int {
	if p.Lossless {
		return 256
	}
	return clamp(p.Quality*256/100, 2, 256)
}

// searchLargest binary-searches knob in [lo, hi] for the largest setting whose output
// fits in maxBytes. When nothing fits it returns the smallest output it produced.
func searchLargest(lo, hi int, maxBytes int64, encode func(knob int) ([]byte, error)) ([]byte, error) {
	var best, smallest []byte
	for lo <= hi {
		mid := (lo + hi) / 2
		out, err := encode(mid)
		if err != nil {
			return nil, err
		}
		if int64(len(out)) <= maxBytes {
			best = out
			lo = mid + 1
			continue
		}
		if smallest == nil || len(out) < len(smallest) {
			smallest = out
		}
		hi = mid - 1
	}
	if best != nil {
		return best, nil
	}
	return smallest, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
