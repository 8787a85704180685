// Package resize turns requested output geometry into concrete target dimensions
// for the codec.
package resize

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
)

const mimeJPEG = "image/jpeg"

// Prober reads pixel dimensions without decoding the whole image.
type Prober interface {
	Dimensions(path string) (width, height int, err error)
}

// HeaderProber reads dimensions from the image header.
type HeaderProber struct{}

// Dimensions implements Prober.
func (HeaderProber) Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Target is the geometry handed to the codec. Zero means "keep aspect ratio".
// Orientation is the EXIF orientation the logical dimensions were computed under.
type Target struct {
	Width       int
	Height      int
	Orientation extractor.Orientation
}

// IsZero reports whether no resize is requested.
func (t Target) IsZero() bool {
	return t.Width == 0 && t.Height == 0
}

// Deriver computes resize targets.
type Deriver struct {
	prober      Prober
	orientation extractor.OrientationExtractor
}

// NewDeriver returns a Deriver.
func NewDeriver(prober Prober, orientation extractor.OrientationExtractor) *Deriver {
	return &Deriver{prober: prober, orientation: orientation}
}

// Derive maps the requested geometry onto the file's true dimensions. The EXIF
// orientation is only honored for JPEG files when metadata is kept.
func (d *Deriver) Derive(req config.ResizeConfig, path, mime string, keepMetadata bool) (Target, error) {
	width, height, err := d.prober.Dimensions(path)
	if err != nil {
		return Target{}, err
	}

	orientation := extractor.OrientationNormal
	if mime == mimeJPEG && keepMetadata {
		orientation = d.orientation.ExtractOrientation(path)
	}
	if orientation.SwapsAxes() {
		width, height = height, width
	}

	t := Compute(req, width, height)
	t.Orientation = orientation
	return t, nil
}

// Compute applies the first matching rule (width, height, long edge, short edge) to
// a width×height source, then the no-upscale guard.
func Compute(req config.ResizeConfig, width, height int) Target {
	var t Target
	switch {
	case req.Width > 0:
		t.Width = req.Width
	case req.Height > 0:
		t.Height = req.Height
	case req.LongEdge > 0:
		if width >= height {
			t.Width = req.LongEdge
		} else {
			t.Height = req.LongEdge
		}
	case req.ShortEdge > 0:
		if width < height {
			t.Width = req.ShortEdge
		} else {
			t.Height = req.ShortEdge
		}
	}

	if req.NoUpscale && ((t.Width > 0 && t.Width >= width) || (t.Height > 0 && t.Height >= height)) {
		return Target{}
	}
	return t
}
