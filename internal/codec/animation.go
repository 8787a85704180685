package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"

	"github.com/disintegration/imaging"
)

// animation returns the frames of data when it is a GIF with more than one frame.
func animation(data []byte) (*gif.GIF, bool) {
	if _, name, err := image.DecodeConfig(bytes.NewReader(data)); err != nil || name != "gif" {
		return nil, false
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil || len(g.Image) < 2 {
		return nil, false
	}
	return g, true
}

// encodeAnimation re-encodes every frame of g with at most colors palette entries,
// scaling frames when p asks for a resize. Timing, disposal and looping are kept.
func encodeAnimation(g *gif.GIF, p Parameters, colors int) ([]byte, error) {
	canvas := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if canvas.Empty() {
		return nil, fmt.Errorf("%w: gif with empty canvas", ErrUnsupportedFormat)
	}
	target := animationCanvas(canvas, p)
	scaled := target != canvas

	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(g.Image)),
		Delay:     g.Delay,
		Disposal:  g.Disposal,
		LoopCount: g.LoopCount,
		Config:    image.Config{Width: target.Dx(), Height: target.Dy()},
	}
	for _, frame := range g.Image {
		switch {
		case scaled:
			r := scaleRect(frame.Bounds(), canvas, target)
			resized := imaging.Resize(frame, r.Dx(), r.Dy(), imaging.Lanczos)
			out.Image = append(out.Image, quantizeFrame(resized, r, colors, hasTransparency(frame.Palette)))
		case len(frame.Palette) > colors:
			out.Image = append(out.Image, quantizeFrame(frame, frame.Bounds(), colors, hasTransparency(frame.Palette)))
		default:
			out.Image = append(out.Image, frame)
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, fmt.Errorf("encode gif animation: %w", err)
	}
	return buf.Bytes(), nil
}

// animationCanvas applies the resize target of p to canvas. A zero side keeps the
// aspect ratio, as imaging.Resize does for stills.
func animationCanvas(canvas image.Rectangle, p Parameters) image.Rectangle {
	width, height := p.Width, p.Height
	if p.Orientation.SwapsAxes() {
		width, height = height, width
	}
	switch {
	case width == 0 && height == 0:
		return canvas
	case width == 0:
		width = max(1, (canvas.Dx()*height+canvas.Dy()/2)/canvas.Dy())
	case height == 0:
		height = max(1, (canvas.Dy()*width+canvas.Dx()/2)/canvas.Dx())
	}
	return image.Rect(0, 0, width, height)
}

// scaleRect maps r, a frame inside from, onto to. Edges are scaled independently so
// frames sharing an edge still share it; a frame never collapses below one pixel.
func scaleRect(r, from, to image.Rectangle) image.Rectangle {
	sx := func(x int) int { return x * to.Dx() / from.Dx() }
	sy := func(y int) int { return y * to.Dy() / from.Dy() }
	out := image.Rect(sx(r.Min.X), sy(r.Min.Y), sx(r.Max.X), sy(r.Max.Y))
	if out.Dx() == 0 {
		if out.Max.X < to.Max.X {
			out.Max.X++
		} else {
			out.Min.X--
		}
	}
	if out.Dy() == 0 {
		if out.Max.Y < to.Max.Y {
			out.Max.Y++
		} else {
			out.Min.Y--
		}
	}
	return out
}

// quantizeFrame dithers src onto a Plan9 palette of colors entries placed at r.
// The first entry is reserved for transparency when the source frame had one.
func quantizeFrame(src image.Image, r image.Rectangle, colors int, transparent bool) *image.Paletted {
	var pal color.Palette
	if transparent {
		pal = append(color.Palette{color.Transparent}, palette.Plan9[:colors-1]...)
	} else {
		pal = append(color.Palette(nil), palette.Plan9[:colors]...)
	}
	dst := image.NewPaletted(r, pal)
	draw.FloydSteinberg.Draw(dst, r, src, src.Bounds().Min)
	return dst
}

func hasTransparency(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a == 0 {
			return true
		}
	}
	return false
}
