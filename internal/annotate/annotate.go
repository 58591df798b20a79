// Package annotate draws detection overlays onto pixel buffers.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Green = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	Blue  = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

var labelFace font.Face = basicfont.Face7x13

// Rectangle draws the outline of r with the given line thickness.
// The stroke grows inward from r's edges and is clipped to dst.
func Rectangle(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(c)
	for i := 0; i < thickness; i++ {
		inner := r.Inset(i)
		if inner.Empty() {
			return
		}
		edges := []image.Rectangle{
			image.Rect(inner.Min.X, inner.Min.Y, inner.Max.X, inner.Min.Y+1),
			image.Rect(inner.Min.X, inner.Max.Y-1, inner.Max.X, inner.Max.Y),
			image.Rect(inner.Min.X, inner.Min.Y, inner.Min.X+1, inner.Max.Y),
			image.Rect(inner.Max.X-1, inner.Min.Y, inner.Max.X, inner.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
		}
	}
}

// FillRectangle paints r with a solid colour.
func FillRectangle(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// Label draws text with its baseline starting at (x, y).
func Label(dst draw.Image, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// TextSize returns the advance width of text and the height of the glyphs
// above the baseline.
func TextSize(text string) (width, height int) {
	width = font.MeasureString(labelFace, text).Ceil()
	height = labelFace.Metrics().Ascent.Ceil()
	return width, height
}
