package filters

import (
	"image"

	"github.com/disintegration/imaging"
)

// plane is a single 8-bit channel, row-major, no padding.
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(w, h int) plane {
	return plane{w: w, h: h, pix: make([]uint8, w*h)}
}

// lumaPlane extracts Rec.601 luminance.
func lumaPlane(img *image.NRGBA) plane {
	g := imaging.Grayscale(img)
	return redPlane(g)
}

// redPlane takes the first sample of every pixel. For grey images that is
// the luminance.
func redPlane(img image.Image) plane {
	n := imaging.Clone(img)
	b := n.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		row := n.Pix[y*n.Stride:]
		for x := 0; x < p.w; x++ {
			p.pix[y*p.w+x] = row[x*4]
		}
	}
	return p
}

// at reads with replicated borders.
func (p plane) at(x, y int) uint8 {
	return p.pix[clampIndex(y, p.h)*p.w+clampIndex(x, p.w)]
}

func (p plane) gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, p.w, p.h))
	copy(g.Pix, p.pix)
	return g
}

// expand broadcasts the plane into RGB and takes alpha from ref.
func (p plane) expand(ref *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, p.w, p.h))
	for i, v := range p.pix {
		dst.Pix[i*4+0] = v
		dst.Pix[i*4+1] = v
		dst.Pix[i*4+2] = v
		dst.Pix[i*4+3] = ref.Pix[i*4+3]
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
