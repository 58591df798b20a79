package vision

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"

	"github.com/your-org/pictor/internal/codec"
)

// fakeNet returns a canned output and records what it was fed.
type fakeNet struct {
	out      []float32
	err      error
	calls    int
	inputLen int
}

func (f *fakeNet) Forward(in []float32) ([]float32, error) {
	f.calls++
	f.inputLen = len(in)
	return f.out, f.err
}

// ssdOutput packs rows into a detection_out tensor terminated by an
// image id of -1.
func ssdOutput(rows ...[7]float32) []float32 {
	out := make([]float32, 0, (len(rows)+1)*ssdRowLen)
	for _, r := range rows {
		out = append(out, r[:]...)
	}
	return append(out, -1, 0, 0, 0, 0, 0, 0)
}

// probs returns a distribution of size n peaking at idx.
func probs(n, idx int) []float32 {
	p := make([]float32, n)
	for i := range p {
		p[i] = 0.01
	}
	p[idx] = 0.9
	return p
}

type fakeCascade struct {
	dets   []pigo.Detection
	params pigo.CascadeParams
}

func (f *fakeCascade) RunCascade(p pigo.CascadeParams, _ float64) []pigo.Detection {
	f.params = p
	return f.dets
}

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writeImage(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := codec.Encode(img, path); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
