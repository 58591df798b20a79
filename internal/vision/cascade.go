package vision

import (
	"fmt"
	"image"
	"math"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/your-org/pictor/internal/annotate"
	"github.com/your-org/pictor/internal/geometry"
)

const (
	cascadeMinSize      = 30
	cascadeShiftFactor  = 0.1
	cascadeScaleFactor  = 1.1
	cascadeGroupIoU     = 0.2
	cascadeMinNeighbors = 5
	faceBoxThickness    = 2
)

type cascadeRunner interface {
	RunCascade(pigo.CascadeParams, float64) []pigo.Detection
}

// FaceDetector finds frontal faces with a pixel-intensity-comparison
// cascade. It needs no neural runtime.
type FaceDetector struct {
	cascade cascadeRunner
}

// LoadFaceDetector unpacks the cascade file at path.
func LoadFaceDetector(path string) (*FaceDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &AssetError{Path: path, Err: err}
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade %s: %w", path, err)
	}
	return &FaceDetector{cascade: classifier}, nil
}

// Detect returns one box per face, in the order groups were first seen.
func (d *FaceDetector) Detect(img *image.NRGBA) []geometry.Box {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	pixels := pigo.RgbToGrayscale(img)
	equalizeHist(pixels)

	params := pigo.CascadeParams{
		MinSize:     cascadeMinSize,
		MaxSize:     min(w, h),
		ShiftFactor: cascadeShiftFactor,
		ScaleFactor: cascadeScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   h,
			Cols:   w,
			Dim:    w,
		},
	}

	raw := d.cascade.RunCascade(params, 0)

	windows := make([]geometry.Box, 0, len(raw))
	for _, det := range raw {
		half := det.Scale / 2
		windows = append(windows, geometry.Box{
			X1: det.Col - half,
			Y1: det.Row - half,
			X2: det.Col + half,
			Y2: det.Row + half,
		})
	}

	var faces []geometry.Box
	for _, box := range groupWindows(windows, cascadeGroupIoU, cascadeMinNeighbors) {
		if c := geometry.ClampBox(box, w, h); !c.Empty() {
			faces = append(faces, c)
		}
	}
	return faces
}

// Annotate outlines each face in green.
func (d *FaceDetector) Annotate(img *image.NRGBA, faces []geometry.Box) {
	for _, f := range faces {
		annotate.Rectangle(img, f.Rect(), annotate.Green, faceBoxThickness)
	}
}

// groupWindows clusters overlapping windows (IoU above minIoU, transitively)
// and averages every cluster of at least minNeighbors members.
func groupWindows(windows []geometry.Box, minIoU float64, minNeighbors int) []geometry.Box {
	parent := make([]int, len(windows))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range windows {
		for j := i + 1; j < len(windows); j++ {
			if windows[i].IoU(windows[j]) > minIoU {
				if ri, rj := find(i), find(j); ri != rj {
					parent[max(ri, rj)] = min(ri, rj)
				}
			}
		}
	}

	type acc struct {
		x1, y1, x2, y2, n int
	}
	groups := make(map[int]*acc)
	var order []int
	for i, w := range windows {
		r := find(i)
		g, ok := groups[r]
		if !ok {
			g = &acc{}
			groups[r] = g
			order = append(order, r)
		}
		g.x1 += w.X1
		g.y1 += w.Y1
		g.x2 += w.X2
		g.y2 += w.Y2
		g.n++
	}

	var out []geometry.Box
	for _, r := range order {
		g := groups[r]
		if g.n < minNeighbors {
			continue
		}
		n := float64(g.n)
		out = append(out, geometry.Box{
			X1: int(math.Round(float64(g.x1) / n)),
			Y1: int(math.Round(float64(g.y1) / n)),
			X2: int(math.Round(float64(g.x2) / n)),
			Y2: int(math.Round(float64(g.y2) / n)),
		})
	}
	return out
}

// equalizeHist spreads the grey-level histogram over the full range in place.
func equalizeHist(pix []uint8) {
	if len(pix) == 0 {
		return
	}

	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}

	first := 0
	for hist[first] == 0 {
		first++
	}
	total := len(pix)
	if hist[first] == total {
		return
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = uint8(min(255, math.Round(float64(sum)*scale)))
	}

	for i, v := range pix {
		pix[i] = lut[v]
	}
}
