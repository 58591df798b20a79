// Package geometry holds bounding-box arithmetic shared by the detectors.
package geometry

import "image"

// Box is an axis-aligned box in pixel coordinates. X2 and Y2 are exclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool { return b.X1 >= b.X2 || b.Y1 >= b.Y2 }

func (b Box) Rect() image.Rectangle { return image.Rect(b.X1, b.Y1, b.X2, b.Y2) }

// IoU returns the intersection over union of two boxes.
func (b Box) IoU(o Box) float64 {
	ix1, iy1 := max(b.X1, o.X1), max(b.Y1, o.Y1)
	ix2, iy2 := min(b.X2, o.X2), min(b.Y2, o.Y2)
	if ix1 >= ix2 || iy1 >= iy2 {
		return 0
	}
	inter := float64((ix2 - ix1) * (iy2 - iy1))
	union := float64(b.Width()*b.Height()+o.Width()*o.Height()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ClampBox intersects box with the image area [0,width) x [0,height).
// The result is Empty when box does not overlap the image.
func ClampBox(box Box, width, height int) Box {
	c := Box{
		X1: clamp(box.X1, 0, width),
		Y1: clamp(box.Y1, 0, height),
		X2: clamp(box.X2, 0, width),
		Y2: clamp(box.Y2, 0, height),
	}
	if c.Empty() {
		return Box{}
	}
	return c
}

// ExpandBox pads box by margin on every side and clamps it to the image.
func ExpandBox(box Box, margin, width, height int) Box {
	return ClampBox(Box{
		X1: box.X1 - margin,
		Y1: box.Y1 - margin,
		X2: box.X2 + margin,
		Y2: box.Y2 + margin,
	}, width, height)
}

// FromNormalized scales [0,1] coordinates to pixels, truncating toward zero.
// The result is not clamped.
func FromNormalized(x1, y1, x2, y2 float32, width, height int) Box {
	return Box{
		X1: int(x1 * float32(width)),
		Y1: int(y1 * float32(height)),
		X2: int(x2 * float32(width)),
		Y2: int(y2 * float32(height)),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
