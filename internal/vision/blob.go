package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// blobParams describes how an image becomes a network input. Planes are
// emitted in B, G, R order and mean follows the same order.
type blobParams struct {
	width, height int64
	mean          [3]float32
	scale         float32
}

var (
	faceBlob = blobParams{
		width: 300, height: 300,
		mean:  [3]float32{104, 117, 123},
		scale: 1,
	}
	attributeBlob = blobParams{
		width: 227, height: 227,
		mean:  [3]float32{78.4263377603, 87.7689143744, 114.895847746},
		scale: 1,
	}
	objectBlob = blobParams{
		width: 300, height: 300,
		mean:  [3]float32{127.5, 127.5, 127.5},
		scale: 0.007843,
	}
)

// blobFromImage resizes img to the blob size and converts it to CHW float32:
//
//	value = (pixel - mean) * scale
func blobFromImage(img image.Image, p blobParams) []float32 {
	w, h := int(p.width), int(p.height)
	resized := imaging.Resize(img, w, h, imaging.Linear)

	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			r := float32(row[x*4+0])
			g := float32(row[x*4+1])
			b := float32(row[x*4+2])

			idx := y*w + x
			data[0*plane+idx] = (b - p.mean[0]) * p.scale
			data[1*plane+idx] = (g - p.mean[1]) * p.scale
			data[2*plane+idx] = (r - p.mean[2]) * p.scale
		}
	}
	return data
}
