package filters

import (
	"image"
	"math"
	"math/rand/v2"
)

const (
	kmeansMaxIter  = 20
	kmeansEpsilon  = 0.001
	kmeansAttempts = 10
	kmeansSamples  = 20000
)

type rgb [3]float64

func dist2(a, b rgb) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

func nearest(p rgb, centers []rgb) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for j, c := range centers {
		if d := dist2(p, c); d < bestD {
			best, bestD = j, d
		}
	}
	return best, bestD
}

// quantize reduces img to k colours. Centres are fitted on an evenly
// strided subsample and every pixel is then mapped to its nearest centre.
func quantize(img *image.NRGBA, k int, rng *rand.Rand) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	n := w * h
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if n == 0 {
		return out
	}

	stride := max(1, n/kmeansSamples)
	samples := make([]rgb, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		samples = append(samples, pixelAt(img, i))
	}

	centers := kmeans(samples, min(k, len(samples)), rng)

	palette := make([][3]uint8, len(centers))
	for j, c := range centers {
		palette[j] = [3]uint8{clampUint8(c[0]), clampUint8(c[1]), clampUint8(c[2])}
	}

	for i := 0; i < n; i++ {
		j, _ := nearest(pixelAt(img, i), centers)
		o := i * 4
		out.Pix[o+0] = palette[j][0]
		out.Pix[o+1] = palette[j][1]
		out.Pix[o+2] = palette[j][2]
		out.Pix[o+3] = img.Pix[img.PixOffset(i%w, i/w)+3]
	}
	return out
}

func pixelAt(img *image.NRGBA, i int) rgb {
	w := img.Rect.Dx()
	o := img.PixOffset(i%w, i/w)
	return rgb{float64(img.Pix[o]), float64(img.Pix[o+1]), float64(img.Pix[o+2])}
}

// kmeans runs Lloyd's algorithm several times from random centres inside
// the data's bounding box and keeps the most compact result.
func kmeans(data []rgb, k int, rng *rand.Rand) []rgb {
	if k <= 0 {
		return nil
	}

	lo, hi := data[0], data[0]
	for _, p := range data {
		for c := 0; c < 3; c++ {
			lo[c] = math.Min(lo[c], p[c])
			hi[c] = math.Max(hi[c], p[c])
		}
	}

	var best []rgb
	bestCompact := math.Inf(1)
	labels := make([]int, len(data))

	for attempt := 0; attempt < kmeansAttempts; attempt++ {
		centers := make([]rgb, k)
		for j := range centers {
			for c := 0; c < 3; c++ {
				centers[j][c] = lo[c] + rng.Float64()*(hi[c]-lo[c])
			}
		}

		for iter := 0; iter < kmeansMaxIter; iter++ {
			for i, p := range data {
				labels[i], _ = nearest(p, centers)
			}

			sums := make([]rgb, k)
			counts := make([]int, k)
			for i, p := range data {
				l := labels[i]
				counts[l]++
				for c := 0; c < 3; c++ {
					sums[l][c] += p[c]
				}
			}

			// Re-seed empty clusters with the point farthest from its centre.
			for j := range counts {
				if counts[j] > 0 {
					continue
				}
				far, farD := -1, -1.0
				for i, p := range data {
					if counts[labels[i]] <= 1 {
						continue
					}
					if d := dist2(p, centers[labels[i]]); d > farD {
						far, farD = i, d
					}
				}
				if far < 0 {
					continue
				}
				old := labels[far]
				counts[old]--
				for c := 0; c < 3; c++ {
					sums[old][c] -= data[far][c]
				}
				labels[far] = j
				counts[j] = 1
				sums[j] = data[far]
			}

			shift := 0.0
			for j := range centers {
				if counts[j] == 0 {
					continue
				}
				var next rgb
				for c := 0; c < 3; c++ {
					next[c] = sums[j][c] / float64(counts[j])
				}
				shift = math.Max(shift, dist2(next, centers[j]))
				centers[j] = next
			}
			if shift <= kmeansEpsilon*kmeansEpsilon {
				break
			}
		}

		compact := 0.0
		for _, p := range data {
			_, d := nearest(p, centers)
			compact += d
		}
		if compact < bestCompact {
			bestCompact = compact
			best = centers
		}
	}
	return best
}
