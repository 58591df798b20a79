package filters

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

const (
	cannyLow  = 100
	cannyHigh = 200

	cartoonMedianRadius = 2
	cartoonBlock        = 9
	cartoonC            = 9
	cartoonColors       = 8

	sketchBlurRadius = 10

	oilDiameter   = 9
	oilSigmaColor = 75
	oilSigmaSpace = 75
	oilPasses     = 2

	vintageSepia    = 0.8
	vintageNoise    = 10
	vintageContrast = 80
)

var (
	sharpenKernel = [9]float64{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1,
	}
	embossKernel = [9]float64{
		-2, -1, 0,
		-1, 1, 1,
		0, 1, 2,
	}
)

// edges renders the Canny edge map as a white-on-black image.
func edges(img *image.NRGBA) *image.NRGBA {
	return canny(lumaPlane(img), cannyLow, cannyHigh).expand(img)
}

// canny runs Sobel gradients, non-maximum suppression and hysteresis.
// Magnitude is the L1 norm |gx|+|gy|. There is no pre-smoothing.
func canny(g plane, low, high float64) plane {
	w, h := g.w, g.h
	mag := make([]float64, w*h)
	gxs := make([]float64, w*h)
	gys := make([]float64, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := func(dx, dy int) float64 { return float64(g.at(x+dx, y+dy)) }
			gx := -p(-1, -1) - 2*p(-1, 0) - p(-1, 1) + p(1, -1) + 2*p(1, 0) + p(1, 1)
			gy := -p(-1, -1) - 2*p(0, -1) - p(1, -1) + p(-1, 1) + 2*p(0, 1) + p(1, 1)
			i := y*w + x
			gxs[i], gys[i] = gx, gy
			mag[i] = math.Abs(gx) + math.Abs(gy)
		}
	}

	// Non-maximum suppression along the quantised gradient direction.
	thin := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}

			angle := math.Atan2(gys[i], gxs[i])
			if angle < 0 {
				angle += math.Pi
			}

			var a, b float64
			switch {
			case angle < math.Pi/8 || angle >= 7*math.Pi/8:
				a, b = mag[i-1], mag[i+1]
			case angle < 3*math.Pi/8:
				a, b = mag[i-w-1], mag[i+w+1]
			case angle < 5*math.Pi/8:
				a, b = mag[i-w], mag[i+w]
			default:
				a, b = mag[i-w+1], mag[i+w-1]
			}

			if m >= a && m > b {
				thin[i] = m
			}
		}
	}

	// Hysteresis: grow strong edges through 8-connected weak ones.
	out := newPlane(w, h)
	queue := make([]int, 0, 64)
	for i, m := range thin {
		if m > high && out.pix[i] == 0 {
			out.pix[i] = 255
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if out.pix[j] == 0 && thin[j] > low {
					out.pix[j] = 255
					queue = append(queue, j)
				}
			}
		}
	}
	return out
}

// cartoon combines a colour-quantised image with an adaptive threshold
// edge mask. Pixels outside the mask are black.
func cartoon(e *Engine, img *image.NRGBA) *image.NRGBA {
	gray := lumaPlane(img)
	smoothed := redPlane(effect.Median(gray.gray(), cartoonMedianRadius))
	mask := adaptiveMeanThreshold(smoothed, cartoonBlock, cartoonC)

	out := quantize(img, cartoonColors, e.rng())
	for i, v := range mask.pix {
		if v == 0 {
			out.Pix[i*4+0] = 0
			out.Pix[i*4+1] = 0
			out.Pix[i*4+2] = 0
		}
	}
	return out
}

// adaptiveMeanThreshold sets a pixel to 255 when it exceeds the mean of its
// block×block neighbourhood minus c.
func adaptiveMeanThreshold(p plane, block, c int) plane {
	r := block / 2
	w, h := p.w, p.h

	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for k := -r; k <= r; k++ {
				s += int(p.at(x+k, y))
			}
			rows[y*w+x] = s
		}
	}

	area := float64(block * block)
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for k := -r; k <= r; k++ {
				s += rows[clampIndex(y+k, h)*w+x]
			}
			mean := int(math.Round(float64(s) / area))
			if int(p.pix[y*w+x]) > mean-c {
				out.pix[y*w+x] = 255
			}
		}
	}
	return out
}

// sketch is the colour-dodge of the greyscale image with its blurred
// inverse.
func sketch(img *image.NRGBA) *image.NRGBA {
	gray := lumaPlane(img)
	inv := newPlane(gray.w, gray.h)
	for i, v := range gray.pix {
		inv.pix[i] = 255 - v
	}
	blurred := redPlane(blur.Gaussian(inv.gray(), sketchBlurRadius))

	out := newPlane(gray.w, gray.h)
	for i, v := range gray.pix {
		div := 255 - int(blurred.pix[i])
		if div == 0 {
			continue
		}
		out.pix[i] = clampUint8(math.Round(float64(v) * 256 / float64(div)))
	}
	return out.expand(img)
}

func oilPainting(img *image.NRGBA) *image.NRGBA {
	for i := 0; i < oilPasses; i++ {
		img = bilateral(img, oilDiameter, oilSigmaColor, oilSigmaSpace)
	}
	return img
}

// bilateral is an edge-preserving smoothing filter over a circular window.
// Colour distance is the L1 norm across the three channels.
func bilateral(img *image.NRGBA, diameter int, sigmaColor, sigmaSpace float64) *image.NRGBA {
	radius := diameter / 2
	w, h := img.Rect.Dx(), img.Rect.Dy()

	type tap struct {
		dx, dy int
		weight float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 > float64(radius*radius) {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))})
		}
	}

	colorWeight := make([]float64, 256*3)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(-float64(i*i) / (2 * sigmaColor * sigmaColor))
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ci := img.PixOffset(x, y)
			r0, g0, b0 := int(img.Pix[ci]), int(img.Pix[ci+1]), int(img.Pix[ci+2])

			var sr, sg, sb, sw float64
			for _, t := range taps {
				ni := img.PixOffset(clampIndex(x+t.dx, w), clampIndex(y+t.dy, h))
				r, g, b := int(img.Pix[ni]), int(img.Pix[ni+1]), int(img.Pix[ni+2])
				wt := t.weight * colorWeight[absInt(r-r0)+absInt(g-g0)+absInt(b-b0)]
				sr += wt * float64(r)
				sg += wt * float64(g)
				sb += wt * float64(b)
				sw += wt
			}

			di := dst.PixOffset(x, y)
			dst.Pix[di+0] = clampUint8(math.Round(sr / sw))
			dst.Pix[di+1] = clampUint8(math.Round(sg / sw))
			dst.Pix[di+2] = clampUint8(math.Round(sb / sw))
			dst.Pix[di+3] = img.Pix[ci+3]
		}
	}
	return dst
}

func convolve3(img *image.NRGBA, m [9]float64) *image.NRGBA {
	k := convolution.NewKernel(3, 3)
	copy(k.Matrix, m[:])
	return imaging.Clone(convolution.Convolve(img, k, &convolution.Options{KeepAlpha: true}))
}

// vintage layers sepia, a Gaussian vignette, film grain and reduced
// contrast.
func vintage(e *Engine, img *image.NRGBA) *image.NRGBA {
	out := sepia(img, vintageSepia)
	w, h := out.Rect.Dx(), out.Rect.Dy()

	kx := peakGaussian(w, float64(w)/2)
	ky := peakGaussian(h, float64(h)/2)
	rng := e.rng()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := kx[x] * ky[y]
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(clampUint8(float64(out.Pix[i+c]) * m))
				v += rng.NormFloat64() * vintageNoise
				out.Pix[i+c] = clampUint8(math.Round(v))
			}
		}
	}
	return brightnessContrast(out, 100, vintageContrast)
}

// peakGaussian returns an n-tap Gaussian scaled so its largest tap is 1.
func peakGaussian(n int, sigma float64) []float64 {
	k := make([]float64, n)
	if n == 0 {
		return k
	}
	if sigma <= 0 {
		sigma = 1
	}
	center := float64(n-1) / 2
	peak := 0.0
	for i := range k {
		d := float64(i) - center
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		peak = math.Max(peak, k[i])
	}
	for i := range k {
		k[i] /= peak
	}
	return k
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
