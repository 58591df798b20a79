package filters

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// brightnessContrast shifts by (brightness-100)*2.55 and scales around 128.
func brightnessContrast(img *image.NRGBA, brightness, contrast int) *image.NRGBA {
	shift := float64(brightness-100) * 2.55
	gain := float64(contrast) / 100

	level := func(v uint8) uint8 {
		return clampUint8((float64(v)+shift-128)*gain + 128)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.R, c.G, c.B = level(c.R), level(c.G), level(c.B)
		return c
	})
}

// gaussianBlur smooths with a kernel of length 2*amount+1.
func gaussianBlur(img *image.NRGBA, amount int) *image.NRGBA {
	if amount <= 0 {
		return img
	}
	return imaging.Clone(blur.Gaussian(img, float64(amount)))
}

// sepia applies the classic sepia matrix, blended with the original when
// intensity is below 1.
func sepia(img *image.NRGBA, intensity float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		sr := clampUint8(0.393*r + 0.769*g + 0.189*b)
		sg := clampUint8(0.349*r + 0.686*g + 0.168*b)
		sb := clampUint8(0.272*r + 0.534*g + 0.131*b)

		if intensity < 1 {
			sr = blend(c.R, sr, intensity)
			sg = blend(c.G, sg, intensity)
			sb = blend(c.B, sb, intensity)
		}
		c.R, c.G, c.B = sr, sg, sb
		return c
	})
}

// scaleChannels multiplies each colour channel independently.
func scaleChannels(img *image.NRGBA, kr, kg, kb float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.R = clampUint8(float64(c.R) * kr)
		c.G = clampUint8(float64(c.G) * kg)
		c.B = clampUint8(float64(c.B) * kb)
		return c
	})
}

// saturate scales the HSV saturation channel.
func saturate(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		col := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
		h, s, v := col.Hsv()
		s = math.Min(1, s*factor)
		c.R, c.G, c.B = colorful.Hsv(h, s, v).Clamped().RGB255()
		return c
	})
}

// clampUint8 clamps to [0,255] and truncates, matching a saturating cast.
func clampUint8(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func blend(orig, target uint8, alpha float64) uint8 {
	return clampUint8(math.Round((1-alpha)*float64(orig) + alpha*float64(target)))
}
