package mask

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
)

// AutoSigma returns a Gaussian sigma proportional to the image size so that
// smoothing looks the same on a phone snapshot and a 24MP photo.
func AutoSigma(width, height int) float64 {
	short := width
	if height < short {
		short = height
	}
	return math.Max(1, float64(short)/200)
}

// SmoothEdges applies a separable Gaussian blur with the given sigma. A
// sigma of zero or less returns an unmodified copy.
//
// The kernel is normalized, so the total mass of the mask is preserved up to
// edge effects and rounding.
func SmoothEdges(m *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return Clone(m)
	}
	k := gaussianKernel(sigma)
	opts := &convolution.Options{Bias: 0.5, KeepAlpha: true}

	horizontal := convolution.Convolve(m, k, opts)
	both := convolution.Convolve(horizontal, k.Transposed(), opts)
	return ToGray(both)
}

// gaussianKernel builds a normalized 1D kernel covering +/- 3 sigma.
func gaussianKernel(sigma float64) convolution.Matrix {
	radius := int(math.Ceil(3 * sigma))
	size := 2*radius + 1
	k := convolution.NewKernel(size, 1)
	twoSigmaSq := 2 * sigma * sigma
	for i := 0; i < size; i++ {
		d := float64(i - radius)
		k.Matrix[i] = math.Exp(-(d * d) / twoSigmaSq)
	}
	return k.Normalized()
}

// ErodeSlightly shrinks covered regions by px pixels using a square min
// filter. px <= 0 returns a copy.
func ErodeSlightly(m *image.Gray, px int) *image.Gray {
	if px <= 0 {
		return Clone(m)
	}
	return ToGray(effect.Erode(m, float64(px)))
}

// Dilate grows covered regions by px pixels using a square max filter.
func Dilate(m *image.Gray, px int) *image.Gray {
	if px <= 0 {
		return Clone(m)
	}
	return ToGray(effect.Dilate(m, float64(px)))
}
