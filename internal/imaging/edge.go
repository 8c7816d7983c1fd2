package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
)

// Canny performs Canny edge detection and returns a binary edge map where
// edges are 255 and everything else is 0.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - thresholdLow: Gradient magnitude (0-255) below which pixels are
//     discarded.
//   - thresholdHigh: Gradient magnitude (0-255) above which pixels are
//     always kept. Pixels between the thresholds are kept only when they
//     connect to a strong edge.
//
// # Algorithm
//
//  1. Grayscale conversion
//  2. 5x5 Gaussian blur (sigma ≈ 1.4) to reduce noise
//  3. Sobel gradients, magnitude and direction
//  4. Non-maximum suppression to thin edges to one pixel
//  5. Hysteresis: weak edges survive when 8-connected to a strong one
//
// Recommended starting points:
//   - Clean interiors: thresholdLow=50, thresholdHigh=150
//   - Busy or noisy photos: thresholdLow=100, thresholdHigh=200
func Canny(img image.Image, thresholdLow, thresholdHigh int) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return result
	}

	blurred := blurredLuminance(img)

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	at := func(x, y int) float64 {
		return blurred[clamp(y, 0, height-1)*width+clamp(x, 0, width-1)]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1, n2 = magnitude[i-1], magnitude[i+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1, n2 = magnitude[i-width+1], magnitude[i+width-1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1, n2 = magnitude[i-width], magnitude[i+width]
			default:
				n1, n2 = magnitude[i-width-1], magnitude[i+width+1]
			}
			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	// Hysteresis, propagating from every strong pixel through weak ones.
	low := float64(thresholdLow)
	high := float64(thresholdHigh)
	var stack []int
	for i, v := range suppressed {
		if v >= high {
			result.Pix[i] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if result.Pix[j] == 0 && suppressed[j] >= low {
					result.Pix[j] = 255
					stack = append(stack, j)
				}
			}
		}
	}

	return result
}

// SobelEdges returns a binary map of pixels whose Sobel response reaches
// level.
func SobelEdges(img image.Image, level uint8) *image.Gray {
	return segment.Threshold(effect.Sobel(effect.Grayscale(img)), level)
}

// LaplacianEdges returns a binary map of pixels whose absolute second
// derivative reaches level. The image is blurred first, as a bare Laplacian
// mostly amplifies sensor noise.
func LaplacianEdges(img image.Image, level uint8) *image.Gray {
	gray := convolution.Convolve(effect.Grayscale(img), smoothingKernel(), &convolution.Options{KeepAlpha: true})

	k := &convolution.Kernel{
		Matrix: []float64{
			0, 1, 0,
			1, -4, 1,
			0, 1, 0,
		},
		Width:  3,
		Height: 3,
	}
	neg := &convolution.Kernel{Matrix: make([]float64, len(k.Matrix)), Width: 3, Height: 3}
	for i, v := range k.Matrix {
		neg.Matrix[i] = -v
	}

	// Convolve clamps negatives to zero, so both signs are taken separately.
	opts := &convolution.Options{KeepAlpha: true}
	pos := convolution.Convolve(gray, k, opts)
	negResp := convolution.Convolve(gray, neg, opts)
	return segment.Threshold(blend.Lighten(pos, negResp), level)
}

// UnionEdges combines binary edge maps of identical size with a pixelwise
// maximum. The first map fixes the output size.
func UnionEdges(maps ...*image.Gray) *image.Gray {
	if len(maps) == 0 {
		return image.NewGray(image.Rectangle{})
	}
	b := maps[0].Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for _, m := range maps {
		mb := m.Bounds()
		if mb.Dx() != b.Dx() || mb.Dy() != b.Dy() {
			continue
		}
		for y := 0; y < b.Dy(); y++ {
			src := m.Pix[m.PixOffset(mb.Min.X, mb.Min.Y+y):]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < b.Dx(); x++ {
				if src[x] > dst[x] {
					dst[x] = src[x]
				}
			}
		}
	}
	return out
}

// smoothingKernel is the classic 5x5 Gaussian approximation (sigma ≈ 1.4):
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
func smoothingKernel() convolution.Matrix {
	k := &convolution.Kernel{
		Matrix: []float64{
			1, 4, 7, 4, 1,
			4, 16, 26, 16, 4,
			7, 26, 41, 26, 7,
			4, 16, 26, 16, 4,
			1, 4, 7, 4, 1,
		},
		Width:  5,
		Height: 5,
	}
	return k.Normalized()
}

// blurredLuminance returns the blurred luminance of img in row-major order,
// scaled 0-255.
func blurredLuminance(img image.Image) []float64 {
	gray := convolution.Convolve(effect.Grayscale(img), smoothingKernel(), &convolution.Options{KeepAlpha: true})
	b := gray.Bounds()
	out := make([]float64, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out[y*b.Dx()+x] = float64(gray.Pix[y*gray.Stride+x*4])
		}
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
