package detection

import (
	"image"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/segment"
)

// Binary morphology on 0/255 masks, built from box averages: a pixel
// survives erosion when its whole window is set (average ~255) and is set
// by dilation when any pixel in its window is set (average > 0).

const (
	erodeLevel  = 250
	dilateLevel = 1
)

func boxKernel(width, height int) convolution.Matrix {
	k := convolution.NewKernel(width, height)
	for i := range k.Matrix {
		k.Matrix[i] = 1
	}
	return k.Normalized()
}

func boxThreshold(bin *image.Gray, width, height int, level uint8) *image.Gray {
	avg := convolution.Convolve(bin, boxKernel(width, height), &convolution.Options{KeepAlpha: true})
	return segment.Threshold(avg, level)
}

// openLine keeps only runs of set pixels at least length long in one
// direction. This is how frame and mullion lines are told apart from
// texture edges.
func openLine(bin *image.Gray, length int, horizontal bool) *image.Gray {
	w, h := length, 1
	if !horizontal {
		w, h = 1, length
	}
	eroded := boxThreshold(bin, w, h, erodeLevel)
	return boxThreshold(eroded, w, h, dilateLevel)
}

// dilateSquare grows set regions by radius pixels in every direction.
func dilateSquare(bin *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		return bin
	}
	size := 2*radius + 1
	return boxThreshold(boxThreshold(bin, size, 1, dilateLevel), 1, size, dilateLevel)
}
