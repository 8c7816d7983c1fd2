package mask

import (
	"image"
)

// Threshold is the value at or above which a mask pixel counts as covered.
const Threshold = 128

// New returns an empty (all zero) mask of the given size.
func New(width, height int) *image.Gray {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return image.NewGray(image.Rect(0, 0, width, height))
}

// FromRectangles rasterizes rects into a width x height mask. Pixels inside
// any rectangle are set to 255, everything else is 0. Rectangles are clipped
// to the mask bounds; overlapping rectangles simply saturate.
func FromRectangles(rects []image.Rectangle, width, height int) *image.Gray {
	m := New(width, height)
	Fill(m, rects...)
	return m
}

// Fill sets every pixel of m that lies inside one of rects to 255.
// It is the only function in this package that writes to its argument and
// is meant for masks the caller has just allocated.
func Fill(m *image.Gray, rects ...image.Rectangle) {
	b := m.Bounds()
	for _, r := range rects {
		r = r.Canon().Intersect(b)
		if r.Empty() {
			continue
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := m.Pix[m.PixOffset(r.Min.X, y):m.PixOffset(r.Max.X, y)]
			for i := range row {
				row[i] = 255
			}
		}
	}
}

// CenterRect returns the rectangle covering the middle half of a
// width x height area in each dimension (a quarter of the total area).
func CenterRect(width, height int) image.Rectangle {
	qw, qh := width/4, height/4
	return image.Rect(qw, qh, width-qw, height-qh)
}

// Center returns a mask whose only covered region is CenterRect.
func Center(width, height int) *image.Gray {
	return FromRectangles([]image.Rectangle{CenterRect(width, height)}, width, height)
}

// Clone returns a deep copy of m, rebased so its bounds start at (0,0).
func Clone(m *image.Gray) *image.Gray {
	b := m.Bounds()
	out := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}

// CoveragePercent returns the percentage (0-100) of pixels at or above
// Threshold. An empty mask reports 0.
func CoveragePercent(m *image.Gray) float64 {
	b := m.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	covered := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
		for _, v := range row {
			if v >= Threshold {
				covered++
			}
		}
	}
	return float64(covered) * 100 / float64(total)
}

// Mass returns the sum of all mask values. It is the "energy" that a
// normalized smoothing kernel keeps (almost) constant.
func Mass(m *image.Gray) float64 {
	b := m.Bounds()
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
		for _, v := range row {
			sum += float64(v)
		}
	}
	return sum
}

// BoundingBox returns the smallest rectangle containing every non-zero pixel.
// ok is false when the mask is entirely zero.
func BoundingBox(m *image.Gray) (r image.Rectangle, ok bool) {
	b := m.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
		for i, v := range row {
			if v == 0 {
				continue
			}
			x := b.Min.X + i
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Binarize returns a copy of m with every pixel forced to 0 or 255 using
// Threshold.
func Binarize(m *image.Gray) *image.Gray {
	out := Clone(m)
	for i, v := range out.Pix {
		if v >= Threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// IsZero reports whether every pixel of m is 0.
func IsZero(m *image.Gray) bool {
	_, ok := BoundingBox(m)
	return !ok
}
