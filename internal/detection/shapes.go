package detection

import (
	"image"
	"sort"
)

// region is one 8-connected component of set pixels in a binary mask.
type region struct {
	// Bounds encloses every pixel of the component.
	Bounds image.Rectangle
	// Pixels lists the component in discovery order.
	Pixels []image.Point
}

// Area is the bounding-box area in square pixels.
func (r region) Area() int {
	return r.Bounds.Dx() * r.Bounds.Dy()
}

// Aspect is width divided by height of the bounding box.
func (r region) Aspect() float64 {
	if r.Bounds.Dy() == 0 {
		return 0
	}
	return float64(r.Bounds.Dx()) / float64(r.Bounds.Dy())
}

// findContours finds connected components of pixels >= 128 in bin.
//
// Uses flood-fill with 8-connectivity. Components smaller than minPixels are
// discarded as noise. The result is sorted by pixel count, largest first.
func findContours(bin *image.Gray, minPixels int) []region {
	b := bin.Bounds()
	width, height := b.Dx(), b.Dy()
	visited := make([]bool, width*height)

	set := func(x, y int) bool {
		return bin.Pix[y*bin.Stride+x] >= 128
	}

	var regions []region
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if visited[y*width+x] || !set(x, y) {
				continue
			}
			r := floodFill(set, visited, x, y, width, height)
			if len(r.Pixels) >= minPixels {
				regions = append(regions, r)
			}
		}
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return len(regions[i].Pixels) > len(regions[j].Pixels)
	})
	return regions
}

// floodFill performs iterative flood-fill from a starting point.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow on
// large components. Marks visited pixels and collects them with their
// bounding box.
func floodFill(set func(x, y int) bool, visited []bool, startX, startY, width, height int) region {
	stack := []image.Point{{X: startX, Y: startY}}
	r := region{Bounds: image.Rect(startX, startY, startX+1, startY+1)}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if visited[i] || !set(p.X, p.Y) {
			continue
		}

		visited[i] = true
		r.Pixels = append(r.Pixels, p)
		r.Bounds = r.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return r
}

// paint returns a width x height mask with only r's pixels set.
func (r region) paint(width, height int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, width, height))
	for _, p := range r.Pixels {
		m.Pix[p.Y*m.Stride+p.X] = 255
	}
	return m
}

// fillHoles sets every unset pixel that cannot reach the image border
// through other unset pixels (4-connectivity). A closed outline becomes a
// solid region.
func fillHoles(bin *image.Gray) *image.Gray {
	b := bin.Bounds()
	width, height := b.Dx(), b.Dy()
	outside := make([]bool, width*height)
	var stack []image.Point

	push := func(x, y int) {
		if x < 0 || y < 0 || x >= width || y >= height {
			return
		}
		i := y*width + x
		if outside[i] || bin.Pix[y*bin.Stride+x] >= 128 {
			return
		}
		outside[i] = true
		stack = append(stack, image.Point{X: x, Y: y})
	}

	for x := 0; x < width; x++ {
		push(x, 0)
		push(x, height-1)
	}
	for y := 0; y < height; y++ {
		push(0, y)
		push(width-1, y)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		push(p.X+1, p.Y)
		push(p.X-1, p.Y)
		push(p.X, p.Y+1)
		push(p.X, p.Y-1)
	}

	out := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !outside[y*width+x] {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

func countSet(m *image.Gray) int {
	n := 0
	for _, v := range m.Pix {
		if v >= 128 {
			n++
		}
	}
	return n
}
