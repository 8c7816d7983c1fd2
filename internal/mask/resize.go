package mask

import (
	"image"

	"github.com/disintegration/imaging"
)

// ResizeNearest scales m to width x height with nearest-neighbor sampling so
// that a binary mask stays binary. Resizing to the current size returns a
// copy.
func ResizeNearest(m *image.Gray, width, height int) *image.Gray {
	b := m.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return Clone(m)
	}
	if width <= 0 || height <= 0 || b.Empty() {
		return New(width, height)
	}
	return ToGray(imaging.Resize(m, width, height, imaging.NearestNeighbor))
}
