package mask

import "image"

// Options controls Normalize.
type Options struct {
	// Sigma for SmoothEdges. Zero selects AutoSigma for the target size,
	// a negative value disables smoothing.
	Sigma float64
	// ErodePx is the erosion radius applied after smoothing.
	ErodePx int
}

// DefaultOptions are used by the detection cascade.
var DefaultOptions = Options{Sigma: 0, ErodePx: 1}

// Normalize brings a detector mask to the photo resolution and softens its
// edges: nearest resize, Gaussian smoothing, then a slight erosion.
func Normalize(m *image.Gray, width, height int, opts Options) *image.Gray {
	out := ResizeNearest(m, width, height)

	sigma := opts.Sigma
	if sigma == 0 {
		sigma = AutoSigma(width, height)
	}
	if sigma > 0 {
		out = SmoothEdges(out, sigma)
	}
	return ErodeSlightly(out, opts.ErodePx)
}
