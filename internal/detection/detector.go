package detection

import (
	"context"
	"image"
	"math"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
)

var (
	// ErrNotConfigured is returned by backend constructors when required
	// credentials or settings are missing. Such backends are skipped, not
	// attempted.
	ErrNotConfigured = errors.New("backend not configured")

	// ErrParse marks a response that arrived but could not be interpreted.
	ErrParse = errors.New("parse error")

	// ErrNoWindow marks a backend run that completed without any candidate.
	ErrNoWindow = errors.New("no window found")
)

// Detector is one window detection strategy.
//
// Detect must not panic and must not return raw errors: every failure is
// reported through Result so the caller can move on to the next detector.
type Detector interface {
	Name() string
	Detect(ctx context.Context, photo *imaging.Photo) Result
}

// Candidate is one proposed window rectangle. Rect is expressed in the
// coordinate space of the Result's Mask.
type Candidate struct {
	Rect       image.Rectangle
	Confidence float64
	Source     string
}

// Result is the outcome of a single Detect call. A successful result carries
// a mask; a failed one carries Err and no mask.
//
// Masks may be produced at any resolution; the cascade resizes them to the
// photo before use.
type Result struct {
	Backend    string
	Mask       *image.Gray
	Candidates []Candidate
	// Found is false when the mask is only a guess, e.g. LocalEdge's center
	// fallback.
	Found bool
	Err   error
}

// Success builds a successful result.
func Success(backend string, m *image.Gray, candidates []Candidate, found bool) Result {
	return Result{Backend: backend, Mask: m, Candidates: candidates, Found: found}
}

// Failure builds a failed result. A nil err is replaced by ErrNoWindow.
func Failure(backend string, err error) Result {
	if err == nil {
		err = ErrNoWindow
	}
	return Result{Backend: backend, Err: err}
}

// OK reports whether the result carries a usable mask.
func (r Result) OK() bool {
	return r.Err == nil && r.Mask != nil && !r.Mask.Bounds().Empty()
}

// Accepted reports whether the cascade should stop at this result.
func (r Result) Accepted() bool {
	return r.OK() && r.Found
}

// Reason is a short diagnostic for logs and tool output.
func (r Result) Reason() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Found:
		return "found"
	default:
		return "guess"
	}
}

// Pad grows r by max(10px, 10% of its own shorter side) on every side and
// clips it to bounds. Remote detectors tend to return boxes that cut off the
// window frame.
func Pad(r image.Rectangle, bounds image.Rectangle) image.Rectangle {
	r = r.Canon()
	short := r.Dx()
	if r.Dy() < short {
		short = r.Dy()
	}
	p := int(math.Max(10, 0.1*float64(short)))
	return r.Inset(-p).Intersect(bounds)
}

// rasterize unions candidate rects into a width x height mask.
func rasterize(candidates []Candidate, width, height int) *image.Gray {
	rects := make([]image.Rectangle, 0, len(candidates))
	for _, c := range candidates {
		rects = append(rects, c.Rect)
	}
	return mask.FromRectangles(rects, width, height)
}
