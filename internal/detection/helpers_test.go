package detection

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/stretchr/testify/require"
)

// testPhoto wraps img as a PNG-backed Photo.
func testPhoto(t *testing.T, img image.Image) *imaging.Photo {
	t.Helper()
	p, err := imaging.FromImage(img)
	require.NoError(t, err)
	return p
}

func whitePhoto(t *testing.T, width, height int) *imaging.Photo {
	t.Helper()
	return testPhoto(t, createTestImage(width, height, color.White))
}

// fakeDetector returns a canned result and counts calls.
type fakeDetector struct {
	name   string
	result Result
	panics bool
	// wait, when set, blocks Detect until closed, ignoring ctx.
	wait  chan struct{}
	calls int32
}

func (f *fakeDetector) Name() string { return f.name }

func (f *fakeDetector) Detect(ctx context.Context, photo *imaging.Photo) Result {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("boom")
	}
	if f.wait != nil {
		<-f.wait
	}
	return f.result
}

func (f *fakeDetector) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func found(name string, width, height int, r image.Rectangle, confidence float64) *fakeDetector {
	c := []Candidate{{Rect: r, Confidence: confidence, Source: name}}
	return &fakeDetector{name: name, result: Success(name, mask.FromRectangles([]image.Rectangle{r}, width, height), c, true)}
}

func guess(name string, width, height int, r image.Rectangle) *fakeDetector {
	c := []Candidate{{Rect: r, Confidence: 0.1, Source: name}}
	return &fakeDetector{name: name, result: Success(name, mask.FromRectangles([]image.Rectangle{r}, width, height), c, false)}
}

func failing(name string, err error) *fakeDetector {
	return &fakeDetector{name: name, result: Failure(name, err)}
}
