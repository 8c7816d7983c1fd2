package detection

import (
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testRetry = RetryPolicy{Timeout: 2 * time.Second, MaxAttempts: 3, Delay: time.Millisecond}

// visionServer counts requests per path and answers with handle.
type visionServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

func newVisionServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, n int)) *visionServer {
	t.Helper()
	vs := &visionServer{}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vs.mu.Lock()
		vs.paths = append(vs.paths, r.URL.Path)
		n := len(vs.paths)
		vs.mu.Unlock()
		handle(w, r, n)
	}))
	t.Cleanup(vs.Close)
	return vs
}

func (vs *visionServer) requests() []string {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append([]string(nil), vs.paths...)
}

func newTestCloudVision(t *testing.T, srv *visionServer, versions ...string) *CloudVision {
	t.Helper()
	cv, err := NewCloudVision(CloudVisionConfig{
		Endpoint:      srv.URL,
		Key:           "test-key",
		APIVersions:   versions,
		Retry:         testRetry,
		UploadMaxSide: 2048,
		HTTPClient:    srv.Client(),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return cv
}

const windowObjectJSON = `{"objects":[{"object":"window","confidence":0.9,"rectangle":{"x":10,"y":10,"w":100,"h":100}}]}`

func TestNewCloudVision_NotConfigured(t *testing.T) {
	_, err := NewCloudVision(CloudVisionConfig{Endpoint: "https://example.test"}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewCloudVision(CloudVisionConfig{Key: "k"}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCloudVision_DetectWindowObject(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, "Objects,Description,Tags", r.URL.Query().Get("visualFeatures"))
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)
		_, _ = io.WriteString(w, windowObjectJSON)
	})
	cv := newTestCloudVision(t, srv, "v3.2")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	require.NoError(t, res.Err)
	assert.True(t, res.Accepted())
	assert.Equal(t, []string{"/vision/v3.2/analyze"}, srv.requests())

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, image.Rect(0, 0, 120, 120), res.Candidates[0].Rect)
	assert.Equal(t, "cloudvision/object", res.Candidates[0].Source)

	box, ok := mask.BoundingBox(res.Mask)
	require.True(t, ok)
	assert.True(t, image.Rect(10, 10, 110, 110).In(box), "padded box %v should contain the object", box)
	assert.True(t, box.In(image.Rect(0, 0, 200, 200)))
}

func TestCloudVision_VersionFallbackOn404(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if strings.Contains(r.URL.Path, "/v4.0/") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, windowObjectJSON)
	})
	cv := newTestCloudVision(t, srv, "v4.0", "v3.2")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"/vision/v4.0/analyze", "/vision/v3.2/analyze"}, srv.requests())
}

func TestCloudVision_RetriesRateLimit(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, windowObjectJSON)
	})
	cv := newTestCloudVision(t, srv, "v3.2")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	require.NoError(t, res.Err)
	assert.Len(t, srv.requests(), 2)
}

func TestCloudVision_RetryExhaustedMovesOn(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	cv := newTestCloudVision(t, srv, "v3.2", "v3.1")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	require.Error(t, res.Err)
	assert.False(t, res.OK())
	// Three attempts per version.
	assert.Len(t, srv.requests(), 6)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(res.Err))
}

func TestCloudVision_OtherClientErrorsMoveOn(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnsupportedMediaType} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
				if strings.Contains(r.URL.Path, "/v3.2/") {
					w.WriteHeader(code)
					return
				}
				_, _ = io.WriteString(w, windowObjectJSON)
			})
			cv := newTestCloudVision(t, srv, "v3.2", "v3.1")

			res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
			require.NoError(t, res.Err)
			// Not retried within a version, next version tried once.
			assert.Equal(t, []string{"/vision/v3.2/analyze", "/vision/v3.1/analyze"}, srv.requests())
		})
	}
}

func TestCloudVision_UnauthorizedIsTerminal(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	cv := newTestCloudVision(t, srv, "v3.2", "v3.1")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	require.Error(t, res.Err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(res.Err))
	assert.Len(t, srv.requests(), 1)
}

func TestCloudVision_InvalidJSON(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		_, _ = io.WriteString(w, "<html>oops</html>")
	})
	cv := newTestCloudVision(t, srv, "v3.2")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	assert.True(t, errors.Is(res.Err, ErrParse))
}

func TestCloudVision_NothingWindowLike(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		_, _ = io.WriteString(w, `{"objects":[{"object":"cup","confidence":0.9,"rectangle":{"x":1,"y":1,"w":5,"h":5}}],
			"description":{"captions":[{"text":"a cup on a table","confidence":0.9}]}}`)
	})
	cv := newTestCloudVision(t, srv, "v3.2")

	res := cv.Detect(context.Background(), whitePhoto(t, 200, 200))
	assert.True(t, errors.Is(res.Err, ErrNoWindow))
	assert.Nil(t, res.Mask)
}

func TestCloudVision_CancelledContext(t *testing.T) {
	srv := newVisionServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		_, _ = io.WriteString(w, windowObjectJSON)
	})
	cv := newTestCloudVision(t, srv, "v3.2", "v3.1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := cv.Detect(ctx, whitePhoto(t, 200, 200))
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestInterpretAnalysis_KeywordObjects(t *testing.T) {
	resp := &analyzeResponse{Objects: []visionObject{
		{Object: "Window", Confidence: 0.8, Rectangle: visionRect{X: 50, Y: 50, W: 20, H: 40}},
		{Object: "window pane", Confidence: 0.4, Rectangle: visionRect{X: 0, Y: 0, W: 10, H: 10}},
		{Object: "sofa", Confidence: 0.99, Rectangle: visionRect{X: 0, Y: 100, W: 150, H: 90}},
	}}

	got := interpretAnalysis(resp, 200, 200)
	require.Len(t, got, 1)
	assert.Equal(t, image.Rect(40, 40, 80, 100), got[0].Rect)
	assert.Equal(t, 0.8, got[0].Confidence)
}

func TestInterpretAnalysis_LargeObjects(t *testing.T) {
	resp := &analyzeResponse{Objects: []visionObject{
		{Object: "curtain", Confidence: 0.8, Rectangle: visionRect{X: 50, Y: 50, W: 100, H: 100}},
		{Object: "lamp", Confidence: 0.9, Rectangle: visionRect{X: 0, Y: 0, W: 20, H: 20}},
	}}

	got := interpretAnalysis(resp, 200, 200)
	require.Len(t, got, 1)
	assert.Equal(t, "cloudvision/large-object", got[0].Source)
	assert.Equal(t, largeObjectScore, got[0].Confidence)
	assert.Equal(t, image.Rect(40, 40, 160, 160), got[0].Rect)
}

func TestInterpretAnalysis_TaggedObjects(t *testing.T) {
	resp := &analyzeResponse{
		Objects: []visionObject{{Object: "curtain", Confidence: 0.8, Rectangle: visionRect{X: 50, Y: 50, W: 100, H: 100}}},
		Tags:    []visionLabel{{Name: "indoor", Confidence: 0.99}, {Name: "room", Confidence: 0.9}},
	}

	got := interpretAnalysis(resp, 200, 200)
	require.Len(t, got, 1)
	assert.Equal(t, "cloudvision/tagged-object", got[0].Source)
	assert.Equal(t, 0.8, got[0].Confidence)
}

func TestInterpretAnalysis_Caption(t *testing.T) {
	resp := &analyzeResponse{}
	resp.Description.Captions = []visionLabel{{Text: "A bright room with a large Window", Confidence: 0.75}}

	got := interpretAnalysis(resp, 200, 200)
	require.Len(t, got, 1)
	assert.Equal(t, image.Rect(50, 50, 150, 150), got[0].Rect)
	assert.Equal(t, captionScore, got[0].Confidence)

	resp.Description.Captions[0].Confidence = 0.5
	assert.Empty(t, interpretAnalysis(resp, 200, 200))
}

func TestAnalyzeURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"https://x.cognitiveservices.azure.com", "https://x.cognitiveservices.azure.com/vision/v3.2/analyze"},
		{"https://x.cognitiveservices.azure.com/", "https://x.cognitiveservices.azure.com/vision/v3.2/analyze"},
		{"https://x.cognitiveservices.azure.com/vision", "https://x.cognitiveservices.azure.com/vision/v3.2/analyze"},
		{" https://x.cognitiveservices.azure.com/vision/ ", "https://x.cognitiveservices.azure.com/vision/v3.2/analyze"},
	}

	for _, tt := range tests {
		got, err := analyzeURL(tt.endpoint, "v3.2")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, tt.want+"?"), "got %s", got)
		assert.Contains(t, got, "language=en")
	}
}

func TestPad(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 1000)

	// 10% of the shorter side when that exceeds 10px
	assert.Equal(t, image.Rect(280, 280, 720, 620), Pad(image.Rect(300, 300, 700, 600), bounds))
	// never less than 10px
	assert.Equal(t, image.Rect(40, 40, 70, 70), Pad(image.Rect(50, 50, 60, 60), bounds))
	// clipped to the image
	assert.Equal(t, image.Rect(0, 0, 15, 15), Pad(image.Rect(0, 0, 5, 5), bounds))
}
