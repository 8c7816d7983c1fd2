package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// GenerativeName identifies the multimodal LLM backend.
const GenerativeName = "generative"

// windowPrompt asks for whole-window boxes, frame included, as bare JSON.
const windowPrompt = `Analyze this image and identify all windows.
For each window, identify the ENTIRE window area (including frame) that should be covered by blinds.

Return a JSON response in this format:
{
  "windows": [
    {
      "full_window": {"x": 0, "y": 0, "width": 100, "height": 100}
    }
  ]
}

Coordinates are in pixels of the supplied image (%dx%d).
The full_window should cover the entire window area including the frame, not just individual panes.
Only return the JSON, no other text.`

// GenerativeConfig holds the credentials and limits of a Generative backend.
type GenerativeConfig struct {
	Endpoint      string
	Model         string
	Key           string
	Retry         RetryPolicy
	UploadMaxSide int
	HTTPClient    *http.Client
}

// Generative asks a multimodal model for window boxes in JSON.
type Generative struct {
	cfg    GenerativeConfig
	client *http.Client
	logger *zap.Logger
}

// NewGenerative returns ErrNotConfigured when the key, endpoint or model is
// empty.
func NewGenerative(cfg GenerativeConfig, logger *zap.Logger) (*Generative, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.Wrap(ErrNotConfigured, "generative needs an api key")
	}
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, errors.Wrap(ErrNotConfigured, "generative needs an endpoint and a model")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generative{cfg: cfg, client: client, logger: logger.Named(GenerativeName)}, nil
}

// Name implements Detector.
func (g *Generative) Name() string { return GenerativeName }

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig map[string]string `json:"generationConfig,omitempty"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Detect implements Detector.
func (g *Generative) Detect(ctx context.Context, photo *imaging.Photo) Result {
	up, err := imaging.PrepareUpload(photo, g.cfg.UploadMaxSide)
	if err != nil {
		return Failure(GenerativeName, err)
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []generateContent{{Parts: []generatePart{
			{Text: fmt.Sprintf(windowPrompt, up.Width, up.Height)},
			{InlineData: &inlineData{MimeType: up.MIMEType, Data: base64.StdEncoding.EncodeToString(up.Data)}},
		}}},
		GenerationConfig: map[string]string{"response_mime_type": "application/json"},
	})
	if err != nil {
		return Failure(GenerativeName, errors.Wrap(err, "encoding request"))
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/v1beta/models/" + url.PathEscape(g.cfg.Model) + ":generateContent"
	body, err := send(ctx, g.client, g.cfg.Retry, g.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.cfg.Key)
		return req, nil
	})
	if err != nil {
		return Failure(GenerativeName, err)
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Failure(GenerativeName, errors.Wrapf(ErrParse, "envelope: %v", err))
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Failure(GenerativeName, errors.Wrap(ErrParse, "response has no text"))
	}

	rects, err := ParseWindows(resp.Candidates[0].Content.Parts[0].Text, up.Width, up.Height)
	if err != nil {
		return Failure(GenerativeName, err)
	}
	if len(rects) == 0 {
		return Failure(GenerativeName, errors.Wrap(ErrNoWindow, "model listed no windows"))
	}

	candidates := make([]Candidate, 0, len(rects))
	for _, r := range rects {
		candidates = append(candidates, Candidate{Rect: r, Confidence: 1, Source: GenerativeName})
	}
	return Success(GenerativeName, rasterize(candidates, up.Width, up.Height), candidates, true)
}

// windowBox accepts the shapes models actually return: a flat box, a box
// nested under full_window, or box_2d as [ymin, xmin, ymax, xmax] on a
// 0-1000 scale.
type windowBox struct {
	X          *float64   `json:"x"`
	Y          *float64   `json:"y"`
	Width      *float64   `json:"width"`
	Height     *float64   `json:"height"`
	FullWindow *windowBox `json:"full_window"`
	Box2D      []float64  `json:"box_2d"`
}

func (b *windowBox) rect(width, height int) (image.Rectangle, bool) {
	switch {
	case b.FullWindow != nil:
		return b.FullWindow.rect(width, height)
	case len(b.Box2D) == 4:
		sx, sy := float64(width)/1000, float64(height)/1000
		return image.Rect(
			int(math.Round(b.Box2D[1]*sx)), int(math.Round(b.Box2D[0]*sy)),
			int(math.Round(b.Box2D[3]*sx)), int(math.Round(b.Box2D[2]*sy)),
		), true
	case b.X != nil && b.Y != nil && b.Width != nil && b.Height != nil:
		x, y := int(math.Round(*b.X)), int(math.Round(*b.Y))
		return image.Rect(x, y, x+int(math.Round(*b.Width)), y+int(math.Round(*b.Height))), true
	}
	return image.Rectangle{}, false
}

// ParseWindows extracts window rectangles from model output text, clipped to
// width x height. Markdown code fences are tolerated. Text that is not JSON
// yields an error wrapping ErrParse; valid JSON with no usable boxes yields
// an empty slice.
func ParseWindows(text string, width, height int) ([]image.Rectangle, error) {
	text = stripFences(text)

	var boxes []windowBox
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &boxes); err != nil {
			return nil, errors.Wrapf(ErrParse, "%v", err)
		}
	} else {
		var doc struct {
			Windows []windowBox `json:"windows"`
		}
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, errors.Wrapf(ErrParse, "%v", err)
		}
		boxes = doc.Windows
	}

	bounds := image.Rect(0, 0, width, height)
	var rects []image.Rectangle
	for i := range boxes {
		r, ok := boxes[i].rect(width, height)
		if !ok {
			continue
		}
		r = r.Canon().Intersect(bounds)
		if r.Empty() {
			continue
		}
		rects = append(rects, r)
	}
	return rects, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
