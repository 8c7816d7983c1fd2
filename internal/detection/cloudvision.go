package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/url"
	"strings"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CloudVisionName identifies the cloud object-detection backend.
const CloudVisionName = "cloudvision"

// WindowKeywords are matched as substrings of lower-cased object labels and
// captions.
var WindowKeywords = []string{"window", "glass", "pane", "frame", "fenêtre", "ventana"}

// sceneTags are image tags that make large unlabeled objects plausible
// windows.
var sceneTags = []string{"window", "glass", "interior", "room"}

const (
	objectMinConfidence  = 0.5
	tagMinConfidence     = 0.7
	captionMinConfidence = 0.7
	largeObjectFraction  = 0.10
	largeObjectScore     = 0.3
	captionScore         = 0.2
)

// CloudVisionConfig holds the credentials and limits of a CloudVision
// backend.
type CloudVisionConfig struct {
	Endpoint string
	Key      string
	// APIVersions are tried in order; a 404 moves on to the next one.
	APIVersions   []string
	Retry         RetryPolicy
	UploadMaxSide int
	HTTPClient    *http.Client
}

// CloudVision asks a hosted image-analysis API for objects, captions and
// tags, then turns whatever looks like a window into candidates.
type CloudVision struct {
	cfg    CloudVisionConfig
	client *http.Client
	logger *zap.Logger
}

// NewCloudVision returns ErrNotConfigured when the endpoint or key is empty.
func NewCloudVision(cfg CloudVisionConfig, logger *zap.Logger) (*CloudVision, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.Wrap(ErrNotConfigured, "cloudvision needs an endpoint and a key")
	}
	if len(cfg.APIVersions) == 0 {
		cfg.APIVersions = []string{"v3.2"}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudVision{cfg: cfg, client: client, logger: logger.Named(CloudVisionName)}, nil
}

// Name implements Detector.
func (c *CloudVision) Name() string { return CloudVisionName }

// Detect implements Detector.
func (c *CloudVision) Detect(ctx context.Context, photo *imaging.Photo) Result {
	up, err := imaging.PrepareUpload(photo, c.cfg.UploadMaxSide)
	if err != nil {
		return Failure(CloudVisionName, err)
	}

	var errs error
	for _, version := range c.cfg.APIVersions {
		body, err := c.analyze(ctx, version, up)
		if err == nil {
			return c.interpret(body, up.Width, up.Height)
		}

		code := StatusCode(err)
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			// Credentials are wrong for every version.
			return Failure(CloudVisionName, errors.Wrapf(err, "api %s", version))
		case ctx.Err() != nil:
			return Failure(CloudVisionName, ctx.Err())
		}
		c.logger.Debug("api version failed", zap.String("version", version), zap.Error(err))
		errs = multierr.Append(errs, errors.Wrapf(err, "api %s", version))
	}
	return Failure(CloudVisionName, errs)
}

func (c *CloudVision) analyze(ctx context.Context, version string, up *imaging.Upload) ([]byte, error) {
	endpoint, err := analyzeURL(c.cfg.Endpoint, version)
	if err != nil {
		return nil, err
	}
	return send(ctx, c.client, c.cfg.Retry, c.logger, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(up.Data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	})
}

// analyzeURL builds the analyze URL for one API version. Endpoints that
// already include the /vision path segment are used as the base directly.
func analyzeURL(endpoint, version string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	var path string
	if strings.Contains(base, "/vision") {
		path = base + "/" + version + "/analyze"
	} else {
		path = base + "/vision/" + version + "/analyze"
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrap(err, "invalid endpoint")
	}
	q := u.Query()
	q.Set("visualFeatures", "Objects,Description,Tags")
	q.Set("language", "en")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type visionRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r visionRect) rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

type visionObject struct {
	Object     string     `json:"object"`
	Confidence float64    `json:"confidence"`
	Rectangle  visionRect `json:"rectangle"`
}

type visionLabel struct {
	Text       string  `json:"text"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type analyzeResponse struct {
	Objects     []visionObject `json:"objects"`
	Description struct {
		Captions []visionLabel `json:"captions"`
	} `json:"description"`
	Tags []visionLabel `json:"tags"`
}

func (c *CloudVision) interpret(body []byte, width, height int) Result {
	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Failure(CloudVisionName, errors.Wrapf(ErrParse, "%v", err))
	}

	candidates := interpretAnalysis(&resp, width, height)
	if len(candidates) == 0 {
		return Failure(CloudVisionName, errors.Wrap(ErrNoWindow, "no window-like objects, tags or captions"))
	}
	c.logger.Debug("interpreted analysis",
		zap.Int("objects", len(resp.Objects)),
		zap.Int("candidates", len(candidates)),
		zap.String("strategy", candidates[0].Source))
	return Success(CloudVisionName, rasterize(candidates, width, height), candidates, true)
}

// interpretAnalysis applies the window heuristics to an analysis response, in
// order, stopping at the first strategy that yields anything:
//
//  1. objects labeled with a window keyword (confidence > 0.5)
//  2. objects covering more than 10% of the image; trusted at their own
//     confidence when a window-ish scene tag is present, otherwise scored low
//  3. a caption mentioning a window (confidence >= 0.7) yields the centered
//     half-size region
//
// Box candidates are padded; the caption region is not.
func interpretAnalysis(resp *analyzeResponse, width, height int) []Candidate {
	bounds := image.Rect(0, 0, width, height)
	var out []Candidate

	for _, obj := range resp.Objects {
		if obj.Confidence > objectMinConfidence && containsKeyword(obj.Object, WindowKeywords) {
			out = append(out, Candidate{
				Rect:       Pad(obj.Rectangle.rect(), bounds),
				Confidence: obj.Confidence,
				Source:     CloudVisionName + "/object",
			})
		}
	}
	if len(out) > 0 {
		return out
	}

	sceneTagged := false
	for _, tag := range resp.Tags {
		if tag.Confidence > tagMinConfidence && containsKeyword(tag.Name, sceneTags) {
			sceneTagged = true
			break
		}
	}
	imageArea := float64(width * height)
	for _, obj := range resp.Objects {
		r := obj.Rectangle.rect().Intersect(bounds)
		if float64(r.Dx()*r.Dy()) <= imageArea*largeObjectFraction {
			continue
		}
		score := largeObjectScore
		source := CloudVisionName + "/large-object"
		if sceneTagged {
			score = obj.Confidence
			source = CloudVisionName + "/tagged-object"
		}
		out = append(out, Candidate{Rect: Pad(r, bounds), Confidence: score, Source: source})
	}
	if len(out) > 0 {
		return out
	}

	for _, caption := range resp.Description.Captions {
		if caption.Confidence >= captionMinConfidence && containsKeyword(caption.Text, WindowKeywords) {
			return []Candidate{{
				Rect:       mask.CenterRect(width, height),
				Confidence: captionScore,
				Source:     CloudVisionName + "/caption",
			}}
		}
	}
	return nil
}

func containsKeyword(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
