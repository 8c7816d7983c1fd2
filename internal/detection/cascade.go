package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SyntheticName is reported as the backend when no detector produced a mask
// and the center region was synthesized.
const SyntheticName = "synthetic"

// Attempt records one detector invocation.
type Attempt struct {
	Backend  string
	Found    bool
	Err      error
	Duration time.Duration
}

// Outcome is the final result of a detection run.
type Outcome struct {
	// Mask is normalized and matches the photo size.
	Mask *image.Gray
	// Backend produced Mask, or SyntheticName.
	Backend string
	// Found is true only when the producing backend claimed a real window.
	Found     bool
	Synthetic bool
	// Candidates are in photo coordinates.
	Candidates []Candidate
	Attempts   []Attempt
}

// Err combines every attempt failure. It is diagnostic only: an Outcome
// always carries a usable mask.
func (o *Outcome) Err() error {
	var err error
	for _, a := range o.Attempts {
		if a.Err != nil {
			err = multierr.Append(err, errors.Wrap(a.Err, a.Backend))
		}
	}
	return err
}

// Coverage returns the percentage of the photo the mask covers.
func (o *Outcome) Coverage() float64 {
	return mask.CoveragePercent(o.Mask)
}

// Cascade tries detectors one at a time in priority order and stops at the
// first one that reports a found window.
type Cascade struct {
	detectors []Detector
	maskOpts  mask.Options
	logger    *zap.Logger
}

// NewCascade returns a cascade over detectors, highest priority first. An
// empty list is valid: every run then yields the synthetic center mask.
func NewCascade(detectors []Detector, logger *zap.Logger) *Cascade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{
		detectors: append([]Detector(nil), detectors...),
		maskOpts:  mask.DefaultOptions,
		logger:    logger.Named("cascade"),
	}
}

// WithMaskOptions sets the normalization applied to the chosen mask.
func (c *Cascade) WithMaskOptions(opts mask.Options) *Cascade {
	c.maskOpts = opts
	return c
}

// Names lists the detectors in priority order.
func (c *Cascade) Names() []string {
	return detectorNames(c.detectors)
}

// DetectBytes decodes data and runs Detect. The only error it returns wraps
// imaging.ErrImageDecode.
func (c *Cascade) DetectBytes(ctx context.Context, data []byte) (*Outcome, error) {
	photo, err := imaging.DecodePhoto(data)
	if err != nil {
		return nil, err
	}
	return c.Detect(ctx, photo), nil
}

// Detect runs the detectors sequentially. A detector is only called after
// every higher-priority one failed or reported a guess. Cancelling ctx stops
// the run after the in-flight detector returns; the best mask so far is
// still returned.
func (c *Cascade) Detect(ctx context.Context, photo *imaging.Photo) *Outcome {
	results := make([]Result, 0, len(c.detectors))
	attempts := make([]Attempt, 0, len(c.detectors))

	for _, d := range c.detectors {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("detection abandoned", zap.Error(err))
			break
		}

		start := time.Now()
		res := safeDetect(ctx, d, photo)
		attempts = append(attempts, attemptOf(res, time.Since(start)))
		results = append(results, res)
		logResult(c.logger, res, time.Since(start))

		if res.Accepted() {
			break
		}
	}

	return finalize(photo, results, attempts, c.maskOpts, c.logger)
}

// safeDetect calls d.Detect and turns a panic into a failed result.
func safeDetect(ctx context.Context, d Detector, photo *imaging.Photo) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(d.Name(), errors.Errorf("%s panicked: %s", d.Name(), fmt.Sprint(r)))
		}
	}()
	res = d.Detect(ctx, photo)
	if res.Backend == "" {
		res.Backend = d.Name()
	}
	return res
}

func attemptOf(res Result, d time.Duration) Attempt {
	a := Attempt{Backend: res.Backend, Found: res.Accepted(), Err: res.Err, Duration: d}
	if res.Err == nil && !res.OK() {
		a.Err = errors.New("empty mask")
	}
	return a
}

func logResult(logger *zap.Logger, res Result, d time.Duration) {
	switch {
	case res.Accepted():
		logger.Info("window found",
			zap.String("backend", res.Backend),
			zap.Int("candidates", len(res.Candidates)),
			zap.Duration("took", d))
	case res.OK():
		logger.Info("backend returned a guess", zap.String("backend", res.Backend), zap.Duration("took", d))
	default:
		logger.Warn("backend failed",
			zap.String("backend", res.Backend),
			zap.String("reason", res.Reason()),
			zap.Duration("took", d))
	}
}

// choose picks the result to use from results in priority order: the first
// accepted one, else the last one that produced any mask, else nil.
func choose(results []Result) *Result {
	for i := range results {
		if results[i].Accepted() {
			return &results[i]
		}
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].OK() {
			return &results[i]
		}
	}
	return nil
}

// finalize normalizes the chosen mask to the photo or synthesizes the
// center mask when nothing usable exists.
func finalize(photo *imaging.Photo, results []Result, attempts []Attempt, opts mask.Options, logger *zap.Logger) *Outcome {
	w, h := photo.Width(), photo.Height()
	out := &Outcome{Attempts: attempts}

	chosen := choose(results)
	if chosen == nil {
		logger.Warn("no detector produced a mask, using center region", zap.Int("attempts", len(attempts)))
		out.Backend = SyntheticName
		out.Synthetic = true
		out.Mask = mask.Normalize(mask.Center(w, h), w, h, opts)
		out.Candidates = []Candidate{{Rect: mask.CenterRect(w, h), Confidence: 0, Source: SyntheticName}}
		return out
	}

	mb := chosen.Mask.Bounds()
	out.Backend = chosen.Backend
	out.Found = chosen.Found
	out.Mask = mask.Normalize(chosen.Mask, w, h, opts)
	out.Candidates = scaleCandidates(chosen.Candidates,
		float64(w)/float64(mb.Dx()), float64(h)/float64(mb.Dy()), image.Rect(0, 0, w, h))
	return out
}

func scaleCandidates(in []Candidate, sx, sy float64, bounds image.Rectangle) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		r := c.Rect
		c.Rect = image.Rect(
			int(math.Floor(float64(r.Min.X)*sx)), int(math.Floor(float64(r.Min.Y)*sy)),
			int(math.Ceil(float64(r.Max.X)*sx)), int(math.Ceil(float64(r.Max.Y)*sy)),
		).Intersect(bounds)
		out = append(out, c)
	}
	return out
}

func detectorNames(detectors []Detector) []string {
	names := make([]string, 0, len(detectors))
	for _, d := range detectors {
		names = append(names, d.Name())
	}
	return names
}
