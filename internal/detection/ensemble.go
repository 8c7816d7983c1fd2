package detection

import (
	"context"
	"time"

	"github.com/ironsheep/blind-tryon-mcp/internal/imaging"
	"github.com/ironsheep/blind-tryon-mcp/internal/mask"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ensemble runs every detector concurrently and, once all have finished or
// timed out, picks a result with the same fixed priority as Cascade. A
// lower-priority success never beats a higher-priority one, whatever the
// confidences. It trades API spend for latency.
type Ensemble struct {
	detectors []Detector
	timeout   time.Duration
	maskOpts  mask.Options
	logger    *zap.Logger
}

// NewEnsemble returns an ensemble over detectors, highest priority first.
// timeout bounds each detector individually; zero means no bound beyond the
// caller's context.
func NewEnsemble(detectors []Detector, timeout time.Duration, logger *zap.Logger) *Ensemble {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensemble{
		detectors: append([]Detector(nil), detectors...),
		timeout:   timeout,
		maskOpts:  mask.DefaultOptions,
		logger:    logger.Named("ensemble"),
	}
}

// Names lists the detectors in priority order.
func (e *Ensemble) Names() []string {
	return detectorNames(e.detectors)
}

// Detect implements the ensemble run. Like Cascade.Detect it always returns
// an Outcome with a mask.
func (e *Ensemble) Detect(ctx context.Context, photo *imaging.Photo) *Outcome {
	results := make([]Result, len(e.detectors))
	attempts := make([]Attempt, len(e.detectors))

	var g errgroup.Group
	for i, d := range e.detectors {
		i, d := i, d
		g.Go(func() error {
			start := time.Now()
			res := e.detectWithin(ctx, d, photo)
			results[i] = res
			attempts[i] = attemptOf(res, time.Since(start))
			logResult(e.logger, res, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return finalize(photo, results, attempts, e.maskOpts, e.logger)
}

// detectWithin returns a failure if d has not answered within the timeout,
// even when d ignores its context. The late answer is discarded.
func (e *Ensemble) detectWithin(ctx context.Context, d Detector, photo *imaging.Photo) Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan Result, 1)
	go func() {
		done <- safeDetect(ctx, d, photo)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Failure(d.Name(), errors.Wrap(ctx.Err(), "no answer in time"))
	}
}
