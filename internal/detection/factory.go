package detection

import (
	"net/http"

	"github.com/ironsheep/blind-tryon-mcp/internal/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// UploadMaxSide bounds photos sent to remote detectors. Larger photos are
// downscaled and re-encoded first.
const UploadMaxSide = 2048

// FromConfig builds the detectors cfg enables, in priority order: cloud
// vision, generative, local edge. Backends without credentials are skipped
// with a warning; that is a static decision, not a runtime failure.
func FromConfig(cfg config.Config, client *http.Client, logger *zap.Logger) []Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := RetryPolicy{
		Timeout:     cfg.Detector.Timeout,
		MaxAttempts: cfg.Detector.MaxRetries,
		Delay:       cfg.Detector.RetryDelay,
	}

	var detectors []Detector
	skip := func(name string, err error) {
		if errors.Is(err, ErrNotConfigured) {
			logger.Warn("detector not configured, skipping", zap.String("backend", name), zap.Error(err))
			return
		}
		logger.Error("detector setup failed, skipping", zap.String("backend", name), zap.Error(err))
	}

	cv, err := NewCloudVision(CloudVisionConfig{
		Endpoint:      cfg.CloudVision.Endpoint,
		Key:           cfg.CloudVision.Key,
		APIVersions:   cfg.CloudVision.APIVersions,
		Retry:         retry,
		UploadMaxSide: UploadMaxSide,
		HTTPClient:    client,
	}, logger)
	if err != nil {
		skip(CloudVisionName, err)
	} else {
		detectors = append(detectors, cv)
	}

	gen, err := NewGenerative(GenerativeConfig{
		Endpoint:      cfg.Generative.Endpoint,
		Model:         cfg.Generative.Model,
		Key:           cfg.Generative.Key,
		Retry:         retry,
		UploadMaxSide: UploadMaxSide,
		HTTPClient:    client,
	}, logger)
	if err != nil {
		skip(GenerativeName, err)
	} else {
		detectors = append(detectors, gen)
	}

	if cfg.LocalEdge.Enabled {
		detectors = append(detectors, NewLocalEdge(LocalEdgeConfig{MaxSide: cfg.LocalEdge.MaxSide}, logger))
	} else {
		logger.Info("local edge detector disabled")
	}

	return detectors
}
