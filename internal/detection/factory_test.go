package detection

import (
	"testing"

	"github.com/ironsheep/blind-tryon-mcp/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestFromConfig_Defaults(t *testing.T) {
	detectors := FromConfig(config.Default(), nil, zaptest.NewLogger(t))
	assert.Equal(t, []string{LocalEdgeName}, detectorNames(detectors))
}

func TestFromConfig_AllBackends(t *testing.T) {
	cfg := config.Default()
	cfg.CloudVision.Endpoint = "https://vision.example.test"
	cfg.CloudVision.Key = "k1"
	cfg.Generative.Key = "k2"

	detectors := FromConfig(cfg, nil, zaptest.NewLogger(t))
	assert.Equal(t, []string{CloudVisionName, GenerativeName, LocalEdgeName}, detectorNames(detectors))

	cv := detectors[0].(*CloudVision)
	assert.Equal(t, cfg.Detector.Timeout, cv.cfg.Retry.Timeout)
	assert.Equal(t, cfg.Detector.MaxRetries, cv.cfg.Retry.MaxAttempts)
	assert.Equal(t, UploadMaxSide, cv.cfg.UploadMaxSide)
}

func TestFromConfig_LocalEdgeDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.LocalEdge.Enabled = false
	cfg.Generative.Key = "k2"

	detectors := FromConfig(cfg, nil, nil)
	assert.Equal(t, []string{GenerativeName}, detectorNames(detectors))
}
