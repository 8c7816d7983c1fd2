package overlay

import (
	"github.com/pkg/errors"
)

// MaxShadow bounds ShadowIntensity.
const MaxShadow = 0.5

// BlendConfig controls compositing strength. It is built per request.
type BlendConfig struct {
	// Alpha is the overlay opacity inside the mask, in [0,1]. Zero returns
	// the photo unchanged.
	Alpha float64
	// ShadowIntensity darkens a soft halo around the mask, in [0,0.5]. Zero
	// skips the shadow pass.
	ShadowIntensity float64
}

// DefaultBlend matches the configuration defaults.
var DefaultBlend = BlendConfig{Alpha: 0.85}

// Validate reports values outside the allowed ranges.
func (c BlendConfig) Validate() error {
	if c.Alpha < 0 || c.Alpha > 1 {
		return errors.Errorf("alpha must be within [0,1], got %g", c.Alpha)
	}
	if c.ShadowIntensity < 0 || c.ShadowIntensity > MaxShadow {
		return errors.Errorf("shadow intensity must be within [0,%g], got %g", MaxShadow, c.ShadowIntensity)
	}
	return nil
}

// Clamped returns c with both fields forced into range.
func (c BlendConfig) Clamped() BlendConfig {
	return BlendConfig{
		Alpha:           clampFloat(c.Alpha, 0, 1),
		ShadowIntensity: clampFloat(c.ShadowIntensity, 0, MaxShadow),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	switch {
	case v != v: // NaN
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
