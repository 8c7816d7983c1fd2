// Package config loads the server configuration from the environment and
// optional .env files.
//
// Configuration is read once at startup and passed down explicitly; no
// other package reads the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// Environment variable names.
const (
	EnvLogLevel           = "BLIND_TRYON_LOG_LEVEL"
	EnvAzureKey           = "AZURE_VISION_KEY"
	EnvAzureEndpoint      = "AZURE_VISION_ENDPOINT"
	EnvAzureVersions      = "AZURE_VISION_API_VERSIONS"
	EnvGeminiKey          = "GEMINI_API_KEY"
	EnvGeminiModel        = "GEMINI_MODEL"
	EnvGeminiEndpoint     = "GEMINI_ENDPOINT"
	EnvDetectorTimeout    = "DETECTOR_TIMEOUT"
	EnvDetectorMaxRetries = "DETECTOR_MAX_RETRIES"
	EnvDetectorRetryDelay = "DETECTOR_RETRY_DELAY"
	EnvLocalEdgeEnabled   = "LOCAL_EDGE_ENABLED"
	EnvLocalEdgeMaxSide   = "LOCAL_EDGE_MAX_SIDE"
	EnvEnsembleTimeout    = "ENSEMBLE_TIMEOUT"
	EnvMaskDir            = "MASK_DIR"
	EnvBlendAlpha         = "BLEND_ALPHA"
	EnvBlendShadow        = "BLEND_SHADOW"
)

// CloudVision holds the hosted image-analysis credentials.
type CloudVision struct {
	Endpoint    string
	Key         string
	APIVersions []string
}

// Generative holds the multimodal model credentials.
type Generative struct {
	Endpoint string
	Model    string
	Key      string
}

// Detector bounds remote calls.
type Detector struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// LocalEdge configures the offline backend.
type LocalEdge struct {
	Enabled bool
	MaxSide int
}

// Blend holds the default compositing strength.
type Blend struct {
	Alpha  float64
	Shadow float64
}

// Config is the complete server configuration.
type Config struct {
	LogLevel        string
	CloudVision     CloudVision
	Generative      Generative
	Detector        Detector
	LocalEdge       LocalEdge
	EnsembleTimeout time.Duration
	MaskDir         string
	Blend           Blend
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel: "info",
		CloudVision: CloudVision{
			APIVersions: []string{"v3.2", "v3.1", "v3.0", "v2.1"},
		},
		Generative: Generative{
			Endpoint: "https://generativelanguage.googleapis.com",
			Model:    "gemini-1.5-flash",
		},
		Detector: Detector{
			Timeout:    20 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		LocalEdge: LocalEdge{
			Enabled: true,
			MaxSide: 640,
		},
		EnsembleTimeout: 30 * time.Second,
		MaskDir:         "masks",
		Blend: Blend{
			Alpha:  0.85,
			Shadow: 0,
		},
	}
}

// Load reads envFiles into the process environment (without overriding
// variables that are already set) and then builds a Config from it. With
// no files, a .env in the working directory is used if present.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, errors.Wrap(err, "loading env file")
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function, starting from
// Default. All malformed values are reported together.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "%s", name))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			f, err := cast.ToFloat64E(strings.TrimSpace(v))
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "%s", name))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			b, err := cast.ToBoolE(strings.TrimSpace(v))
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "%s", name))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "%s", name))
				return
			}
			*dst = d
		}
	}

	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvAzureKey, &cfg.CloudVision.Key)
	str(EnvAzureEndpoint, &cfg.CloudVision.Endpoint)
	if v, ok := lookup(EnvAzureVersions); ok && strings.TrimSpace(v) != "" {
		cfg.CloudVision.APIVersions = splitList(v)
	}
	str(EnvGeminiKey, &cfg.Generative.Key)
	str(EnvGeminiModel, &cfg.Generative.Model)
	str(EnvGeminiEndpoint, &cfg.Generative.Endpoint)
	duration(EnvDetectorTimeout, &cfg.Detector.Timeout)
	integer(EnvDetectorMaxRetries, &cfg.Detector.MaxRetries)
	duration(EnvDetectorRetryDelay, &cfg.Detector.RetryDelay)
	boolean(EnvLocalEdgeEnabled, &cfg.LocalEdge.Enabled)
	integer(EnvLocalEdgeMaxSide, &cfg.LocalEdge.MaxSide)
	duration(EnvEnsembleTimeout, &cfg.EnsembleTimeout)
	str(EnvMaskDir, &cfg.MaskDir)
	float(EnvBlendAlpha, &cfg.Blend.Alpha)
	float(EnvBlendShadow, &cfg.Blend.Shadow)

	if errs != nil {
		return Config{}, errs
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs error
	if c.Detector.Timeout <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s must be positive", EnvDetectorTimeout))
	}
	if c.Detector.MaxRetries < 1 {
		errs = multierr.Append(errs, errors.Errorf("%s must be at least 1", EnvDetectorMaxRetries))
	}
	if c.Detector.RetryDelay < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s must not be negative", EnvDetectorRetryDelay))
	}
	if c.LocalEdge.MaxSide < 0 {
		errs = multierr.Append(errs, errors.Errorf("%s must not be negative", EnvLocalEdgeMaxSide))
	}
	if c.EnsembleTimeout <= 0 {
		errs = multierr.Append(errs, errors.Errorf("%s must be positive", EnvEnsembleTimeout))
	}
	if c.Blend.Alpha < 0 || c.Blend.Alpha > 1 {
		errs = multierr.Append(errs, errors.Errorf("%s must be within [0,1]", EnvBlendAlpha))
	}
	if c.Blend.Shadow < 0 || c.Blend.Shadow > 0.5 {
		errs = multierr.Append(errs, errors.Errorf("%s must be within [0,0.5]", EnvBlendShadow))
	}
	if strings.TrimSpace(c.MaskDir) == "" {
		errs = multierr.Append(errs, errors.Errorf("%s must not be empty", EnvMaskDir))
	}
	return errs
}

// parseDuration accepts Go durations ("1500ms") and bare numbers, which are
// read as seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return cast.ToDurationE(v)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
