// Package config holds the runtime settings of the OMR tools: detection
// tuning, classification policy, batch limits and the HTTP listener.
//
// Settings come from three layers, later ones winning:
//
//  1. Default()
//  2. an optional YAML file (path from OMR_MCP_CONFIG or the caller)
//  3. environment overrides: OMR_MCP_LOG_LEVEL, OMR_MCP_HTTP_ADDR,
//     OMR_MCP_WORKERS
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/omr-tools-mcp/internal/bubble"
	"github.com/ironsheep/omr-tools-mcp/internal/detection"
	"github.com/ironsheep/omr-tools-mcp/internal/rectify"
)

// Environment variables read by FromEnv and ApplyEnv.
const (
	EnvConfigPath = "OMR_MCP_CONFIG"
	EnvLogLevel   = "OMR_MCP_LOG_LEVEL"
	EnvHTTPAddr   = "OMR_MCP_HTTP_ADDR"
	EnvWorkers    = "OMR_MCP_WORKERS"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Boundary   BoundaryConfig   `yaml:"boundary"`
	Rectify    RectifyConfig    `yaml:"rectify"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Batch      BatchConfig      `yaml:"batch"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// BoundaryConfig tunes sheet boundary detection.
type BoundaryConfig struct {
	MaxDimension  int     `yaml:"max_dimension"`
	BlurSigma     float64 `yaml:"blur_sigma"`
	CannyLow      float64 `yaml:"canny_low"`
	CannyHigh     float64 `yaml:"canny_high"`
	AdaptiveBlock int     `yaml:"adaptive_block"`
	AdaptiveC     float64 `yaml:"adaptive_c"`
	EpsilonFactor float64 `yaml:"epsilon_factor"`
	RefineBand    int     `yaml:"refine_band"`
}

// RectifyConfig tunes perspective correction.
type RectifyConfig struct {
	MinSide int `yaml:"min_side"`

	// AlignedInput skips boundary detection and rectification; images are
	// classified as given (pre-cropped scans).
	AlignedInput bool `yaml:"aligned_input"`
}

// ClassifierConfig tunes bubble classification.
type ClassifierConfig struct {
	Threshold         int    `yaml:"threshold"`
	AutoThreshold     bool   `yaml:"auto_threshold"`
	HalfSize          int    `yaml:"half_size"`
	EvidenceThreshold int    `yaml:"evidence_threshold"`
	DominanceMargin   int    `yaml:"dominance_margin"`
	Policy            string `yaml:"policy"`
}

// BatchConfig limits batch processing.
type BatchConfig struct {
	// Workers is the number of sheets processed in parallel. Zero means one
	// per logical CPU.
	Workers int `yaml:"workers"`

	// SheetTimeout bounds the processing time of a single sheet.
	SheetTimeout time.Duration `yaml:"sheet_timeout"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	MaxUploadMB  int      `yaml:"max_upload_mb"`

	// MaxMegapixels bounds the decoded size of an uploaded image.
	MaxMegapixels int `yaml:"max_megapixels"`
}

// Default returns the built-in configuration.
func Default() *Config {
	b := detection.DefaultOptions()
	c := bubble.DefaultOptions()
	return &Config{
		LogLevel: "info",
		Boundary: BoundaryConfig{
			MaxDimension:  b.MaxDimension,
			BlurSigma:     b.BlurSigma,
			CannyLow:      b.CannyLow,
			CannyHigh:     b.CannyHigh,
			AdaptiveBlock: b.AdaptiveBlock,
			AdaptiveC:     b.AdaptiveC,
			EpsilonFactor: b.EpsilonFactor,
			RefineBand:    b.RefineBand,
		},
		Rectify: RectifyConfig{MinSide: rectify.DefaultMinSide},
		Classifier: ClassifierConfig{
			Threshold:         int(c.Threshold),
			HalfSize:          c.HalfSize,
			EvidenceThreshold: c.EvidenceThreshold,
			DominanceMargin:   c.DominanceMargin,
			Policy:            c.Policy.String(),
		},
		Batch: BatchConfig{SheetTimeout: 30 * time.Second},
		HTTP: HTTPConfig{
			Addr:          ":8080",
			AllowOrigins:  []string{"*"},
			MaxUploadMB:   32,
			MaxMegapixels: 64,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. Environment overrides are not applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads the file named by OMR_MCP_CONFIG (if set), applies the
// environment overrides and validates the result.
func FromEnv() (*Config, error) {
	cfg, err := Load(os.Getenv(EnvConfigPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables looked up with
// getenv. Unset or empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Batch.Workers = n
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, err := c.SlogLevel()
	check(err == nil, "log_level %q is not one of debug, info, warn, error", c.LogLevel)

	b := c.Boundary
	check(b.MaxDimension >= 0, "boundary.max_dimension must not be negative")
	check(b.BlurSigma > 0, "boundary.blur_sigma must be positive")
	check(b.CannyLow >= 0 && b.CannyLow <= b.CannyHigh, "boundary.canny_low must be between 0 and canny_high")
	check(b.AdaptiveBlock >= 3 && b.AdaptiveBlock%2 == 1, "boundary.adaptive_block must be an odd number >= 3")
	check(b.EpsilonFactor > 0 && b.EpsilonFactor < 1, "boundary.epsilon_factor must be in (0, 1)")
	check(b.RefineBand >= 0, "boundary.refine_band must not be negative")

	check(c.Rectify.MinSide >= 1, "rectify.min_side must be at least 1")

	cl := c.Classifier
	check(cl.Threshold >= 1 && cl.Threshold <= 255, "classifier.threshold must be in [1, 255]")
	check(cl.HalfSize >= 1, "classifier.half_size must be at least 1")
	check(cl.EvidenceThreshold >= 0, "classifier.evidence_threshold must not be negative")
	check(cl.DominanceMargin >= 0, "classifier.dominance_margin must not be negative")
	_, err = bubble.ParsePolicy(cl.Policy)
	check(err == nil, "classifier.policy %q is not one of dominance, most-filled", cl.Policy)

	check(c.Batch.Workers >= 0, "batch.workers must not be negative")
	check(c.Batch.SheetTimeout >= 0, "batch.sheet_timeout must not be negative")
	check(c.HTTP.MaxUploadMB > 0, "http.max_upload_mb must be positive")
	check(c.HTTP.MaxMegapixels > 0, "http.max_megapixels must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel converts LogLevel for log/slog.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(c.LogLevel))))
	return level, err
}

// BoundaryOptions returns the detection options.
func (c *Config) BoundaryOptions() detection.Options {
	b := c.Boundary
	return detection.Options{
		MaxDimension:  b.MaxDimension,
		BlurSigma:     b.BlurSigma,
		CannyLow:      b.CannyLow,
		CannyHigh:     b.CannyHigh,
		AdaptiveBlock: b.AdaptiveBlock,
		AdaptiveC:     b.AdaptiveC,
		EpsilonFactor: b.EpsilonFactor,
		RefineBand:    b.RefineBand,
	}
}

// RectifyOptions returns the rectification options.
func (c *Config) RectifyOptions() rectify.Options {
	return rectify.Options{MinSide: c.Rectify.MinSide}
}

// ClassifierOptions returns the classification options. An unknown policy
// falls back to the default; Validate reports it.
func (c *Config) ClassifierOptions() bubble.Options {
	cl := c.Classifier
	policy, err := bubble.ParsePolicy(cl.Policy)
	if err != nil {
		policy = bubble.PolicyDominance
	}
	return bubble.Options{
		Threshold:         uint8(min(max(cl.Threshold, 0), 255)),
		AutoThreshold:     cl.AutoThreshold,
		HalfSize:          cl.HalfSize,
		EvidenceThreshold: cl.EvidenceThreshold,
		DominanceMargin:   cl.DominanceMargin,
		Policy:            policy,
	}
}
