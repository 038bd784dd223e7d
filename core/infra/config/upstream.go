package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpstreamTimeout bounds every upstream call unless overridden.
const DefaultUpstreamTimeout = 12000 * time.Millisecond

const (
	envEvaluateURL       = "EVALUATE_URL"
	envFixURL            = "FIX_URL"
	envUpstreamTimeoutMS = "UPSTREAM_TIMEOUT_MS"
	envEvaluateTimeoutMS = "EVALUATE_TIMEOUT_MS"
	envFixTimeoutMS      = "FIX_TIMEOUT_MS"
)

// UpstreamConfig points at the external evaluate/fix services. An empty URL
// means the endpoint is not configured.
type UpstreamConfig struct {
	EvaluateURL string
	FixURL      string
	// Timeout applies to both operations; zero means DefaultUpstreamTimeout.
	Timeout          time.Duration
	EvaluateOverride time.Duration
	FixOverride      time.Duration
}

type upstreamFile struct {
	EvaluateURL       string `yaml:"evaluate_url"`
	FixURL            string `yaml:"fix_url"`
	TimeoutMS         int64  `yaml:"timeout_ms"`
	EvaluateTimeoutMS int64  `yaml:"evaluate_timeout_ms"`
	FixTimeoutMS      int64  `yaml:"fix_timeout_ms"`
}

// EvaluateTimeout resolves the evaluate override, then the shared timeout,
// then the default.
func (c UpstreamConfig) EvaluateTimeout() time.Duration {
	return firstPositive(c.EvaluateOverride, c.Timeout, DefaultUpstreamTimeout)
}

// FixTimeout resolves the fix override, then the shared timeout, then the
// default.
func (c UpstreamConfig) FixTimeout() time.Duration {
	return firstPositive(c.FixOverride, c.Timeout, DefaultUpstreamTimeout)
}

// LoadUpstream reads an optional YAML file and layers environment values on
// top. An empty path skips the file.
func LoadUpstream(path string) (*UpstreamConfig, error) {
	cfg := &UpstreamConfig{}
	if path != "" {
		// #nosec G304 -- upstream config path is operator-provided.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read upstream config: %w", err)
		}
		parsed, err := ParseUpstream(data)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	applyUpstreamEnv(cfg)
	return cfg, nil
}

// ParseUpstream parses upstream YAML after validating it against the
// embedded schema. Timeouts <= 0 are treated as unset.
func ParseUpstream(data []byte) (*UpstreamConfig, error) {
	if err := validateConfigSchema("upstream", upstreamSchemaFile, data); err != nil {
		return nil, err
	}
	var file upstreamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse upstream config: %w", err)
	}
	return &UpstreamConfig{
		EvaluateURL:      strings.TrimSpace(file.EvaluateURL),
		FixURL:           strings.TrimSpace(file.FixURL),
		Timeout:          millis(file.TimeoutMS),
		EvaluateOverride: millis(file.EvaluateTimeoutMS),
		FixOverride:      millis(file.FixTimeoutMS),
	}, nil
}

func applyUpstreamEnv(cfg *UpstreamConfig) {
	if v := envOr(envEvaluateURL, ""); v != "" {
		cfg.EvaluateURL = v
	}
	if v := envOr(envFixURL, ""); v != "" {
		cfg.FixURL = v
	}
	if d := envMillis(envUpstreamTimeoutMS); d > 0 {
		cfg.Timeout = d
	}
	if d := envMillis(envEvaluateTimeoutMS); d > 0 {
		cfg.EvaluateOverride = d
	}
	if d := envMillis(envFixTimeoutMS); d > 0 {
		cfg.FixOverride = d
	}
}

func envMillis(key string) time.Duration {
	raw := envOr(key, "")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return millis(n)
}

func millis(n int64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}
