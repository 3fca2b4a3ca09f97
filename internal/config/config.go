// Package config loads service settings from an optional YAML file with
// environment-variable overrides. Environment always wins, so deployments
// can ship a baseline config file and tweak per-instance via env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr           = ":8080"
	DefaultModel          = "claude-sonnet-4-20250514"
	DefaultMaxUploadBytes = 15 << 20
	DefaultMaxChars       = 100_000
	DefaultArtifactTTL    = time.Hour
)

type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string `yaml:"addr"`

	// AnthropicAPIKey authenticates structure and evaluation calls. Empty
	// means the service runs oracle-free on the deterministic fallback.
	AnthropicAPIKey string `yaml:"anthropicApiKey"`

	// Model names the Anthropic model used for all analysis calls.
	Model string `yaml:"model"`

	// BaseURL is the externally visible prefix used when building artifact
	// download links. Empty produces relative links.
	BaseURL string `yaml:"baseUrl"`

	// TmpDir roots the artifact store and the submission ledger.
	TmpDir string `yaml:"tmpDir"`

	MaxUploadBytes int64         `yaml:"maxUploadBytes"`
	MaxChars       int           `yaml:"maxChars"`
	ArtifactTTL    time.Duration `yaml:"-"`

	// RawArtifactTTL is the YAML-facing form of ArtifactTTL ("30m", "2h").
	RawArtifactTTL string `yaml:"artifactTTL"`
}

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies env overrides, then fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if cfg.RawArtifactTTL != "" {
		d, err := time.ParseDuration(cfg.RawArtifactTTL)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid artifactTTL %q in %s", cfg.RawArtifactTTL, path)
		}
		cfg.ArtifactTTL = d
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := envString("MANUSCRIPT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := envString("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := envString("MANUSCRIPT_MODEL"); v != "" {
		c.Model = v
	}
	if v := envString("MANUSCRIPT_BASE_URL"); v != "" {
		c.BaseURL = strings.TrimRight(v, "/")
	}
	if v := envString("MANUSCRIPT_TMP_DIR"); v != "" {
		c.TmpDir = v
	}
	if v := envString("MANUSCRIPT_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MANUSCRIPT_MAX_UPLOAD_BYTES %q", v)
		}
		c.MaxUploadBytes = n
	}
	if v := envString("MANUSCRIPT_MAX_CHARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MANUSCRIPT_MAX_CHARS %q", v)
		}
		c.MaxChars = n
	}
	if v := envString("MANUSCRIPT_ARTIFACT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid MANUSCRIPT_ARTIFACT_TTL %q", v)
		}
		c.ArtifactTTL = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.TmpDir == "" {
		c.TmpDir = os.TempDir()
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.ArtifactTTL <= 0 {
		c.ArtifactTTL = DefaultArtifactTTL
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
