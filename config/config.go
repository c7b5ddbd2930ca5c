// Package config loads the sidecar's operator-authored YAML configuration,
// following caddy's JSON-config-with-defaults idiom adapted to YAML
// (gopkg.in/yaml.v3) since there is no config-API surface in scope here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshcore/sidecar/collaborators"
)

// Listener configures one bound address and its role.
type Listener struct {
	Addr    string `yaml:"addr"`
	Inbound bool   `yaml:"inbound"`
}

// CacheConfig bounds the per-endpoint service cache (C2).
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	IdleAge  time.Duration `yaml:"idle_age"`
}

// AdmissionConfig bounds the admission pipeline (C5).
type AdmissionConfig struct {
	BufferBound      int `yaml:"buffer_bound"`
	ConcurrencyLimit int `yaml:"concurrency_limit"`
}

// RetryBudgetConfig is the default retry budget applied to routes that
// don't specify their own.
type RetryBudgetConfig struct {
	TTL                 time.Duration `yaml:"ttl"`
	MinRetriesPerSecond float64       `yaml:"min_retries_per_second"`
	RetryRatio          float64       `yaml:"retry_ratio"`
}

// ControlPlane configures the profile/discovery gRPC collaborators.
type ControlPlane struct {
	ProfileAddr   string        `yaml:"profile_addr"`
	DiscoveryAddr string        `yaml:"discovery_addr"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled       bool    `yaml:"enabled"`
	CollectorAddr string  `yaml:"collector_addr"`
	SampleRatio   float64 `yaml:"sample_ratio"`
}

// Config is the top-level sidecar configuration document.
type Config struct {
	Listeners    []Listener        `yaml:"listeners"`
	AppAddr      string            `yaml:"app_addr"`
	IdentityFile string            `yaml:"identity_file"`
	Cache        CacheConfig       `yaml:"cache"`
	Admission    AdmissionConfig   `yaml:"admission"`
	RetryBudget  RetryBudgetConfig `yaml:"retry_budget"`
	ControlPlane ControlPlane      `yaml:"control_plane"`
	Tracing      Tracing           `yaml:"tracing"`
	LogLevel     string            `yaml:"log_level"`
}

// Default returns a Config with conservative defaults for every optional
// field, suitable for local development.
func Default() Config {
	return Config{
		Cache:     CacheConfig{Capacity: 256, IdleAge: 60 * time.Second},
		Admission: AdmissionConfig{BufferBound: 64, ConcurrencyLimit: 1024},
		RetryBudget: RetryBudgetConfig{
			TTL:                 10 * time.Second,
			MinRetriesPerSecond: 10,
			RetryRatio:          0.1,
		},
		ControlPlane: ControlPlane{DialTimeout: 5 * time.Second},
		LogLevel:     "info",
	}
}

// Load reads and parses the YAML document at path over top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the structural invariants Load can't express through
// yaml tags alone.
func (c Config) Validate() error {
	if len(c.Listeners) == 0 {
		return fmt.Errorf("config: at least one listener is required")
	}
	for _, l := range c.Listeners {
		if l.Addr == "" {
			return fmt.Errorf("config: listener addr must not be empty")
		}
		if l.Inbound && c.AppAddr == "" {
			return fmt.Errorf("config: app_addr must be set when any listener is inbound")
		}
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache.capacity must be positive")
	}
	if c.Admission.ConcurrencyLimit <= 0 {
		return fmt.Errorf("config: admission.concurrency_limit must be positive")
	}
	return nil
}

// BudgetSpec converts the configured defaults to collaborators.BudgetSpec.
func (c Config) BudgetSpec() collaborators.BudgetSpec {
	return collaborators.BudgetSpec{
		TTL:                 c.RetryBudget.TTL,
		MinRetriesPerSecond: c.RetryBudget.MinRetriesPerSecond,
		RetryRatio:          c.RetryBudget.RetryRatio,
	}
}
