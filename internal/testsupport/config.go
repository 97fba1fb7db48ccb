package testsupport

import (
	"path/filepath"
	"testing"

	"podium/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Polling.IntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithRendererBaseURL points the config at a test engine endpoint.
func WithRendererBaseURL(baseURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Renderer.BaseURL = baseURL
	}
}

// WithPolling overrides the polling bounds on the test config.
func WithPolling(interval, maxAttempts, maxTransient int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Polling.IntervalSeconds = interval
		cfg.Polling.MaxAttempts = maxAttempts
		cfg.Polling.MaxTransientFailures = maxTransient
	}
}
