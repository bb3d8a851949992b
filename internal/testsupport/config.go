package testsupport

import (
	"path/filepath"
	"testing"

	"battery/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataRoot = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Session.HeartbeatInterval = 1
	cfgVal.Session.ExportBackoffSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithStaleAfterDays overrides the recovery staleness window on the test config.
func WithStaleAfterDays(days int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.StaleAfterDays = days
	}
}

// WithAnalysisWorkers overrides the audio analysis worker count on the test config.
func WithAnalysisWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Audio.AnalysisWorkers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataRoot)
}
