package testsupport

import (
	"path/filepath"
	"testing"

	"nodeipc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose journal lives in a per-test temp
// directory. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Journal.Path = filepath.Join(base, "journal.db")
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEndpoint points the test config at path.
func WithEndpoint(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Endpoint.Path = path
	}
}

// WithJournalDisabled turns the call journal off.
func WithJournalDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithRetry enables retries with the given attempts and backoff.
func WithRetry(attempts, backoffMillis int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.Attempts = attempts
		b.cfg.Retry.BackoffMillis = backoffMillis
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Journal.Path)
}
