package testsupport

import (
	"path/filepath"
	"testing"

	"tend/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Mailbox.Address = "catalog@example.com"
	cfgVal.Mailbox.BaseURL = "http://127.0.0.1:0"
	cfgVal.Mailbox.Token = "test"
	cfgVal.Mailbox.EscalationAddress = "human@example.com"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Catalog.BaseURL = "http://127.0.0.1:0"
	cfgVal.Catalog.APIKey = "test"

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

// WithMassEmailThreshold overrides the mass email guard on the test config.
func WithMassEmailThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mailbox.MassEmailThreshold = threshold
	}
}

// WithClarificationRounds overrides the clarification round cap.
func WithClarificationRounds(rounds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxClarificationRounds = rounds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
