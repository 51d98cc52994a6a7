package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meridian.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scoring.Weights != (Weights{35, 30, 20, 15}) {
		t.Errorf("expected default weights 35/30/20/15, got %+v", cfg.Scoring.Weights)
	}
	if cfg.Scoring.PriorityThreshold != 65 || cfg.Scoring.MonitoringThreshold != 50 {
		t.Errorf("expected thresholds 65/50, got %d/%d", cfg.Scoring.PriorityThreshold, cfg.Scoring.MonitoringThreshold)
	}
	if cfg.Intake.Bucket != time.Hour {
		t.Errorf("expected 1h bucket, got %s", cfg.Intake.Bucket)
	}
	if cfg.LLM.Provider != "local" {
		t.Errorf("expected local provider, got %q", cfg.LLM.Provider)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
db: /tmp/m.db
intake:
  bucket: 30m
  feeds:
    - source: reuters
      url: https://example.com/rss
scoring:
  priority_threshold: 70
llm:
  base_delay: 500ms
analysis:
  knowledge_budget: 800
digest:
  timezone: America/New_York
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB != "/tmp/m.db" {
		t.Errorf("expected db /tmp/m.db, got %q", cfg.DB)
	}
	if cfg.Intake.Bucket != 30*time.Minute {
		t.Errorf("expected 30m bucket, got %s", cfg.Intake.Bucket)
	}
	if len(cfg.Intake.Feeds) != 1 || cfg.Intake.Feeds[0].Source != "reuters" {
		t.Errorf("expected one reuters feed, got %+v", cfg.Intake.Feeds)
	}
	if cfg.Scoring.PriorityThreshold != 70 {
		t.Errorf("expected threshold 70, got %d", cfg.Scoring.PriorityThreshold)
	}
	// untouched keys keep their defaults
	if cfg.Scoring.Weights.Structural != 35 {
		t.Errorf("expected structural weight 35, got %d", cfg.Scoring.Weights.Structural)
	}
	if cfg.Analysis.KnowledgeBudget != 800 {
		t.Errorf("expected knowledge budget 800, got %d", cfg.Analysis.KnowledgeBudget)
	}
	if cfg.LLM.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms base delay, got %s", cfg.LLM.BaseDelay)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Errorf("expected America/New_York, got %s", cfg.Location())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MERIDIAN_DB", "/env/m.db")
	t.Setenv("MERIDIAN_LLM_API_KEY", "sk-test")
	t.Setenv("MERIDIAN_LLM_PROVIDER", "openai")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB != "/env/m.db" {
		t.Errorf("expected env db, got %q", cfg.DB)
	}
	if cfg.LLM.APIKey != "sk-test" || cfg.LLM.Provider != "openai" {
		t.Errorf("expected env llm settings, got %+v", cfg.LLM)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero weights", func(c *Config) { c.Scoring.Weights = Weights{} }, "sum to a positive"},
		{"negative weight", func(c *Config) { c.Scoring.Weights.Attention = -1 }, "negative"},
		{"threshold too high", func(c *Config) { c.Scoring.PriorityThreshold = 101 }, "priority_threshold"},
		{"monitoring above priority", func(c *Config) { c.Scoring.MonitoringThreshold = 80 }, "monitoring_threshold"},
		{"zero priority threshold", func(c *Config) { c.Scoring.PriorityThreshold = 0 }, "priority_threshold"},
		{"zero monitoring threshold", func(c *Config) { c.Scoring.MonitoringThreshold = 0 }, "monitoring_threshold"},
		{"zero lease", func(c *Config) { c.Analysis.Lease = 0 }, "analysis.lease"},
		{"zero knowledge budget", func(c *Config) { c.Analysis.KnowledgeBudget = 0 }, "knowledge_budget"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "oracle" }, "llm.provider"},
		{"bad embed provider", func(c *Config) { c.Embedding.Provider = "magic" }, "embedding.provider"},
		{"bad timezone", func(c *Config) { c.Digest.Timezone = "Mars/Olympus" }, "digest.timezone"},
		{"zero bucket", func(c *Config) { c.Intake.Bucket = 0 }, "intake.bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}
