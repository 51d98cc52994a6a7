// Package config loads meridian settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config is the full meridian configuration.
type Config struct {
	DB        string          `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Intake    IntakeConfig    `yaml:"intake"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Precedent PrecedentConfig `yaml:"precedent"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Digest    DigestConfig    `yaml:"digest"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// FeedConfig is one RSS/Atom source.
type FeedConfig struct {
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
}

// IntakeConfig controls feed polling and deduplication.
type IntakeConfig struct {
	Feeds        []FeedConfig  `yaml:"feeds"`
	Bucket       time.Duration `yaml:"bucket"`
	Timeout      time.Duration `yaml:"timeout"`
	FetchBody    bool          `yaml:"fetch_body"`
	MinBodyChars int           `yaml:"min_body_chars"`
}

// Weights are the relative weights of the four score components.
type Weights struct {
	Structural   int `yaml:"structural"`
	Transmission int `yaml:"transmission"`
	Historical   int `yaml:"historical"`
	Attention    int `yaml:"attention"`
}

// Sum returns the total weight.
func (w Weights) Sum() int {
	return w.Structural + w.Transmission + w.Historical + w.Attention
}

// ScoringConfig holds the product tuning parameters of the scorer.
type ScoringConfig struct {
	Weights             Weights `yaml:"weights"`
	PriorityThreshold   int     `yaml:"priority_threshold"`
	MonitoringThreshold int     `yaml:"monitoring_threshold"`
	BatchLimit          int     `yaml:"batch_limit"`
}

// PrecedentConfig controls precedent retrieval.
type PrecedentConfig struct {
	TopK int `yaml:"top_k"`
}

// EmbeddingConfig selects the embedding provider. An empty provider
// disables embeddings and the matcher runs its keyword path.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Dims     int    `yaml:"dims"`
}

// LLMConfig selects and tunes the reasoning provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RPM         int           `yaml:"rpm"`
	Burst       int           `yaml:"burst"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// AnalysisConfig controls the orchestrator.
type AnalysisConfig struct {
	Lease           time.Duration `yaml:"lease"`
	BatchLimit      int           `yaml:"batch_limit"`
	KnowledgeBudget int           `yaml:"knowledge_budget"` // tokens of knowledge per prompt
}

// DigestConfig controls digest assembly.
type DigestConfig struct {
	Timezone      string        `yaml:"timezone"`
	SnapshotDir   string        `yaml:"snapshot_dir"`
	EventLimit    int           `yaml:"event_limit"`
	ThesisLimit   int           `yaml:"thesis_limit"`
	SourceTimeout time.Duration `yaml:"source_timeout"`
}

// ScheduleConfig holds cron expressions for the serve command. An empty
// expression disables that job.
type ScheduleConfig struct {
	Intake  string `yaml:"intake"`
	Score   string `yaml:"score"`
	Analyze string `yaml:"analyze"`
	Digest  string `yaml:"digest"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DB:  DefaultDBPath(),
		Log: LogConfig{Level: "info"},
		Intake: IntakeConfig{
			Bucket:       time.Hour,
			Timeout:      20 * time.Second,
			MinBodyChars: 200,
		},
		Scoring: ScoringConfig{
			Weights:             Weights{Structural: 35, Transmission: 30, Historical: 20, Attention: 15},
			PriorityThreshold:   65,
			MonitoringThreshold: 50,
			BatchLimit:          500,
		},
		Precedent: PrecedentConfig{TopK: 5},
		LLM: LLMConfig{
			Provider:    "local",
			Timeout:     60 * time.Second,
			RPM:         30,
			Burst:       1,
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
		},
		Analysis: AnalysisConfig{
			Lease:           5 * time.Minute,
			BatchLimit:      50,
			KnowledgeBudget: 1500,
		},
		Digest: DigestConfig{
			Timezone:      "UTC",
			EventLimit:    10,
			ThesisLimit:   10,
			SourceTimeout: 10 * time.Second,
		},
		Schedule: ScheduleConfig{
			Intake:  "*/30 * * * *",
			Score:   "5,35 * * * *",
			Analyze: "10 * * * *",
			Digest:  "0 7 * * *",
		},
	}
}

// DefaultDBPath is ~/.meridian/meridian.db.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".meridian", "meridian.db")
}

// Load reads path over the defaults, applies MERIDIAN_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DB, "MERIDIAN_DB")
	set(&c.Log.Level, "MERIDIAN_LOG_LEVEL")
	set(&c.Log.File, "MERIDIAN_LOG_FILE")
	set(&c.LLM.Provider, "MERIDIAN_LLM_PROVIDER")
	set(&c.LLM.BaseURL, "MERIDIAN_LLM_BASE_URL")
	set(&c.LLM.Model, "MERIDIAN_LLM_MODEL")
	set(&c.LLM.APIKey, "MERIDIAN_LLM_API_KEY")
	set(&c.Embedding.Provider, "MERIDIAN_EMBED_PROVIDER")
	set(&c.Embedding.Model, "MERIDIAN_EMBED_MODEL")
	set(&c.Embedding.BaseURL, "MERIDIAN_EMBED_URL")
	set(&c.Digest.SnapshotDir, "MERIDIAN_SNAPSHOT_DIR")
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	w := c.Scoring.Weights
	if w.Structural < 0 || w.Transmission < 0 || w.Historical < 0 || w.Attention < 0 {
		errs = append(errs, errors.New("scoring.weights must not be negative"))
	}
	if w.Sum() <= 0 {
		errs = append(errs, errors.New("scoring.weights must sum to a positive value"))
	}
	if p := c.Scoring.PriorityThreshold; p < 1 || p > 100 {
		errs = append(errs, fmt.Errorf("scoring.priority_threshold %d out of range [1,100]", p))
	}
	if m := c.Scoring.MonitoringThreshold; m < 1 || m > c.Scoring.PriorityThreshold {
		errs = append(errs, fmt.Errorf("scoring.monitoring_threshold %d must be within [1,priority_threshold]", m))
	}
	if c.Intake.Bucket <= 0 {
		errs = append(errs, errors.New("intake.bucket must be positive"))
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "local", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q (valid: local, openai)", c.LLM.Provider))
	}
	if c.Analysis.Lease <= 0 {
		errs = append(errs, errors.New("analysis.lease must be positive"))
	}
	if c.Analysis.KnowledgeBudget < 1 {
		errs = append(errs, errors.New("analysis.knowledge_budget must be at least 1"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.max_attempts must be at least 1"))
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "", "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q (valid: ollama, openai, or empty)", c.Embedding.Provider))
	}
	if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("digest.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the digest timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
