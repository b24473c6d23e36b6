// Package config defines the engine's tuning parameters as an explicit
// configuration object passed into constructors — never process-wide mutable
// state — plus optional YAML loading for deployments that configure the
// pipeline from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryPolicy bounds retries for one stage: attempt count plus the base
// delay fed into exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// UnmarshalYAML accepts base_delay either as a Go duration string ("250ms")
// or as integer nanoseconds.
func (p *RetryPolicy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxAttempts int       `yaml:"max_attempts"`
		BaseDelay   yaml.Node `yaml:"base_delay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	if !raw.BaseDelay.IsZero() {
		d, err := decodeDuration(&raw.BaseDelay)
		if err != nil {
			return err
		}
		p.BaseDelay = d
	}
	return nil
}

func decodeDuration(node *yaml.Node) (time.Duration, error) {
	var s string
	if err := node.Decode(&s); err == nil {
		return time.ParseDuration(s)
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return 0, fmt.Errorf("invalid duration %q", node.Value)
	}
	return time.Duration(n), nil
}

// Config carries every tunable of the pipeline.
type Config struct {
	// MaxRetrievalIterations caps the generation stage's retrieval loop.
	MaxRetrievalIterations int `yaml:"max_retrieval_iterations"`

	// SentimentThreshold triggers escalation when a turn's sentiment falls
	// below it.
	SentimentThreshold float64 `yaml:"sentiment_threshold"`

	// EscalationIntents lists intents that always escalate.
	EscalationIntents []string `yaml:"escalation_intents"`

	// HistoryWindow bounds how many prior turns are retained for prompting.
	HistoryWindow int `yaml:"history_window"`

	// LeaseTTL bounds how long an unrenewed conversation lease stays
	// authoritative.
	LeaseTTL time.Duration `yaml:"lease_ttl"`

	// Workers sets the admission pool size; distinct conversations run
	// fully in parallel up to this bound.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds the total turns admitted but not yet completed;
	// submissions beyond it are rejected for backpressure.
	QueueCapacity int `yaml:"queue_capacity"`

	// RetrievalTopK and SimilarityThreshold shape retrieval queries.
	RetrievalTopK       int     `yaml:"retrieval_top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// StageTimeout bounds each external stage execution attempt.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// DefaultRetry applies to stages without an explicit policy.
	DefaultRetry RetryPolicy `yaml:"default_retry"`

	// StageRetry overrides the retry policy per stage name.
	StageRetry map[string]RetryPolicy `yaml:"stage_retry"`
}

// UnmarshalYAML decodes the config, accepting lease_ttl and stage_timeout
// as duration strings or integer nanoseconds.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain struct {
		MaxRetrievalIterations *int                   `yaml:"max_retrieval_iterations"`
		SentimentThreshold     *float64               `yaml:"sentiment_threshold"`
		EscalationIntents      []string               `yaml:"escalation_intents"`
		HistoryWindow          *int                   `yaml:"history_window"`
		LeaseTTL               yaml.Node              `yaml:"lease_ttl"`
		Workers                *int                   `yaml:"workers"`
		QueueCapacity          *int                   `yaml:"queue_capacity"`
		RetrievalTopK          *int                   `yaml:"retrieval_top_k"`
		SimilarityThreshold    *float64               `yaml:"similarity_threshold"`
		StageTimeout           yaml.Node              `yaml:"stage_timeout"`
		DefaultRetry           *RetryPolicy           `yaml:"default_retry"`
		StageRetry             map[string]RetryPolicy `yaml:"stage_retry"`
	}
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxRetrievalIterations != nil {
		c.MaxRetrievalIterations = *raw.MaxRetrievalIterations
	}
	if raw.SentimentThreshold != nil {
		c.SentimentThreshold = *raw.SentimentThreshold
	}
	if raw.EscalationIntents != nil {
		c.EscalationIntents = raw.EscalationIntents
	}
	if raw.HistoryWindow != nil {
		c.HistoryWindow = *raw.HistoryWindow
	}
	if raw.Workers != nil {
		c.Workers = *raw.Workers
	}
	if raw.QueueCapacity != nil {
		c.QueueCapacity = *raw.QueueCapacity
	}
	if raw.RetrievalTopK != nil {
		c.RetrievalTopK = *raw.RetrievalTopK
	}
	if raw.SimilarityThreshold != nil {
		c.SimilarityThreshold = *raw.SimilarityThreshold
	}
	if !raw.LeaseTTL.IsZero() {
		d, err := decodeDuration(&raw.LeaseTTL)
		if err != nil {
			return fmt.Errorf("lease_ttl: %w", err)
		}
		c.LeaseTTL = d
	}
	if !raw.StageTimeout.IsZero() {
		d, err := decodeDuration(&raw.StageTimeout)
		if err != nil {
			return fmt.Errorf("stage_timeout: %w", err)
		}
		c.StageTimeout = d
	}
	if raw.DefaultRetry != nil {
		c.DefaultRetry = *raw.DefaultRetry
	}
	if raw.StageRetry != nil {
		c.StageRetry = raw.StageRetry
	}
	return nil
}

// Default returns the production baseline configuration.
func Default() Config {
	return Config{
		MaxRetrievalIterations: 3,
		SentimentThreshold:     -0.5,
		EscalationIntents:      []string{"complaint", "cancellation"},
		HistoryWindow:          20,
		LeaseTTL:               30 * time.Second,
		Workers:                4,
		QueueCapacity:          256,
		RetrievalTopK:          5,
		SimilarityThreshold:    0.2,
		StageTimeout:           30 * time.Second,
		DefaultRetry:           RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond},
		StageRetry: map[string]RetryPolicy{
			"escalate": {MaxAttempts: 1},
		},
	}
}

// Load reads a YAML file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	if c.MaxRetrievalIterations <= 0 {
		c.MaxRetrievalIterations = 3
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 20
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 256
	}
	if c.DefaultRetry.MaxAttempts <= 0 {
		c.DefaultRetry.MaxAttempts = 1
	}
	return c
}

// RetryFor resolves the retry policy for a stage name.
func (c Config) RetryFor(stage string) RetryPolicy {
	if p, ok := c.StageRetry[stage]; ok && p.MaxAttempts > 0 {
		return p
	}
	return c.DefaultRetry
}

// IsEscalationIntent reports whether the intent is in the trigger set.
func (c Config) IsEscalationIntent(intent string) bool {
	for _, v := range c.EscalationIntents {
		if v == intent {
			return true
		}
	}
	return false
}
