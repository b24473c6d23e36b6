package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MaxRetrievalIterations)
	assert.Equal(t, -0.5, cfg.SentimentThreshold)
	assert.Equal(t, []string{"complaint", "cancellation"}, cfg.EscalationIntents)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 3, cfg.DefaultRetry.MaxAttempts)
	assert.Positive(t, cfg.Workers)
	assert.Positive(t, cfg.QueueCapacity)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_retrieval_iterations: 5
sentiment_threshold: -0.3
escalation_intents: ["complaint"]
workers: 8
lease_ttl: 45s
default_retry:
  max_attempts: 4
  base_delay: 50ms
stage_retry:
  extraction:
    max_attempts: 2
    base_delay: 10ms
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxRetrievalIterations)
	assert.Equal(t, -0.3, cfg.SentimentThreshold)
	assert.Equal(t, []string{"complaint"}, cfg.EscalationIntents)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 4, cfg.DefaultRetry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.DefaultRetry.BaseDelay)
	assert.Equal(t, 45*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 2, cfg.RetryFor("extraction").MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryFor("extraction").BaseDelay)
	// Untouched fields keep their defaults.
	assert.Equal(t, 20, cfg.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.StageTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not an int"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_RetryFor(t *testing.T) {
	cfg := Default()
	cfg.DefaultRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	cfg.StageRetry = map[string]RetryPolicy{
		"extraction": {MaxAttempts: 5, BaseDelay: 10 * time.Millisecond},
	}

	assert.Equal(t, 5, cfg.RetryFor("extraction").MaxAttempts)
	assert.Equal(t, 3, cfg.RetryFor("router").MaxAttempts)
	assert.Equal(t, 3, cfg.RetryFor("unknown").MaxAttempts)
}

func TestConfig_IsEscalationIntent(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.IsEscalationIntent("complaint"))
	assert.True(t, cfg.IsEscalationIntent("cancellation"))
	assert.False(t, cfg.IsEscalationIntent("sales"))
	assert.False(t, cfg.IsEscalationIntent(""))
}
