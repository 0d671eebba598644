package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssq-labs/commentpilot/internal/pkg/env"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := env.Env
	env.Env = values
	t.Cleanup(func() { env.Env = prev })
}

func TestLoadPipelineDefaults(t *testing.T) {
	withEnv(t, map[string]string{})

	p, err := LoadPipeline()
	require.NoError(t, err)
	assert.Equal(t, DefaultPipeline(), p)
}

func TestLoadPipelineOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		"WEBHOOK_MAX_RETRIES":  "3",
		"WEBHOOK_BACKOFF_BASE": "2s",
		"WEBHOOK_BACKOFF_MAX":  "120",
		"WEBHOOK_STALE_AFTER":  "5m",
		"JOBQUEUE_WORKERS":     "8",
	})

	p, err := LoadPipeline()
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.BackoffBase)
	assert.Equal(t, 120*time.Second, p.BackoffMax)
	assert.Equal(t, 5*time.Minute, p.StaleAfter)
	assert.Equal(t, 8, p.Workers)
}

func TestLoadPipelineRejectsInvertedBackoff(t *testing.T) {
	withEnv(t, map[string]string{
		"WEBHOOK_BACKOFF_BASE": "10m",
		"WEBHOOK_BACKOFF_MAX":  "1m",
	})

	_, err := LoadPipeline()
	assert.Error(t, err)
}

func TestLoadMetaRequiresVerifyToken(t *testing.T) {
	withEnv(t, map[string]string{})
	_, err := LoadMeta()
	assert.Error(t, err)

	withEnv(t, map[string]string{"META_VERIFY_TOKEN": "ssq_meta"})
	m, err := LoadMeta()
	require.NoError(t, err)
	assert.Equal(t, "ssq_meta", m.VerifyToken)
	assert.Equal(t, "https://graph.instagram.com/v21.0", m.GraphBaseURL)
}

func TestLoadLLMDefaults(t *testing.T) {
	withEnv(t, map[string]string{})
	l, err := LoadLLM()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash-lite", l.Model)
	assert.Equal(t, 100, l.MaxOutputTokens)
	assert.InDelta(t, 0.9, l.Temperature, 0.0001)
}

func TestLoadServer(t *testing.T) {
	withEnv(t, map[string]string{"APP_PORT": "8080", "WEBHOOK_RATE_LIMIT_PER_MIN": "0"})
	s, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "8080", s.Port)
	assert.Zero(t, s.WebhookRatePerMin)
	assert.Equal(t, DefaultAdminRatePerMin, s.AdminRatePerMin)

	withEnv(t, map[string]string{"APP_PORT": "http"})
	_, err = LoadServer()
	assert.Error(t, err)
}
