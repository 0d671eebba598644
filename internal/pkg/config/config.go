package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ssq-labs/commentpilot/internal/pkg/env"
)

// Pipeline holds the webhook retry, reconciliation and timeout settings.
type Pipeline struct {
	MaxRetries      int           `validate:"min=0,max=50"`
	BackoffBase     time.Duration `validate:"gt=0"`
	BackoffMax      time.Duration `validate:"gtefield=BackoffBase"`
	StaleAfter      time.Duration `validate:"gt=0"`
	SweepInterval   time.Duration `validate:"gt=0"`
	SweepBatchSize  int           `validate:"min=1,max=1000"`
	LLMTimeout      time.Duration `validate:"gt=0"`
	PlatformTimeout time.Duration `validate:"gt=0"`
	IngestTimeout   time.Duration `validate:"gt=0"`
	Workers         int           `validate:"min=1,max=256"`
}

// Meta holds the Meta app credentials used for webhook verification and the
// Graph API base URL.
type Meta struct {
	VerifyToken  string `validate:"required"`
	AppSecret    string
	GraphBaseURL string `validate:"required,url"`
}

// LLM configures the Gemini generateContent client.
type LLM struct {
	APIKey          string
	BaseURL         string  `validate:"required,url"`
	Model           string  `validate:"required"`
	Temperature     float64 `validate:"min=0,max=2"`
	TopP            float64 `validate:"min=0,max=1"`
	MaxOutputTokens int     `validate:"min=1"`
}

// Server holds the HTTP listener, admin key and rate limit settings.
type Server struct {
	Host              string `validate:"required"`
	Port              string `validate:"required,numeric"`
	AdminAPIKeyHash   string
	WebhookRatePerMin int `validate:"min=0"`
	AdminRatePerMin   int `validate:"min=0"`
	EmbeddedWorker    bool
	MetricsPassword   string
}

const (
	DefaultMaxRetries      = 5
	DefaultBackoffBase     = 30 * time.Second
	DefaultBackoffMax      = 30 * time.Minute
	DefaultStaleAfter      = 10 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultSweepBatchSize  = 100
	DefaultLLMTimeout      = 15 * time.Second
	DefaultPlatformTimeout = 10 * time.Second
	DefaultIngestTimeout   = 5 * time.Second
	DefaultWorkers         = 5

	DefaultWebhookRatePerMin = 600
	DefaultAdminRatePerMin   = 60
)

var validate = validator.New()

// DefaultPipeline returns the built-in settings without reading the environment.
func DefaultPipeline() Pipeline {
	return Pipeline{
		MaxRetries:      DefaultMaxRetries,
		BackoffBase:     DefaultBackoffBase,
		BackoffMax:      DefaultBackoffMax,
		StaleAfter:      DefaultStaleAfter,
		SweepInterval:   DefaultSweepInterval,
		SweepBatchSize:  DefaultSweepBatchSize,
		LLMTimeout:      DefaultLLMTimeout,
		PlatformTimeout: DefaultPlatformTimeout,
		IngestTimeout:   DefaultIngestTimeout,
		Workers:         DefaultWorkers,
	}
}

// LoadPipeline reads the pipeline settings from the environment.
func LoadPipeline() (Pipeline, error) {
	p := Pipeline{
		MaxRetries:      env.GetEnvInt("WEBHOOK_MAX_RETRIES", DefaultMaxRetries),
		BackoffBase:     env.GetEnvDuration("WEBHOOK_BACKOFF_BASE", DefaultBackoffBase),
		BackoffMax:      env.GetEnvDuration("WEBHOOK_BACKOFF_MAX", DefaultBackoffMax),
		StaleAfter:      env.GetEnvDuration("WEBHOOK_STALE_AFTER", DefaultStaleAfter),
		SweepInterval:   env.GetEnvDuration("WEBHOOK_SWEEP_INTERVAL", DefaultSweepInterval),
		SweepBatchSize:  env.GetEnvInt("WEBHOOK_SWEEP_BATCH", DefaultSweepBatchSize),
		LLMTimeout:      env.GetEnvDuration("LLM_TIMEOUT", DefaultLLMTimeout),
		PlatformTimeout: env.GetEnvDuration("PLATFORM_TIMEOUT", DefaultPlatformTimeout),
		IngestTimeout:   env.GetEnvDuration("INGEST_TIMEOUT", DefaultIngestTimeout),
		Workers:         env.GetEnvInt("JOBQUEUE_WORKERS", DefaultWorkers),
	}
	if err := validate.Struct(p); err != nil {
		return Pipeline{}, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return p, nil
}

func LoadMeta() (Meta, error) {
	m := Meta{
		VerifyToken:  env.GetEnv("META_VERIFY_TOKEN", ""),
		AppSecret:    env.GetEnv("META_APP_SECRET", ""),
		GraphBaseURL: env.GetEnv("META_GRAPH_BASE_URL", "https://graph.instagram.com/v21.0"),
	}
	if err := validate.Struct(m); err != nil {
		return Meta{}, fmt.Errorf("invalid meta config: %w", err)
	}
	return m, nil
}

func LoadLLM() (LLM, error) {
	l := LLM{
		APIKey:          env.GetEnv("GEMINI_API_KEY", ""),
		BaseURL:         env.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		Model:           env.GetEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		Temperature:     0.9,
		TopP:            0.5,
		MaxOutputTokens: env.GetEnvInt("GEMINI_MAX_TOKENS", 100),
	}
	if err := validate.Struct(l); err != nil {
		return LLM{}, fmt.Errorf("invalid llm config: %w", err)
	}
	return l, nil
}

func LoadServer() (Server, error) {
	s := Server{
		Host:              env.GetEnv("APP_HOST", "0.0.0.0"),
		Port:              env.GetEnv("APP_PORT", "4000"),
		AdminAPIKeyHash:   env.GetEnv("ADMIN_API_KEY_HASH", ""),
		WebhookRatePerMin: env.GetEnvInt("WEBHOOK_RATE_LIMIT_PER_MIN", DefaultWebhookRatePerMin),
		AdminRatePerMin:   env.GetEnvInt("ADMIN_RATE_LIMIT_PER_MIN", DefaultAdminRatePerMin),
		EmbeddedWorker:    env.GetEnvBool("EMBEDDED_WORKER", false),
		MetricsPassword:   env.GetEnv("METRICS_PASSWORD", ""),
	}
	if err := validate.Struct(s); err != nil {
		return Server{}, fmt.Errorf("invalid server config: %w", err)
	}
	return s, nil
}
