package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ssq-labs/commentpilot/internal/pkg/env"
)

// Config holds the S3-compatible storage used for raw payload archives.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig reads ARCHIVE_* variables. Credentials are only required when
// archiving is enabled.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("ARCHIVE_REGION", "us-east-1"),
		BucketName:      env.GetEnv("ARCHIVE_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("ARCHIVE_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("ARCHIVE_PREFIX", "webhooks"),
		Enabled:         env.GetEnvBool("ARCHIVE_ENABLED", false),
	}

	if cfg.Enabled {
		if cfg.AccessKeyID == "" {
			return nil, errors.New("ARCHIVE_ACCESS_KEY_ID is required when archiving is enabled")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("ARCHIVE_SECRET_ACCESS_KEY is required when archiving is enabled")
		}
		if cfg.BucketName == "" {
			return nil, errors.New("ARCHIVE_BUCKET_NAME is required when archiving is enabled")
		}
	}
	return cfg, nil
}

// ObjectKey returns <prefix>/YYYY/MM/DD/<event_type>/<uuid>.json.zst for a
// row received at receivedAt.
func (c *Config) ObjectKey(eventType, rowUUID string, receivedAt time.Time) string {
	t := receivedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s/%s.json.zst",
		c.Prefix, t.Year(), int(t.Month()), t.Day(), eventType, rowUUID)
}
