package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv loads every field from environment variables through the struct
// tags on ServerConfig. Unset variables fall back to their env-default.
//
// Server:
//
//	PORT, ENVIRONMENT, API_KEY_SHA256
//
// Storage:
//
//	STORAGE_TYPE - "memory" (default), "fs" or "s3"
//	FS_BASE_DIR
//	S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY,
//	S3_USE_PATH_STYLE, S3_CREATE_BUCKETS,
//	S3_OBJECTS_BUCKET, S3_TEMPLATES_BUCKET, S3_SESSIONS_BUCKET, S3_FILES_BUCKET
//
// Locks:
//
//	LOCK_TYPE - "memory" (default), "redis" or "postgres"
//	REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_LOCK_PREFIX
//	LOCK_DATABASE_URL, LOCK_TTL
//
// Service:
//
//	SESSION_TTL, UPLOAD_PART_SIZE, MAX_PARALLELISM, FILES_PUBLIC_URL, ENABLE_EVENT_LOGGING
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// Usage describes the environment variables ServerConfig reads
func Usage() string {
	var cfg ServerConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
