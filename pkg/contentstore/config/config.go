package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tendant/versioned-content/pkg/contentstore"
	memorylock "github.com/tendant/versioned-content/pkg/contentstore/lock/memory"
	postgreslock "github.com/tendant/versioned-content/pkg/contentstore/lock/postgres"
	redislock "github.com/tendant/versioned-content/pkg/contentstore/lock/redis"
	fsstorage "github.com/tendant/versioned-content/pkg/contentstore/storage/fs"
	memorystorage "github.com/tendant/versioned-content/pkg/contentstore/storage/memory"
	s3storage "github.com/tendant/versioned-content/pkg/contentstore/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
// WithEnv replaces every field it maps, so put it before programmatic overrides.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		StorageType: "memory",
		FSBaseDir:   "./data",
		S3: S3Config{
			Region:          "us-east-1",
			ObjectsBucket:   "content-objects",
			TemplatesBucket: "content-templates",
			SessionsBucket:  "content-sessions",
			FilesBucket:     "content-files",
		},
		LockType:           "memory",
		Redis:              RedisConfig{Addr: "localhost:6379", Prefix: redislock.DefaultPrefix},
		LockTTL:            redislock.DefaultTTL,
		SessionTTL:         contentstore.DefaultSessionTTL,
		UploadPartSize:     contentstore.DefaultPartSize,
		MaxParallelism:     contentstore.DefaultMaxParallelism,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the content store
type ServerConfig struct {
	Port         string `env:"PORT" env-default:"8080"`
	Environment  string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	APIKeySHA256 string `env:"API_KEY_SHA256"`

	// Blob storage
	StorageType string `env:"STORAGE_TYPE" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir   string `env:"FS_BASE_DIR" env-default:"./data"`
	S3          S3Config

	// Lock coordination
	LockType        string        `env:"LOCK_TYPE" env-default:"memory"` // "memory", "redis", "postgres"
	Redis           RedisConfig
	LockDatabaseURL string        `env:"LOCK_DATABASE_URL"`
	LockTTL         time.Duration `env:"LOCK_TTL" env-default:"2m"`

	// Service tuning
	SessionTTL         time.Duration `env:"SESSION_TTL" env-default:"24h"`
	UploadPartSize     int64         `env:"UPLOAD_PART_SIZE" env-default:"5242880"`
	MaxParallelism     int           `env:"MAX_PARALLELISM" env-default:"16"`
	FilesPublicURL     string        `env:"FILES_PUBLIC_URL"`
	EnableEventLogging bool          `env:"ENABLE_EVENT_LOGGING" env-default:"true"`
}

// S3Config holds the S3 connection and one bucket per blob store role.
// Every bucket must have versioning enabled.
type S3Config struct {
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBuckets   bool   `env:"S3_CREATE_BUCKETS" env-default:"false"`

	ObjectsBucket   string `env:"S3_OBJECTS_BUCKET" env-default:"content-objects"`
	TemplatesBucket string `env:"S3_TEMPLATES_BUCKET" env-default:"content-templates"`
	SessionsBucket  string `env:"S3_SESSIONS_BUCKET" env-default:"content-sessions"`
	FilesBucket     string `env:"S3_FILES_BUCKET" env-default:"content-files"`
}

// RedisConfig is the Redis lock coordinator connection
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	Prefix   string `env:"REDIS_LOCK_PREFIX" env-default:"contentstore:lock:"`
}

// buckets maps each blob store role to its S3 bucket
func (c S3Config) buckets() map[string]string {
	return map[string]string{
		contentstore.BucketObjects:   c.ObjectsBucket,
		contentstore.BucketTemplates: c.TemplatesBucket,
		contentstore.BucketSessions:  c.SessionsBucket,
		contentstore.BucketFiles:     c.FilesBucket,
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required when using fs storage")
		}
	case "s3":
		for role, bucket := range c.S3.buckets() {
			if bucket == "" {
				return fmt.Errorf("s3 bucket for %s is required", role)
			}
		}
	default:
		return fmt.Errorf("storage_type must be 'memory', 'fs' or 's3', got %q", c.StorageType)
	}

	switch c.LockType {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis_addr is required when using redis locks")
		}
	case "postgres":
		if c.LockDatabaseURL == "" {
			return errors.New("lock_database_url is required when using postgres locks")
		}
	default:
		return fmt.Errorf("lock_type must be 'memory', 'redis' or 'postgres', got %q", c.LockType)
	}

	if c.LockTTL <= 0 {
		return errors.New("lock_ttl must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.UploadPartSize <= 0 {
		return errors.New("upload_part_size must be positive")
	}
	if c.MaxParallelism <= 0 {
		return errors.New("max_parallelism must be positive")
	}
	return nil
}

// BuildService creates a Service from the server configuration. The returned
// cleanup closes lock connections and must be called once the service is no
// longer used. extra options are applied after the configured ones.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...contentstore.Option) (contentstore.Service, func(), error) {
	stores, err := c.BuildBlobStores(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build blob stores: %w", err)
	}

	locks, cleanup, err := c.BuildLockCoordinator(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build lock coordinator: %w", err)
	}

	options := []contentstore.Option{
		contentstore.WithLockCoordinator(locks),
		contentstore.WithSessionTTL(c.SessionTTL),
		contentstore.WithPartSize(c.UploadPartSize),
		contentstore.WithMaxParallelism(c.MaxParallelism),
		contentstore.WithFilesPublicURL(c.FilesPublicURL),
	}
	for role, store := range stores {
		options = append(options, contentstore.WithBlobStore(role, store))
	}
	if c.EnableEventLogging {
		options = append(options, contentstore.WithEventSink(contentstore.NewLoggingEventSink(slog.Default())))
	}
	options = append(options, extra...)

	svc, err := contentstore.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// BuildBlobStores creates one blob store per role. The fs type keeps each
// role in a directory named after its bucket.
func (c *ServerConfig) BuildBlobStores(ctx context.Context) (map[string]contentstore.BlobStore, error) {
	stores := make(map[string]contentstore.BlobStore)
	for role, bucket := range c.S3.buckets() {
		switch c.StorageType {
		case "memory":
			// roles share key shapes, so each gets its own store
			stores[role] = memorystorage.New()
		case "fs":
			backend, err := fsstorage.New(fsstorage.Config{BaseDir: filepath.Join(c.FSBaseDir, bucket)})
			if err != nil {
				return nil, fmt.Errorf("fs store for %s: %w", role, err)
			}
			stores[role] = backend
		case "s3":
			backend, err := s3storage.New(s3storage.Config{
				Region:                 c.S3.Region,
				Bucket:                 bucket,
				AccessKeyID:            c.S3.AccessKeyID,
				SecretAccessKey:        c.S3.SecretAccessKey,
				Endpoint:               c.S3.Endpoint,
				UsePathStyle:           c.S3.UsePathStyle,
				CreateBucketIfNotExist: c.S3.CreateBuckets,
			})
			if err != nil {
				return nil, fmt.Errorf("s3 bucket %s for %s: %w", bucket, role, err)
			}
			stores[role] = backend
		default:
			return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
		}
	}
	return stores, nil
}

// BuildLockCoordinator connects the configured lock coordinator. The returned
// cleanup releases its connections.
func (c *ServerConfig) BuildLockCoordinator(ctx context.Context) (contentstore.LockCoordinator, func(), error) {
	switch c.LockType {
	case "memory":
		return memorylock.New(), func() {}, nil

	case "redis":
		coordinator, err := redislock.New(redislock.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			TTL:      c.LockTTL,
			Prefix:   c.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := coordinator.Ping(pingCtx); err != nil {
			coordinator.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return coordinator, func() { coordinator.Close() }, nil

	case "postgres":
		coordinator, pool, err := postgreslock.NewWithPool(ctx, c.LockDatabaseURL, c.LockTTL)
		if err != nil {
			return nil, nil, err
		}
		if err := coordinator.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return coordinator, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported lock type: %s", c.LockType)
	}
}
