package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
	memorylock "github.com/tendant/versioned-content/pkg/contentstore/lock/memory"
	fsstorage "github.com/tendant/versioned-content/pkg/contentstore/storage/fs"
	s3storage "github.com/tendant/versioned-content/pkg/contentstore/storage/s3"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "memory", cfg.LockType)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, contentstore.DefaultSessionTTL, cfg.SessionTTL)
	assert.Equal(t, int64(contentstore.DefaultPartSize), cfg.UploadPartSize)
	assert.Equal(t, "content-files", cfg.S3.FilesBucket)
}

func TestWithEnv(t *testing.T) {
	t.Run("Reads every section", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("STORAGE_TYPE", "s3")
		t.Setenv("S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("S3_USE_PATH_STYLE", "true")
		t.Setenv("S3_FILES_BUCKET", "uploads")
		t.Setenv("LOCK_TYPE", "redis")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("LOCK_TTL", "30s")
		t.Setenv("SESSION_TTL", "1h")
		t.Setenv("UPLOAD_PART_SIZE", "1048576")
		t.Setenv("MAX_PARALLELISM", "4")
		t.Setenv("FILES_PUBLIC_URL", "https://cdn.example.com/files")

		cfg, err := Load(WithEnv())
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "s3", cfg.StorageType)
		assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
		assert.True(t, cfg.S3.UsePathStyle)
		assert.Equal(t, "uploads", cfg.S3.FilesBucket)
		assert.Equal(t, "content-objects", cfg.S3.ObjectsBucket)
		assert.Equal(t, "redis", cfg.LockType)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, 3, cfg.Redis.DB)
		assert.Equal(t, 30*time.Second, cfg.LockTTL)
		assert.Equal(t, time.Hour, cfg.SessionTTL)
		assert.Equal(t, int64(1<<20), cfg.UploadPartSize)
		assert.Equal(t, 4, cfg.MaxParallelism)
		assert.Equal(t, "https://cdn.example.com/files", cfg.FilesPublicURL)
	})

	t.Run("Options after env override it", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		cfg, err := Load(WithEnv(), WithPort("7070"))
		require.NoError(t, err)
		assert.Equal(t, "7070", cfg.Port)
	})

	t.Run("Malformed duration", func(t *testing.T) {
		t.Setenv("SESSION_TTL", "soon")
		_, err := Load(WithEnv())
		assert.Error(t, err)
	})

	t.Run("Unknown lock type", func(t *testing.T) {
		t.Setenv("LOCK_TYPE", "zookeeper")
		_, err := Load(WithEnv())
		assert.ErrorContains(t, err, "lock_type")
	})

	t.Run("Postgres locks need a database url", func(t *testing.T) {
		t.Setenv("LOCK_TYPE", "postgres")
		_, err := Load(WithEnv())
		assert.ErrorContains(t, err, "lock_database_url")
	})
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"empty port", WithPort(""), true},
		{"redis without address", WithRedisLocks("", "", 0), true},
		{"postgres without url", WithPostgresLocks(""), true},
		{"zero lock ttl", WithLockTTL(0), true},
		{"negative session ttl", WithSessionTTL(-time.Second), true},
		{"zero part size", WithUploadPartSize(0), true},
		{"zero parallelism", WithMaxParallelism(0), true},
		{"redis locks", WithRedisLocks("localhost:6379", "", 1), false},
		{"postgres locks", WithPostgresLocks("postgres://localhost/locks"), false},
		{"s3 storage", WithS3Storage(S3Config{Region: "eu-west-1"}), false},
		{"empty fs directory", WithFSStorage(""), true},
		{"fs storage", WithFSStorage("data"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("S3 storage keeps default bucket names", func(t *testing.T) {
		cfg, err := Load(WithS3Storage(S3Config{FilesBucket: "uploads"}))
		require.NoError(t, err)
		assert.Equal(t, "s3", cfg.StorageType)
		assert.Equal(t, "us-east-1", cfg.S3.Region)
		assert.Equal(t, "uploads", cfg.S3.FilesBucket)
		assert.Equal(t, "content-templates", cfg.S3.TemplatesBucket)
	})
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory service is usable", func(t *testing.T) {
		cfg, err := Load(WithEventLogging(false))
		require.NoError(t, err)

		svc, cleanup, err := cfg.BuildService(ctx)
		require.NoError(t, err)
		defer cleanup()

		exists, err := svc.TemplateExists(ctx, 1)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Memory stores are separate per role", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		stores, err := cfg.BuildBlobStores(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 4)
		assert.NotSame(t, stores[contentstore.BucketObjects], stores[contentstore.BucketTemplates])
	})

	t.Run("S3 stores are created per bucket", func(t *testing.T) {
		cfg, err := Load(WithS3Storage(S3Config{
			Endpoint:        "http://localhost:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UsePathStyle:    true,
		}))
		require.NoError(t, err)
		stores, err := cfg.BuildBlobStores(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 4)
		for _, store := range stores {
			assert.IsType(t, &s3storage.Backend{}, store)
		}
	})

	t.Run("Fs stores get a directory per bucket", func(t *testing.T) {
		base := t.TempDir()
		cfg, err := Load(WithFSStorage(base))
		require.NoError(t, err)
		stores, err := cfg.BuildBlobStores(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 4)
		for _, store := range stores {
			assert.IsType(t, &fsstorage.Backend{}, store)
		}
		_, err = os.Stat(filepath.Join(base, cfg.S3.FilesBucket))
		assert.NoError(t, err)
	})

	t.Run("Memory locks", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		locks, cleanup, err := cfg.BuildLockCoordinator(ctx)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &memorylock.Coordinator{}, locks)
	})

	t.Run("Unreachable redis fails fast", func(t *testing.T) {
		cfg, err := Load(WithRedisLocks("127.0.0.1:1", "", 0))
		require.NoError(t, err)
		_, _, err = cfg.BuildLockCoordinator(ctx)
		assert.Error(t, err)
	})
}

func TestUsage(t *testing.T) {
	usage := Usage()
	assert.Contains(t, usage, "LOCK_TYPE")
	assert.Contains(t, usage, "S3_FILES_BUCKET")
}
