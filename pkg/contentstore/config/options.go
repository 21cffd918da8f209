package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMemoryStorage keeps every blob store role in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		return nil
	}
}

// WithFSStorage stores every role under baseDir on the local filesystem
func WithFSStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("fs base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.FSBaseDir = baseDir
		return nil
	}
}

// WithS3Storage stores every role in S3. Unset bucket names keep their defaults.
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		current := c.S3
		if s3.Region == "" {
			s3.Region = current.Region
		}
		if s3.ObjectsBucket == "" {
			s3.ObjectsBucket = current.ObjectsBucket
		}
		if s3.TemplatesBucket == "" {
			s3.TemplatesBucket = current.TemplatesBucket
		}
		if s3.SessionsBucket == "" {
			s3.SessionsBucket = current.SessionsBucket
		}
		if s3.FilesBucket == "" {
			s3.FilesBucket = current.FilesBucket
		}
		c.StorageType = "s3"
		c.S3 = s3
		return nil
	}
}

// WithMemoryLocks uses the in-process lock coordinator (single instance only)
func WithMemoryLocks() Option {
	return func(c *ServerConfig) error {
		c.LockType = "memory"
		return nil
	}
}

// WithRedisLocks uses Redis leases for locking
func WithRedisLocks(addr, password string, db int) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		c.LockType = "redis"
		c.Redis.Addr = addr
		c.Redis.Password = password
		c.Redis.DB = db
		return nil
	}
}

// WithPostgresLocks uses a lease table in Postgres for locking
func WithPostgresLocks(databaseURL string) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" {
			return fmt.Errorf("lock database URL cannot be empty")
		}
		c.LockType = "postgres"
		c.LockDatabaseURL = databaseURL
		return nil
	}
}

// WithLockTTL sets the lease of redis and postgres locks
func WithLockTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("lock ttl must be positive, got %s", ttl)
		}
		c.LockTTL = ttl
		return nil
	}
}

// WithSessionTTL sets how long upload sessions stay valid
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("session ttl must be positive, got %s", ttl)
		}
		c.SessionTTL = ttl
		return nil
	}
}

// WithUploadPartSize sets the multipart chunk size
func WithUploadPartSize(size int64) Option {
	return func(c *ServerConfig) error {
		if size <= 0 {
			return fmt.Errorf("upload part size must be positive, got %d", size)
		}
		c.UploadPartSize = size
		return nil
	}
}

// WithMaxParallelism bounds per-request fan-out
func WithMaxParallelism(n int) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max parallelism must be positive, got %d", n)
		}
		c.MaxParallelism = n
		return nil
	}
}

// WithFilesPublicURL sets the base URL of download URIs
func WithFilesPublicURL(url string) Option {
	return func(c *ServerConfig) error {
		c.FilesPublicURL = url
		return nil
	}
}

// WithAPIKeySHA256 sets the hex SHA-256 of the API key the server accepts
func WithAPIKeySHA256(hash string) Option {
	return func(c *ServerConfig) error {
		c.APIKeySHA256 = hash
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
