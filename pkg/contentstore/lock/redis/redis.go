// Package redis implements contentstore.LockCoordinator with Redis leases.
//
// A lock is a key set with NX and a TTL whose value is a random token. Release
// deletes the key only while it still carries the holder's token, so a holder
// whose lease expired cannot drop a lock someone else acquired since.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a key.
	DefaultTTL = 2 * time.Minute

	DefaultPrefix = "contentstore:lock:"

	scanBatch = 100
)

// KEYS[1] = lock key, ARGV[1] = holder token
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config for the Redis coordinator
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Coordinator is a lease-based lock coordinator on a single Redis node.
type Coordinator struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

var _ contentstore.LockCoordinator = (*Coordinator)(nil)

// New creates a coordinator with its own client
func New(config Config) (*Coordinator, error) {
	if config.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewWithClient(client, config.TTL, config.Prefix), nil
}

// NewWithClient creates a coordinator on an existing client. Zero ttl and
// empty prefix select the defaults.
func NewWithClient(client *goredis.Client, ttl time.Duration, prefix string) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Coordinator{client: client, ttl: ttl, prefix: prefix}
}

// Ping checks that Redis is reachable
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *Coordinator) Close() error {
	return c.client.Close()
}

// Acquire takes the lock for key or fails with LockAlreadyExistsError
func (c *Coordinator) Acquire(ctx context.Context, key string) (contentstore.LockHandle, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.prefix+key, token, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock acquire %s: %w", key, err)
	}
	if !ok {
		return nil, &contentstore.LockAlreadyExistsError{Key: key}
	}
	return &handle{c: c, key: key, token: token}, nil
}

// ListActive scans for held keys and returns them without the prefix, sorted
func (c *Coordinator) ListActive(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock scan: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, c.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ForceRelease deletes the lock key regardless of its token
func (c *Coordinator) ForceRelease(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis lock force release %s: %w", key, err)
	}
	return nil
}

type handle struct {
	c     *Coordinator
	key   string
	token string
}

func (h *handle) Key() string { return h.key }

func (h *handle) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, h.c.client, []string{h.c.prefix + h.key}, h.token).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis lock release %s: %w", h.key, err)
	}
	return nil
}
