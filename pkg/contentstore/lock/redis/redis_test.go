package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// newTestCoordinator connects to REDIS_ADDR (default localhost:6379) and
// skips the test when Redis is not reachable.
func newTestCoordinator(t *testing.T, ttl time.Duration) *Coordinator {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := New(Config{
		Addr:   addr,
		TTL:    ttl,
		Prefix: fmt.Sprintf("contentstore-test:%d:", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		c.Close()
		t.Skip("Skipping Redis integration test: redis not available")
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCoordinator_Integration(t *testing.T) {
	c := newTestCoordinator(t, time.Minute)
	ctx := context.Background()

	h, err := c.Acquire(ctx, "object:1")
	require.NoError(t, err)

	_, err = c.Acquire(ctx, "object:1")
	assert.ErrorIs(t, err, contentstore.ErrLockAlreadyExists)

	_, err = c.Acquire(ctx, "template:2")
	require.NoError(t, err)

	keys, err := c.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"object:1", "template:2"}, keys)

	require.NoError(t, h.Release(ctx))
	require.NoError(t, h.Release(ctx))
	require.NoError(t, c.ForceRelease(ctx, "template:2"))

	keys, err = c.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCoordinator_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	c := newTestCoordinator(t, 200*time.Millisecond)
	ctx := context.Background()

	old, err := c.Acquire(ctx, "object:9")
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	current, err := c.Acquire(ctx, "object:9")
	require.NoError(t, err)

	require.NoError(t, old.Release(ctx))
	_, err = c.Acquire(ctx, "object:9")
	assert.ErrorIs(t, err, contentstore.ErrLockAlreadyExists)

	require.NoError(t, current.Release(ctx))
}
