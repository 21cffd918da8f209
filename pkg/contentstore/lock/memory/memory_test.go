package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
	memorylock "github.com/tendant/versioned-content/pkg/contentstore/lock/memory"
)

func TestCoordinator(t *testing.T) {
	ctx := context.Background()

	t.Run("Acquire is exclusive", func(t *testing.T) {
		c := memorylock.New()
		h, err := c.Acquire(ctx, "object:1")
		require.NoError(t, err)
		assert.Equal(t, "object:1", h.Key())

		_, err = c.Acquire(ctx, "object:1")
		assert.ErrorIs(t, err, contentstore.ErrLockAlreadyExists)

		other, err := c.Acquire(ctx, "object:2")
		require.NoError(t, err)
		require.NoError(t, other.Release(ctx))

		require.NoError(t, h.Release(ctx))
		require.NoError(t, h.Release(ctx))

		again, err := c.Acquire(ctx, "object:1")
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("ListActive and ForceRelease", func(t *testing.T) {
		c := memorylock.New()
		stale, err := c.Acquire(ctx, "template:7")
		require.NoError(t, err)
		_, err = c.Acquire(ctx, "object:3")
		require.NoError(t, err)

		keys, err := c.ListActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"object:3", "template:7"}, keys)

		require.NoError(t, c.ForceRelease(ctx, "template:7"))
		fresh, err := c.Acquire(ctx, "template:7")
		require.NoError(t, err)

		// the old handle must not drop the new holder's lock
		require.NoError(t, stale.Release(ctx))
		keys, err = c.ListActive(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, "template:7")
		require.NoError(t, fresh.Release(ctx))
	})

	t.Run("Cancelled context", func(t *testing.T) {
		c := memorylock.New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Acquire(cctx, "object:1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
