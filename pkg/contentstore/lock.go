package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// lockReleaseTimeout bounds the release call, which must run even if ctx is done.
const lockReleaseTimeout = 10 * time.Second

// withLock runs fn while holding the lock for key. The lock is released on
// every exit path, including panics inside fn.
func withLock(ctx context.Context, locks LockCoordinator, logger *slog.Logger, key string, fn func(ctx context.Context) error) (err error) {
	handle, err := locks.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrLockAlreadyExists) {
			return err
		}
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if releaseErr := handle.Release(releaseCtx); releaseErr != nil {
			logger.ErrorContext(ctx, "failed to release lock", "lock_key", key, "err", releaseErr)
		}
	}()
	return fn(ctx)
}
