// Package memory provides an in-process contentstore.LockCoordinator.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// Coordinator holds locks in a map guarded by a mutex. Locks never expire.
type Coordinator struct {
	mu   sync.Mutex
	held map[string]string // key -> token
}

// New creates an empty coordinator
func New() *Coordinator {
	return &Coordinator{held: make(map[string]string)}
}

var _ contentstore.LockCoordinator = (*Coordinator)(nil)

// Acquire takes the lock for key or fails with LockAlreadyExistsError
func (c *Coordinator) Acquire(ctx context.Context, key string) (contentstore.LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.held[key]; ok {
		return nil, &contentstore.LockAlreadyExistsError{Key: key}
	}
	token := uuid.NewString()
	c.held[key] = token
	return &handle{c: c, key: key, token: token}, nil
}

// ListActive returns the held keys in ascending order
func (c *Coordinator) ListActive(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.held))
	for k := range c.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ForceRelease drops the lock for key whoever holds it
func (c *Coordinator) ForceRelease(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, key)
	return nil
}

type handle struct {
	c     *Coordinator
	key   string
	token string
}

func (h *handle) Key() string { return h.key }

// Release only drops the lock if it is still held with this handle's token.
func (h *handle) Release(ctx context.Context) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.held[h.key] == h.token {
		delete(h.c.held, h.key)
	}
	return nil
}
