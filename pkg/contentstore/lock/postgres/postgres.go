// Package postgres implements contentstore.LockCoordinator as a lease table in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 2 * time.Minute

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const schema = `
	CREATE TABLE IF NOT EXISTS content_lock (
		lock_key    TEXT PRIMARY KEY,
		token       TEXT NOT NULL,
		acquired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at  TIMESTAMPTZ NOT NULL
	)`

// Coordinator keeps one row per held lock. An expired row may be taken over
// by the next Acquire.
type Coordinator struct {
	db  DBTX
	ttl time.Duration
}

var _ contentstore.LockCoordinator = (*Coordinator)(nil)

// New creates a coordinator. A zero ttl selects DefaultTTL.
func New(db DBTX, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{db: db, ttl: ttl}
}

// NewWithPool connects a pool to databaseURL and creates a coordinator on it
func NewWithPool(ctx context.Context, databaseURL string, ttl time.Duration) (*Coordinator, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lock pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping lock database: %w", err)
	}
	return New(pool, ttl), pool, nil
}

// EnsureSchema creates the lease table if it does not exist
func (c *Coordinator) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, schema); err != nil {
		return c.handlePostgresError("ensure schema", err)
	}
	return nil
}

func (c *Coordinator) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("table content_lock does not exist - run EnsureSchema: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Acquire inserts the lock row, or takes over an expired one
func (c *Coordinator) Acquire(ctx context.Context, key string) (contentstore.LockHandle, error) {
	query := `
		INSERT INTO content_lock (lock_key, token, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (lock_key) DO UPDATE SET
			token = EXCLUDED.token, acquired_at = now(), expires_at = EXCLUDED.expires_at
		WHERE content_lock.expires_at < now()
		RETURNING token`

	token := uuid.NewString()
	var got string
	err := c.db.QueryRow(ctx, query, key, token, c.ttl.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contentstore.LockAlreadyExistsError{Key: key}
	}
	if err != nil {
		return nil, c.handlePostgresError("acquire lock", err)
	}
	return &handle{c: c, key: key, token: token}, nil
}

// ListActive returns the keys of unexpired locks in ascending order
func (c *Coordinator) ListActive(ctx context.Context) ([]string, error) {
	rows, err := c.db.Query(ctx, `SELECT lock_key FROM content_lock WHERE expires_at >= now() ORDER BY lock_key`)
	if err != nil {
		return nil, c.handlePostgresError("list locks", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, c.handlePostgresError("list locks", err)
	}
	return keys, nil
}

// ForceRelease deletes the lock row regardless of its token
func (c *Coordinator) ForceRelease(ctx context.Context, key string) error {
	if _, err := c.db.Exec(ctx, `DELETE FROM content_lock WHERE lock_key = $1`, key); err != nil {
		return c.handlePostgresError("force release lock", err)
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
	_, err := h.c.db.Exec(ctx, `DELETE FROM content_lock WHERE lock_key = $1 AND token = $2`, h.key, h.token)
	if err != nil {
		return h.c.handlePostgresError("release lock", err)
	}
	return nil
}
