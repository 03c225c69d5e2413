package repository

import (
	"context"
	"time"

	"github.com/givers/message-service/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB reports whether the backing store is reachable.
type DB interface {
	Ping(ctx context.Context) error
}

// MessageRepository is the storage contract for contact messages.
type MessageRepository interface {
	// Create assigns ID and CreatedAt, sets Status to open and persists the
	// message in a single insert.
	Create(ctx context.Context, in model.NewMessage) (*model.Message, error)
	// GetByID returns ErrNotFound when no message has the given id.
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	// List returns one page ordered by CreatedAt then ID, newest first, and
	// the number of messages matching opts.Status across all pages.
	// opts must already be normalized.
	List(ctx context.Context, opts model.ListOptions) ([]*model.Message, int, error)
	// UpdateStatus changes only Status and returns the updated message, or
	// ErrNotFound.
	UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error)
}

// Clock returns the current time. Stores call it once per Create.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// stamp normalizes a clock reading to the precision every store keeps.
func stamp(c Clock) time.Time {
	return c().UTC().Truncate(time.Microsecond)
}

// NewPool creates a PostgreSQL connection pool and verifies it with a ping.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
