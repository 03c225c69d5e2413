// Package cache provides a Redis read-through cache in front of a
// MessageRepository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/givers/message-service/internal/model"
	"github.com/givers/message-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

// CachedMessageRepository caches GetByID results in Redis and invalidates the
// entry on UpdateStatus. Redis failures are logged and fall back to the
// wrapped repository.
//
// Each message also has a generation counter that UpdateStatus bumps. A
// read-through fill only lands if the generation it saw before reading the
// store is still current, so a slow read cannot overwrite a newer status.
type CachedMessageRepository struct {
	next repository.MessageRepository
	rdb  *redis.Client
	ttl  time.Duration
}

var _ repository.MessageRepository = (*CachedMessageRepository)(nil)

// New wraps next with a cache on rdb. Entries expire after ttl.
func New(next repository.MessageRepository, rdb *redis.Client, ttl time.Duration) *CachedMessageRepository {
	return &CachedMessageRepository{next: next, rdb: rdb, ttl: ttl}
}

func key(id int64) string { return "message:" + strconv.FormatInt(id, 10) }

func genKey(id int64) string { return "message:" + strconv.FormatInt(id, 10) + ":gen" }

// errStaleFill aborts a fill whose generation moved on.
var errStaleFill = errors.New("stale cache fill")

// entry is the cached encoding of a message.
type entry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

func toEntry(m *model.Message) entry {
	return entry{
		ID: m.ID, UserID: m.UserID, Email: m.Email, Subject: m.Subject,
		Body: m.Body, CreatedAt: m.CreatedAt, Status: string(m.Status),
	}
}

func (e entry) message() *model.Message {
	return &model.Message{
		ID: e.ID, UserID: e.UserID, Email: e.Email, Subject: e.Subject,
		Body: e.Body, CreatedAt: e.CreatedAt.UTC(), Status: model.Status(e.Status),
	}
}

// Create is not cached; new messages are read by id rarely enough.
func (c *CachedMessageRepository) Create(ctx context.Context, in model.NewMessage) (*model.Message, error) {
	return c.next.Create(ctx, in)
}

func (c *CachedMessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	b, err := c.rdb.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var e entry
		if err := json.Unmarshal(b, &e); err == nil {
			return e.message(), nil
		}
		slog.Warn("discarding corrupt cache entry", "message_id", id)
	case !errors.Is(err, redis.Nil):
		slog.Warn("message cache get failed", "message_id", id, "error", err)
	}

	gen, genErr := c.generation(ctx, id)

	m, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		c.fill(ctx, m, gen)
	}
	return m, nil
}

func (c *CachedMessageRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.Message, int, error) {
	return c.next.List(ctx, opts)
}

// UpdateStatus bumps the generation and drops the entry once the store has
// committed; the next GetByID reloads it.
func (c *CachedMessageRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error) {
	m, err := c.next.UpdateStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	c.invalidate(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// generation returns the current generation of id; a missing counter is 0.
func (c *CachedMessageRepository) generation(ctx context.Context, id int64) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		slog.Warn("message cache generation read failed", "message_id", id, "error", err)
	}
	return gen, err
}

// fill caches m unless the generation changed since gen was read.
func (c *CachedMessageRepository) fill(ctx context.Context, m *model.Message, gen int64) {
	b, err := json.Marshal(toEntry(m))
	if err != nil {
		return
	}
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey(m.ID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key(m.ID), b, c.ttl)
			return nil
		})
		return err
	}, genKey(m.ID))
	// errStaleFill and TxFailedErr mean a concurrent UpdateStatus won.
	if err != nil && !errors.Is(err, errStaleFill) && !errors.Is(err, redis.TxFailedErr) {
		slog.Warn("message cache set failed", "message_id", m.ID, "error", err)
	}
}

func (c *CachedMessageRepository) invalidate(ctx context.Context, id int64) {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(id))
		if c.ttl > 0 {
			p.Expire(ctx, genKey(id), c.ttl)
		}
		p.Del(ctx, key(id))
		return nil
	})
	if err != nil {
		slog.Warn("message cache invalidate failed", "message_id", id, "error", err)
	}
}

// NewClient creates a Redis client for addr and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
