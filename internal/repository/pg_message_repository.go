package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/givers/message-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgMessageRepository is the PostgreSQL implementation of MessageRepository.
type PgMessageRepository struct {
	pool  *pgxpool.Pool
	clock Clock
}

// NewPgMessageRepository creates a PgMessageRepository backed by the given pool.
// A nil clock means SystemClock.
func NewPgMessageRepository(pool *pgxpool.Pool, clock Clock) *PgMessageRepository {
	if clock == nil {
		clock = SystemClock
	}
	return &PgMessageRepository{pool: pool, clock: clock}
}

var _ MessageRepository = (*PgMessageRepository)(nil)

const pgMessageColumns = `id, user_id, email, subject, body, created_at, status`

// Create inserts a new messages row and returns it as stored.
func (r *PgMessageRepository) Create(ctx context.Context, in model.NewMessage) (*model.Message, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO messages (user_id, email, subject, body, created_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+pgMessageColumns,
		in.UserID, in.Email, in.Subject, in.Body, stamp(r.clock), string(model.StatusOpen),
	)
	m, err := scanPgMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetByID returns the message with the given id or ErrNotFound.
func (r *PgMessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgMessageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanPgMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

// List returns one page of messages plus the total matching count. Both
// queries share one REPEATABLE READ snapshot so total agrees with the page.
func (r *PgMessageRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.Message, int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin list: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	where := ""
	var args []any
	if opts.Status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*opts.Status))
	}

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM messages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	limitArg := len(args) + 1
	args = append(args, opts.PerPage, opts.Offset())
	query := fmt.Sprintf(`SELECT %s FROM messages %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, pgMessageColumns, where, limitArg, limitArg+1)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit list: %w", err)
	}
	return messages, total, nil
}

// UpdateStatus sets the status column and returns the updated row.
func (r *PgMessageRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE messages SET status = $1 WHERE id = $2 RETURNING `+pgMessageColumns,
		string(status), id,
	)
	m, err := scanPgMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message %d status: %w", id, err)
	}
	return m, nil
}

func scanPgMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var status string
	if err := row.Scan(&m.ID, &m.UserID, &m.Email, &m.Subject, &m.Body, &m.CreatedAt, &status); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.Status = model.Status(status)
	return &m, nil
}
