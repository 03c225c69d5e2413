package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/givers/message-service/internal/model"
	_ "modernc.org/sqlite"
)

// sqliteMigrations run in order on open; index+1 is the recorded version.
var sqliteMigrations = []struct {
	name string
	sql  string
}{
	{
		name: "create messages",
		sql: `CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER,
			email      TEXT    NOT NULL CHECK (length(email) BETWEEN 1 AND 100),
			subject    TEXT    NOT NULL CHECK (length(subject) BETWEEN 1 AND 200),
			body       TEXT    NOT NULL CHECK (length(body) > 0),
			created_at INTEGER NOT NULL,
			status     TEXT    NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed'))
		)`,
	},
	{
		name: "index messages by status and created_at",
		sql:  `CREATE INDEX IF NOT EXISTS idx_messages_status_created ON messages (status, created_at DESC, id DESC)`,
	},
}

// SQLiteMessageRepository is a MessageRepository on an embedded SQLite
// database. It is used for local development and by tests.
type SQLiteMessageRepository struct {
	db    *sql.DB
	clock Clock
}

var _ MessageRepository = (*SQLiteMessageRepository)(nil)

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database. A nil clock means
// SystemClock.
func OpenSQLite(ctx context.Context, path string, clock Clock) (*SQLiteMessageRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("failed to enable WAL mode; continuing without WAL", "error", err)
		}
	}

	if clock == nil {
		clock = SystemClock
	}
	r := &SQLiteMessageRepository{db: db, clock: clock}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteMessageRepository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for i, m := range sqliteMigrations {
		version := i + 1
		var count int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}
		slog.Debug("running migration", "version", version, "migration", m.name)
		if _, err := r.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		if _, err := r.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteMessageRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *SQLiteMessageRepository) Close() error {
	return r.db.Close()
}

const sqliteMessageColumns = `id, user_id, email, subject, body, created_at, status`

// Create inserts a new row and returns it as stored.
func (r *SQLiteMessageRepository) Create(ctx context.Context, in model.NewMessage) (*model.Message, error) {
	var userID sql.NullInt64
	if in.UserID != nil {
		userID = sql.NullInt64{Int64: *in.UserID, Valid: true}
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (user_id, email, subject, body, created_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+sqliteMessageColumns,
		userID, in.Email, in.Subject, in.Body, stamp(r.clock).UnixMicro(), string(model.StatusOpen),
	)
	m, err := scanSQLiteMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetByID returns the message with the given id or ErrNotFound.
func (r *SQLiteMessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

// List returns one page of messages plus the total matching count.
func (r *SQLiteMessageRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.Message, int, error) {
	where := ""
	var args []any
	if opts.Status != nil {
		where = "WHERE status = ?"
		args = append(args, string(*opts.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	args = append(args, opts.PerPage, opts.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteMessageColumns+` FROM messages `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return messages, total, nil
}

// UpdateStatus sets the status column and returns the updated row.
func (r *SQLiteMessageRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ? RETURNING `+sqliteMessageColumns,
		string(status), id,
	)
	m, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message %d status: %w", id, err)
	}
	return m, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row sqlScanner) (*model.Message, error) {
	var (
		m         model.Message
		userID    sql.NullInt64
		createdAt int64
		status    string
	)
	if err := row.Scan(&m.ID, &userID, &m.Email, &m.Subject, &m.Body, &createdAt, &status); err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := userID.Int64
		m.UserID = &uid
	}
	m.CreatedAt = time.UnixMicro(createdAt).UTC()
	m.Status = model.Status(status)
	return &m, nil
}
