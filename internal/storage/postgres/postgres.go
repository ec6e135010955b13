// Package postgres persists the supplemented account and room-history
// features on top of lib/pq, the driver the teacher already depends
// on for its own user table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/NuvandaPV/instant/internal/logging"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("postgres: not found")

// Account is a registered user: username plus bcrypt hash.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
}

// Store wraps a *sql.DB with the accounts and room-history schema this
// server needs.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id SERIAL PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS room_history (
			id BIGSERIAL PRIMARY KEY,
			room TEXT NOT NULL,
			envelope JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS room_history_room_idx ON room_history (room, id DESC);
	`)
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// CreateAccount inserts a new account row. Returns a *pq.Error-wrapping
// error on a duplicate username, left for the caller to classify.
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ($1, $2)`,
		username, passwordHash)
	return err
}

// FindAccount looks up an account by username.
func (s *Store) FindAccount(ctx context.Context, username string) (Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM accounts WHERE username = $1`, username).
		Scan(&a.ID, &a.Username, &a.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// historyRetention bounds how many envelopes AppendHistory keeps per
// room, per spec.md's "history is best-effort and bounded" non-goal
// framing: durable storage is out of scope, but a small ring of recent
// traffic is cheap and matches what room-history replay needs.
const historyRetention = 200

// AppendHistory records envelope under room and trims older rows past
// historyRetention. Both operations run best-effort: a failure here
// never affects message delivery, only history replay.
func (s *Store) AppendHistory(ctx context.Context, room string, envelope []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO room_history (room, envelope) VALUES ($1, $2)`, room, envelope); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM room_history
		WHERE room = $1 AND id NOT IN (
			SELECT id FROM room_history WHERE room = $1 ORDER BY id DESC LIMIT $2
		)`, room, historyRetention)
	return err
}

// HistorySink adapts a Store to chat.HistorySink (satisfied
// structurally, without importing the chat package) for wiring into
// the distributor: every call runs AppendHistory against a fresh
// background context and logs, rather than propagates, failure.
type HistorySink struct {
	Store  *Store
	Logger *logging.Logger
}

// AppendHistory implements chat.HistorySink.
func (h HistorySink) AppendHistory(room string, envelope []byte) {
	if err := h.Store.AppendHistory(context.Background(), room, envelope); err != nil {
		h.Logger.Errorf("postgres: append history for room %q: %v", room, err)
	}
}

// RecentHistory returns up to limit of the most recent envelopes for
// room, oldest first.
func (s *Store) RecentHistory(ctx context.Context, room string, limit int) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT envelope FROM room_history WHERE room = $1 ORDER BY id DESC LIMIT $2`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent history: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var envelope []byte
		if err := rows.Scan(&envelope); err != nil {
			return nil, err
		}
		out = append(out, envelope)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
