// Package blob stores attachment payloads outside the room message logs.
// Messages carry only a handle, so the bounded in-memory history stays
// small no matter how large the files are. Rooms and their blobs share a
// lifetime: when a room is reaped its blobs go with it.
package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Blob is one stored attachment.
type Blob struct {
	Handle    string
	RoomID    string
	Name      string
	Mime      string
	Size      int64
	Data      []byte
	CreatedAt time.Time
}

// Store wraps the SQLite handle. Call Migrate once after opening and
// Close when done.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at the provided path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("blob store path is required")
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	return path
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS blobs (
	handle     TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	mime       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	data       BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blobs_room ON blobs(room_id);
`)
	return err
}

// Put stores a payload for the given room and returns its handle.
func (s *Store) Put(ctx context.Context, roomID, name, mime string, data []byte) (string, error) {
	handle := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (handle, room_id, name, mime, size, data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		handle, roomID, name, mime, int64(len(data)), data, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert blob: %w", err)
	}
	return handle, nil
}

// Get fetches a blob by handle. Returns nil without error when the handle
// is unknown.
func (s *Store) Get(ctx context.Context, handle string) (*Blob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT handle, room_id, name, mime, size, data, created_at FROM blobs WHERE handle = ?`, handle)
	var b Blob
	err := row.Scan(&b.Handle, &b.RoomID, &b.Name, &b.Mime, &b.Size, &b.Data, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Delete removes a single blob. Unknown handles are a no-op.
func (s *Store) Delete(ctx context.Context, handle string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE handle = ?`, handle)
	return err
}

// DeleteRoom removes every blob belonging to the room.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE room_id = ?`, roomID)
	return err
}

// Count reports how many blobs are stored, for the metrics endpoint.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n)
	return n, err
}
