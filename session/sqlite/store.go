// Package sqlite persists session snapshots in a SQLite database so that
// sessions survive LRU eviction and process restarts.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/session"
)

// Snapshotter implements session.Persister on top of SQLite.
type Snapshotter struct {
	db *sql.DB
}

var _ session.Persister = (*Snapshotter)(nil)

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Snapshotter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	s := &Snapshotter{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Snapshotter) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`)
	return err
}

// Load returns the stored snapshot or core.ErrSessionNotFound.
func (s *Snapshotter) Load(id string) (*core.SessionContext, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess core.SessionContext
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Store upserts the snapshot.
func (s *Snapshotter) Store(sess *core.SessionContext) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.db.Exec(`
	INSERT INTO sessions (id, state, updated_at, payload) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at, payload = excluded.payload
	`, sess.ID, string(sess.State), sess.UpdatedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}
	return nil
}

// Remove deletes the snapshot. Removing a missing id is not an error.
func (s *Snapshotter) Remove(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	return nil
}

// PruneBefore deletes snapshots last updated before cutoff and returns how
// many were removed.
func (s *Snapshotter) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored snapshots.
func (s *Snapshotter) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Snapshotter) Close() error {
	return s.db.Close()
}
