package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/user/solo-adventure/internal/types"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	session_id     TEXT PRIMARY KEY,
	character_name TEXT NOT NULL,
	level          INTEGER NOT NULL,
	saved_at       TEXT NOT NULL,
	data           TEXT NOT NULL
)`

// SQLiteStore keeps snapshots in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the snapshot
func (s *SQLiteStore) Save(ctx context.Context, snap *types.Snapshot) error {
	if snap.SessionID == "" || snap.Character == nil {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, snap.SessionID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, character_name, level, saved_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			character_name = excluded.character_name,
			level = excluded.level,
			saved_at = excluded.saved_at,
			data = excluded.data`,
		snap.SessionID, snap.Character.Name, snap.Character.Level,
		snap.SavedAt.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot by session id
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*types.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot([]byte(data))
}

// List summarises every stored snapshot, newest first
func (s *SQLiteStore) List(ctx context.Context) ([]types.SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, character_name, level, saved_at FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []types.SnapshotInfo
	for rows.Next() {
		var info types.SnapshotInfo
		var savedAt string
		if err := rows.Scan(&info.SessionID, &info.CharacterName, &info.Level, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse saved_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sortInfos(infos)
	return infos, nil
}

// Delete removes a stored snapshot
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
