package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/types"
)

var (
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// SnapshotStore persists session snapshots
type SnapshotStore interface {
	Save(ctx context.Context, snap *types.Snapshot) error
	Load(ctx context.Context, sessionID string) (*types.Snapshot, error)
	List(ctx context.Context) ([]types.SnapshotInfo, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// NewStore opens the snapshot store selected by the storage config
func NewStore(cfg config.StorageConfig) (SnapshotStore, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFileStore(cfg.Dir)
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
}

// FileStore keeps one JSON document per session in a directory
type FileStore struct {
	dir       string
	stateLock sync.RWMutex
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(sessionID string) (string, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(fs.dir, sessionID+".json"), nil
}

// Save writes the snapshot atomically through a temporary file
func (fs *FileStore) Save(_ context.Context, snap *types.Snapshot) error {
	path, err := fs.path(snap.SessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	fs.stateLock.Lock()
	defer fs.stateLock.Unlock()

	tmp, err := os.CreateTemp(fs.dir, snap.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot by session id
func (fs *FileStore) Load(_ context.Context, sessionID string) (*types.Snapshot, error) {
	path, err := fs.path(sessionID)
	if err != nil {
		return nil, err
	}

	fs.stateLock.RLock()
	data, err := os.ReadFile(path)
	fs.stateLock.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return decodeSnapshot(data)
}

// List summarises every stored snapshot, newest first
func (fs *FileStore) List(_ context.Context) ([]types.SnapshotInfo, error) {
	fs.stateLock.RLock()
	defer fs.stateLock.RUnlock()

	paths, err := filepath.Glob(filepath.Join(fs.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	infos := make([]types.SnapshotInfo, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			// unreadable files are skipped rather than hiding every other save
			continue
		}
		infos = append(infos, infoOf(snap))
	}
	sortInfos(infos)
	return infos, nil
}

// Delete removes a stored snapshot
func (fs *FileStore) Delete(_ context.Context, sessionID string) error {
	path, err := fs.path(sessionID)
	if err != nil {
		return err
	}

	fs.stateLock.Lock()
	defer fs.stateLock.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}

func decodeSnapshot(data []byte) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Version != types.SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}
	if snap.Character == nil {
		return nil, errors.New("failed to parse snapshot: missing character")
	}

	// Ensure all maps are initialized
	if snap.Objects == nil {
		snap.Objects = make(map[string]*types.WorldObject)
	}
	if snap.Character.Stats == nil {
		snap.Character.Stats = make(map[types.Ability]int)
	}
	return &snap, nil
}

func infoOf(snap *types.Snapshot) types.SnapshotInfo {
	return types.SnapshotInfo{
		SessionID:     snap.SessionID,
		CharacterName: snap.Character.Name,
		Level:         snap.Character.Level,
		SavedAt:       snap.SavedAt,
	}
}

func sortInfos(infos []types.SnapshotInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].SavedAt.Equal(infos[j].SavedAt) {
			return infos[i].SessionID < infos[j].SessionID
		}
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})
}
