package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

// DataLoader handles loading game data from files
type DataLoader struct {
	basePath string
}

// NewDataLoader creates a new data loader
func NewDataLoader(basePath string) *DataLoader {
	return &DataLoader{
		basePath: basePath,
	}
}

// LoadTriggers loads triggers.json, falling back to the built-in table when
// the file does not exist
func (dl *DataLoader) LoadTriggers() (rules.TriggerTable, error) {
	path := filepath.Join(dl.basePath, "triggers.json")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return rules.DefaultTriggers, nil
	}
	return rules.LoadTriggers(path)
}

// LoadObjects loads the world objects every new session starts with from
// objects.json, falling back to DefaultObjects when the file does not exist
func (dl *DataLoader) LoadObjects() ([]types.WorldObject, error) {
	path := filepath.Join(dl.basePath, "objects.json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultObjects(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read objects file: %w", err)
	}

	var objects []types.WorldObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to parse objects data: %w", err)
	}
	for i, obj := range objects {
		if obj.Key == "" {
			return nil, fmt.Errorf("object %d has no key", i)
		}
	}

	return objects, nil
}

// DefaultObjects returns the built-in world objects
func DefaultObjects() []types.WorldObject {
	return []types.WorldObject{
		{
			Key:         "chest",
			Name:        "Old Chest",
			Description: "A weathered chest bound in iron.",
			Contents: types.Inventory{
				{Name: "Gold Coin", Quantity: 10},
				{Name: "Healing Potion", Quantity: 1},
			},
		},
	}
}

// objectMap instantiates fresh copies of the object templates for a session
func objectMap(templates []types.WorldObject) map[string]*types.WorldObject {
	objects := make(map[string]*types.WorldObject, len(templates))
	for _, tmpl := range templates {
		obj := tmpl
		obj.Contents = tmpl.Contents.Clone()
		objects[obj.Key] = &obj
	}
	return objects
}

// AutosaveSystem periodically persists sessions that changed since their
// last save
type AutosaveSystem struct {
	gameManager *GameManager
	ticker      *time.Ticker
	stopChan    chan struct{}
}

// NewAutosaveSystem creates a new autosave system
func NewAutosaveSystem(gameManager *GameManager, interval time.Duration) *AutosaveSystem {
	return &AutosaveSystem{
		gameManager: gameManager,
		ticker:      time.NewTicker(interval),
		stopChan:    make(chan struct{}),
	}
}

// Start begins the autosave loop
func (as *AutosaveSystem) Start() {
	go func() {
		for {
			select {
			case <-as.ticker.C:
				as.saveDirty()
			case <-as.stopChan:
				as.ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the autosave loop
func (as *AutosaveSystem) Stop() {
	close(as.stopChan)
}

func (as *AutosaveSystem) saveDirty() {
	saved, skipped := 0, 0
	for _, session := range as.gameManager.activeSessions() {
		ok, err := as.gameManager.saveIfDirty(session)
		switch {
		case errors.Is(err, ErrTurnInProgress):
			skipped++
		case errors.Is(err, ErrSessionNotFound):
			// ended or reloaded since the listing
		case err != nil:
			as.gameManager.Logger.Error("Autosave failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
		case ok:
			saved++
		}
	}
	if saved > 0 || skipped > 0 {
		as.gameManager.Logger.Info("Autosave cycle completed",
			zap.Int("saved", saved),
			zap.Int("skipped_busy", skipped))
	}
}
