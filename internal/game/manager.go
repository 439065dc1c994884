package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/interfaces"
	"github.com/user/solo-adventure/internal/narrator"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/tags"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// GameManager owns the active sessions and routes operations to the turn
// controller
type GameManager struct {
	sessions   map[string]*Session
	stateLock  sync.RWMutex
	store      SnapshotStore
	config     config.Config
	Logger     *zap.Logger
	diceRoller *rules.DiceRoller
	controller *Controller
	narrator   narrator.Narrator
	objects    []types.WorldObject
	autosave   *AutosaveSystem
}

// Ensure GameManager satifies the interfaces.GameManager interface
var _ interfaces.GameManager = (*GameManager)(nil)

// NewGameManager creates a new game manager. The dice are seeded from
// cfg.Game.DiceSeed when it is non-zero.
func NewGameManager(cfg config.Config, store SnapshotStore, n narrator.Narrator) *GameManager {
	dice := rules.NewDiceRoller()
	if cfg.Game.DiceSeed != 0 {
		dice = rules.NewSeededDiceRoller(cfg.Game.DiceSeed)
	}
	return NewGameManagerWithDice(cfg, store, n, dice)
}

// NewGameManagerWithDice creates a game manager rolling with dice
func NewGameManagerWithDice(cfg config.Config, store SnapshotStore, n narrator.Narrator, dice *rules.DiceRoller) *GameManager {
	limits := tags.Limits{
		MaxXPPerTag:     cfg.Game.MaxXPPerTag,
		MaxDamagePerTag: cfg.Game.MaxDamagePerTag,
	}

	gm := &GameManager{
		sessions:   make(map[string]*Session),
		store:      store,
		config:     cfg,
		Logger:     zap.NewNop(), // Will be set by the server
		diceRoller: dice,
		narrator:   n,
		objects:    DefaultObjects(),
		controller: NewController(n, dice, rules.DefaultTriggers, limits, cfg.Narrator.WindowSize, cfg.Narrator.Timeout()),
	}

	if cfg.Game.AutosaveInterval > 0 {
		gm.autosave = NewAutosaveSystem(gm, time.Duration(cfg.Game.AutosaveInterval)*time.Minute)
	}

	return gm
}

// SetLogger sets the logger for the manager and its controller
func (gm *GameManager) SetLogger(logger *zap.Logger) {
	gm.Logger = logger
	gm.controller.SetLogger(logger)
}

// LoadData replaces the trigger table and world object templates
func (gm *GameManager) LoadData(triggers rules.TriggerTable, objects []types.WorldObject) error {
	if err := triggers.Validate(); err != nil {
		return fmt.Errorf("invalid trigger table: %w", err)
	}
	for _, shadowed := range triggers.Shadowed() {
		gm.Logger.Warn("Trigger can never match",
			zap.String("phrase", shadowed.Phrase))
	}
	gm.controller.triggers = triggers
	gm.objects = objects
	return nil
}

// CreateSession starts a new adventure and narrates its opening scene
func (gm *GameManager) CreateSession(ctx context.Context, req types.NewSessionRequest) (*types.TurnResult, error) {
	character, err := NewCharacter(gm.diceRoller, req.Name, req.Class, req.Abilities, gm.config.Game.StartingItems)
	if err != nil {
		return nil, err
	}

	setting := strings.TrimSpace(req.Setting)
	if setting == "" {
		setting = gm.config.Game.DefaultSetting
	}

	session := newSession(uuid.New().String(), setting, character, objectMap(gm.objects))

	// held from publication until the opening scene is narrated
	session.turn.Lock()
	defer session.turn.Unlock()

	gm.stateLock.Lock()
	gm.sessions[session.ID] = session
	gm.stateLock.Unlock()

	gm.Logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("character", character.Name),
		zap.String("class", character.Class),
		zap.String("setting", setting))

	return gm.controller.begin(ctx, session), nil
}

// GetSession returns a view of an active session
func (gm *GameManager) GetSession(sessionID string) (*types.SessionView, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return session.View(), nil
}

// ListSessions summarises the active sessions, most recently updated first
func (gm *GameManager) ListSessions() []types.SessionSummary {
	sessions := gm.activeSessions()
	summaries := make([]types.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// EndSession drops an active session from memory. Stored snapshots are kept.
func (gm *GameManager) EndSession(sessionID string) error {
	session, err := gm.session(sessionID)
	if err != nil {
		return err
	}
	if err := session.acquire(); err != nil {
		return err
	}
	defer session.turn.Unlock()

	gm.stateLock.Lock()
	if gm.sessions[sessionID] == session {
		delete(gm.sessions, sessionID)
	}
	gm.stateLock.Unlock()
	session.closed = true

	gm.Logger.Info("Session ended", zap.String("session_id", sessionID))
	return nil
}

// SubmitAction records free player text
func (gm *GameManager) SubmitAction(ctx context.Context, sessionID, text string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.SubmitAction(ctx, session, text)
}

// ResolveCheck rolls the chosen skill for the pending check
func (gm *GameManager) ResolveCheck(ctx context.Context, sessionID, skill string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.ResolveCheck(ctx, session, skill)
}

// ManualRoll rolls a skill outside a pending check
func (gm *GameManager) ManualRoll(ctx context.Context, sessionID, skill string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.ManualRoll(ctx, session, skill)
}

// TriggerEvent injects a cozy, adventure or d20 event
func (gm *GameManager) TriggerEvent(ctx context.Context, sessionID, kind string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.TriggerEvent(ctx, session, kind)
}

// GiveItem hands an item to someone in the scene
func (gm *GameManager) GiveItem(ctx context.Context, sessionID, item string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.GiveItem(ctx, session, item)
}

// DropItem removes an inventory entry
func (gm *GameManager) DropItem(sessionID, item string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.DropItem(session, item)
}

// TalkToCompanion starts a conversation with a companion
func (gm *GameManager) TalkToCompanion(ctx context.Context, sessionID, name string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.TalkToCompanion(ctx, session, name)
}

// DismissCompanion asks the narrator to remove a companion
func (gm *GameManager) DismissCompanion(ctx context.Context, sessionID, name string) (*types.TurnResult, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return nil, err
	}
	return gm.controller.DismissCompanion(ctx, session, name)
}

// SaveSession persists an active session
func (gm *GameManager) SaveSession(ctx context.Context, sessionID string) (types.SnapshotInfo, error) {
	session, err := gm.session(sessionID)
	if err != nil {
		return types.SnapshotInfo{}, err
	}
	if err := session.acquire(); err != nil {
		return types.SnapshotInfo{}, err
	}
	defer session.turn.Unlock()

	return gm.save(ctx, session)
}

// save must be called with the session turn lock held
func (gm *GameManager) save(ctx context.Context, session *Session) (types.SnapshotInfo, error) {
	session.mu.RLock()
	snap := session.snapshot()
	session.mu.RUnlock()

	if err := gm.store.Save(ctx, snap); err != nil {
		return types.SnapshotInfo{}, fmt.Errorf("failed to save session: %w", err)
	}

	session.mu.Lock()
	session.dirty = false
	session.mu.Unlock()

	gm.Logger.Info("Session saved",
		zap.String("session_id", session.ID),
		zap.Int("turns", len(snap.Transcript)))
	return infoOf(snap), nil
}

// saveIfDirty persists a session that changed since its last save
func (gm *GameManager) saveIfDirty(session *Session) (bool, error) {
	if err := session.acquire(); err != nil {
		return false, err
	}
	defer session.turn.Unlock()

	session.mu.RLock()
	dirty := session.dirty
	session.mu.RUnlock()
	if !dirty {
		return false, nil
	}

	if _, err := gm.save(context.Background(), session); err != nil {
		return false, err
	}
	return true, nil
}

// LoadSession restores a stored snapshot as the active session with that id,
// replacing any idle in-memory copy
func (gm *GameManager) LoadSession(ctx context.Context, sessionID string) (*types.SessionView, error) {
	snap, err := gm.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	restored := sessionFromSnapshot(snap)

	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	if current, ok := gm.sessions[sessionID]; ok {
		if !current.turn.TryLock() {
			return nil, ErrTurnInProgress
		}
		defer current.turn.Unlock()
		// holders of the old pointer must not keep playing a detached copy
		current.closed = true
	}
	gm.sessions[sessionID] = restored

	gm.Logger.Info("Session loaded",
		zap.String("session_id", sessionID),
		zap.String("character", snap.Character.Name),
		zap.Int("turns", len(snap.Transcript)))
	return restored.View(), nil
}

// ListSnapshots lists the stored snapshots
func (gm *GameManager) ListSnapshots(ctx context.Context) ([]types.SnapshotInfo, error) {
	return gm.store.List(ctx)
}

// DeleteSnapshot removes a stored snapshot
func (gm *GameManager) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return gm.store.Delete(ctx, sessionID)
}

// ListModels lists the models the narrator backend offers
func (gm *GameManager) ListModels(ctx context.Context) ([]string, error) {
	return gm.narrator.ListModels(ctx)
}

// StartAutosave starts the autosave loop when an interval is configured
func (gm *GameManager) StartAutosave() {
	if gm.autosave != nil {
		gm.autosave.Start()
	}
}

// StopAutosave stops the autosave loop and flushes every changed session
func (gm *GameManager) StopAutosave() {
	if gm.autosave != nil {
		gm.autosave.Stop()
		gm.autosave.saveDirty()
	}
}

func (gm *GameManager) session(sessionID string) (*Session, error) {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	session, exists := gm.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

func (gm *GameManager) activeSessions() []*Session {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	sessions := make([]*Session, 0, len(gm.sessions))
	for _, session := range gm.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
