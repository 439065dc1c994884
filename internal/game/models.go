package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/solo-adventure/internal/types"
)

// Session is one player's adventure: character, transcript, pending check and
// world objects. turn serialises whole operations (a narrated turn, a save);
// mu guards the fields so views can be read while a turn is narrating.
type Session struct {
	ID      string
	Setting string

	turn sync.Mutex
	mu   sync.RWMutex

	character  *types.Character
	transcript []types.Turn
	pending    *types.PendingCheck
	objects    map[string]*types.WorldObject
	phase      types.Phase
	updatedAt  time.Time
	dirty      bool

	// closed is set under turn once the manager drops or replaces the session
	closed bool
}

// acquire takes the turn lock of a session the manager still serves
func (s *Session) acquire() error {
	if !s.turn.TryLock() {
		return ErrTurnInProgress
	}
	if s.closed {
		s.turn.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	return nil
}

func newSession(id, setting string, character *types.Character, objects map[string]*types.WorldObject) *Session {
	if objects == nil {
		objects = make(map[string]*types.WorldObject)
	}
	return &Session{
		ID:        id,
		Setting:   setting,
		character: character,
		objects:   objects,
		phase:     types.PhaseAwaitingInput,
		updatedAt: time.Now().UTC(),
		dirty:     true,
	}
}

// sessionFromSnapshot rebuilds a session from its persisted form
func sessionFromSnapshot(snap *types.Snapshot) *Session {
	s := newSession(snap.SessionID, snap.Setting, snap.Character.Clone(), cloneObjects(snap.Objects))
	s.transcript = append([]types.Turn(nil), snap.Transcript...)
	if snap.Pending != nil {
		pending := clonePending(snap.Pending)
		s.pending = pending
		s.phase = types.PhaseAwaitingSkill
	}
	s.updatedAt = snap.SavedAt
	s.dirty = false
	return s
}

// appendTurn must be called with mu held
func (s *Session) appendTurn(role types.Role, kind types.TurnKind, content string) {
	now := time.Now().UTC()
	s.transcript = append(s.transcript, types.Turn{
		Role:      role,
		Kind:      kind,
		Content:   content,
		Timestamp: now,
	})
	s.updatedAt = now
	s.dirty = true
}

// snapshot must be called with mu held
func (s *Session) snapshot() *types.Snapshot {
	return &types.Snapshot{
		Version:    types.SnapshotVersion,
		SessionID:  s.ID,
		Setting:    s.Setting,
		Character:  s.character.Clone(),
		Transcript: append([]types.Turn(nil), s.transcript...),
		Pending:    clonePending(s.pending),
		Objects:    cloneObjects(s.objects),
		SavedAt:    time.Now().UTC(),
	}
}

// View returns a copy of the session state
func (s *Session) View() *types.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &types.SessionView{
		SessionID:  s.ID,
		Setting:    s.Setting,
		Phase:      s.phase,
		Character:  s.character.Clone(),
		Pending:    clonePending(s.pending),
		Objects:    cloneObjects(s.objects),
		Transcript: append([]types.Turn(nil), s.transcript...),
		UpdatedAt:  s.updatedAt,
	}
}

// Summary returns the list form of the session
func (s *Session) Summary() types.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionSummary{
		SessionID:     s.ID,
		CharacterName: s.character.Name,
		Class:         s.character.Class,
		Level:         s.character.Level,
		Phase:         s.phase,
		UpdatedAt:     s.updatedAt,
	}
}

// result must be called with mu held
func (s *Session) result() *types.TurnResult {
	return &types.TurnResult{
		SessionID: s.ID,
		Phase:     s.phase,
		Pending:   clonePending(s.pending),
	}
}

func clonePending(p *types.PendingCheck) *types.PendingCheck {
	if p == nil {
		return nil
	}
	out := *p
	out.Skills = append([]string(nil), p.Skills...)
	return &out
}

func cloneObjects(objects map[string]*types.WorldObject) map[string]*types.WorldObject {
	out := make(map[string]*types.WorldObject, len(objects))
	for key, obj := range objects {
		if obj == nil {
			continue
		}
		cp := *obj
		cp.Contents = obj.Contents.Clone()
		out[key] = &cp
	}
	return out
}
