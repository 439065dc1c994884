package types

import "time"

// Phase is where a session sits in the turn cycle
type Phase string

const (
	PhaseAwaitingInput Phase = "awaiting_player_input"
	PhaseAwaitingSkill Phase = "awaiting_skill_choice"
	PhaseClassifying   Phase = "classifying"
	PhaseNarrating     Phase = "narrating"
)

// CheckRoll is the result of a single skill check roll
type CheckRoll struct {
	Skill    string  `json:"skill"`
	Ability  Ability `json:"ability"`
	Raw      int     `json:"raw"`
	Modifier int     `json:"modifier"`
	Bonus    int     `json:"bonus"`
	Total    int     `json:"total"`
}

// EffectKind classifies an applied change
type EffectKind string

const (
	EffectXP               EffectKind = "xp"
	EffectLevelUp          EffectKind = "level_up"
	EffectDamage           EffectKind = "damage"
	EffectItemAdded        EffectKind = "item_added"
	EffectItemRemoved      EffectKind = "item_removed"
	EffectCompanionAdded   EffectKind = "companion_added"
	EffectCompanionRemoved EffectKind = "companion_removed"
	EffectJournal          EffectKind = "journal"
	EffectLoot             EffectKind = "loot"
)

// Effect describes one change applied to a character
type Effect struct {
	Kind    EffectKind `json:"kind"`
	Message string     `json:"message"`
	Amount  int        `json:"amount,omitempty"`
	Level   int        `json:"level,omitempty"`
	Skills  []string   `json:"skills,omitempty"`
	Name    string     `json:"name,omitempty"`
}

// TurnResult is what a transport shows the player after one operation
type TurnResult struct {
	SessionID string        `json:"session_id"`
	Notice    string        `json:"notice,omitempty"`
	Reply     string        `json:"reply,omitempty"`
	Roll      *CheckRoll    `json:"roll,omitempty"`
	Success   *bool         `json:"success,omitempty"`
	Effects   []Effect      `json:"effects,omitempty"`
	Phase     Phase         `json:"phase"`
	Pending   *PendingCheck `json:"pending,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NewSessionRequest holds the parameters of a new session
type NewSessionRequest struct {
	Name      string          `json:"name"`
	Class     string          `json:"class"`
	Setting   string          `json:"setting"`
	Abilities map[Ability]int `json:"abilities,omitempty"`
}

// SessionView is a point-in-time copy of an active session
type SessionView struct {
	SessionID  string                  `json:"session_id"`
	Setting    string                  `json:"setting"`
	Phase      Phase                   `json:"phase"`
	Character  *Character              `json:"character"`
	Pending    *PendingCheck           `json:"pending,omitempty"`
	Objects    map[string]*WorldObject `json:"objects"`
	Transcript []Turn                  `json:"transcript"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// SessionSummary is the list form of an active session
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	CharacterName string    `json:"character_name"`
	Class         string    `json:"class"`
	Level         int       `json:"level"`
	Phase         Phase     `json:"phase"`
	UpdatedAt     time.Time `json:"updated_at"`
}
