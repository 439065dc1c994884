package types

import (
	"strings"
	"time"
)

// Ability names a character attribute
type Ability string

const (
	STR Ability = "STR"
	DEX Ability = "DEX"
	CON Ability = "CON"
	INT Ability = "INT"
	WIS Ability = "WIS"
	CHA Ability = "CHA"
)

// Abilities lists the six attributes in sheet order
var Abilities = []Ability{STR, DEX, CON, INT, WIS, CHA}

// Character represents the player's character sheet
type Character struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Class         string          `json:"class"`
	Level         int             `json:"level"`
	XP            int             `json:"xp"`
	HP            int             `json:"hp"`
	MaxHP         int             `json:"max_hp"`
	Stats         map[Ability]int `json:"stats"`
	Proficiencies []string        `json:"proficiencies"`
	Skills        []string        `json:"skills"`
	Inventory     Inventory       `json:"inventory"`
	Companions    []string        `json:"companions"`
	Journal       []string        `json:"journal"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsTrained reports whether the character adds proficiency to checks with skill
func (c *Character) IsTrained(skill string) bool {
	for _, s := range c.Proficiencies {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	for _, s := range c.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the character
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	out := *c
	out.Stats = make(map[Ability]int, len(c.Stats))
	for k, v := range c.Stats {
		out.Stats[k] = v
	}
	out.Proficiencies = append([]string(nil), c.Proficiencies...)
	out.Skills = append([]string(nil), c.Skills...)
	out.Inventory = c.Inventory.Clone()
	out.Companions = append([]string(nil), c.Companions...)
	out.Journal = append([]string(nil), c.Journal...)
	return &out
}

// ClassDefinition describes a playable class
type ClassDefinition struct {
	Name          string           `json:"name"`
	BaseHP        int              `json:"base_hp"`
	HPPerLevel    int              `json:"hp_per_level"`
	Proficiencies []string         `json:"proficiencies"`
	SkillGrants   map[int][]string `json:"skill_grants"`
}

// PendingCheck is a skill check waiting for the player to pick a skill and roll
type PendingCheck struct {
	Action     string   `json:"action"`
	Skills     []string `json:"skills"`
	Difficulty string   `json:"difficulty"`
	DC         int      `json:"dc"`
	Target     string   `json:"target,omitempty"`
}

// Allows reports whether skill is one of the candidates
func (p *PendingCheck) Allows(skill string) (string, bool) {
	for _, s := range p.Skills {
		if strings.EqualFold(s, skill) {
			return s, true
		}
	}
	return "", false
}

// WorldObject is an interactable object that can be looted once
type WorldObject struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Looted      bool      `json:"looted"`
	Contents    Inventory `json:"contents"`
}

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnKind classifies a transcript entry
type TurnKind string

const (
	KindPlayer    TurnKind = "player"
	KindNarration TurnKind = "narration"
	KindSystem    TurnKind = "system"
	KindRoll      TurnKind = "roll"
	KindError     TurnKind = "error"
)

// Turn is one entry of the session transcript
type Turn struct {
	Role      Role      `json:"role"`
	Kind      TurnKind  `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotVersion is the current snapshot format
const SnapshotVersion = 1

// Snapshot is the persisted form of a whole session
type Snapshot struct {
	Version    int                     `json:"version"`
	SessionID  string                  `json:"session_id"`
	Setting    string                  `json:"setting"`
	Character  *Character              `json:"character"`
	Transcript []Turn                  `json:"transcript"`
	Pending    *PendingCheck           `json:"pending,omitempty"`
	Objects    map[string]*WorldObject `json:"objects"`
	SavedAt    time.Time               `json:"saved_at"`
}

// SnapshotInfo summarises a stored snapshot
type SnapshotInfo struct {
	SessionID     string    `json:"session_id"`
	CharacterName string    `json:"character_name"`
	Level         int       `json:"level"`
	SavedAt       time.Time `json:"saved_at"`
}
