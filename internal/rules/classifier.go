package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/user/solo-adventure/internal/types"
)

var (
	// ErrEmptyTrigger indicates a trigger without a phrase.
	ErrEmptyTrigger = errors.New("trigger phrase is required")
	// ErrTriggerSkills indicates a trigger without candidate skills.
	ErrTriggerSkills = errors.New("trigger needs at least one skill")
	// ErrUnknownDifficulty indicates a difficulty tier missing from the DC table.
	ErrUnknownDifficulty = errors.New("unknown difficulty tier")
)

// Trigger maps a phrase in player text to a required check
type Trigger struct {
	Phrase     string   `json:"phrase"`
	Skills     []string `json:"skills"`
	Difficulty string   `json:"difficulty"`
	Target     string   `json:"target,omitempty"`
}

// TriggerTable is scanned in declaration order; the first match wins, so
// multi-word phrases must be declared before any shorter phrase they contain.
type TriggerTable []Trigger

// DefaultTriggers is the built-in trigger table
var DefaultTriggers = TriggerTable{
	{Phrase: "open chest", Skills: []string{"Investigation"}, Difficulty: Medium, Target: "chest"},
	{Phrase: "look", Skills: []string{"Perception"}, Difficulty: Easy},
	{Phrase: "inspect", Skills: []string{"Investigation"}, Difficulty: Medium},
	{Phrase: "search", Skills: []string{"Perception"}, Difficulty: Medium},
	{Phrase: "gather", Skills: []string{"Survival"}, Difficulty: Medium},
	{Phrase: "take", Skills: []string{"Acrobatics", "Survival"}, Difficulty: Medium},
	{Phrase: "pick", Skills: []string{"Acrobatics", "Survival"}, Difficulty: Medium},
	{Phrase: "grab", Skills: []string{"Athletics", "Acrobatics"}, Difficulty: Medium},
	{Phrase: "touch", Skills: []string{"Investigation", "Survival"}, Difficulty: Medium},
}

var resolvedRoll = regexp.MustCompile(`(?i)^\s*rolled\s+\d+`)

// IsResolvedRoll reports whether text already carries a roll outcome
func IsResolvedRoll(text string) bool {
	return types.ContainsFold(text, "[Manual Roll]") || resolvedRoll.MatchString(text)
}

// IsSystemDirective reports whether text is an engine-authored instruction
func IsSystemDirective(text string) bool {
	return strings.HasPrefix(types.Fold(text), types.Fold("[SYSTEM:"))
}

// Classify returns the pending check the player text requires, or nil when no
// check is needed. Nothing is classified while another check is pending.
func (t TriggerTable) Classify(text string, pending *types.PendingCheck) *types.PendingCheck {
	if pending != nil || IsResolvedRoll(text) || IsSystemDirective(text) {
		return nil
	}

	folded := types.Fold(text)
	for _, trigger := range t {
		if !strings.Contains(folded, types.Fold(trigger.Phrase)) {
			continue
		}
		dc, ok := DifficultyClass(trigger.Difficulty)
		if !ok {
			continue
		}
		return &types.PendingCheck{
			Action:     trigger.Phrase,
			Skills:     append([]string(nil), trigger.Skills...),
			Difficulty: strings.ToLower(trigger.Difficulty),
			DC:         dc,
			Target:     trigger.Target,
		}
	}
	return nil
}

// Shadowed returns the triggers that can never match because an earlier
// trigger's phrase is contained in theirs.
func (t TriggerTable) Shadowed() []Trigger {
	var out []Trigger
	for i, later := range t {
		for _, earlier := range t[:i] {
			if strings.Contains(types.Fold(later.Phrase), types.Fold(earlier.Phrase)) {
				out = append(out, later)
				break
			}
		}
	}
	return out
}

// Validate checks every trigger against the skill and DC tables
func (t TriggerTable) Validate() error {
	for i, trigger := range t {
		if strings.TrimSpace(trigger.Phrase) == "" {
			return fmt.Errorf("trigger %d: %w", i, ErrEmptyTrigger)
		}
		if len(trigger.Skills) == 0 {
			return fmt.Errorf("trigger %q: %w", trigger.Phrase, ErrTriggerSkills)
		}
		for _, skill := range trigger.Skills {
			if _, _, ok := LookupSkill(skill); !ok {
				return fmt.Errorf("trigger %q: %w: %q", trigger.Phrase, ErrUnknownSkill, skill)
			}
		}
		if _, ok := DifficultyClass(trigger.Difficulty); !ok {
			return fmt.Errorf("trigger %q: %w: %q", trigger.Phrase, ErrUnknownDifficulty, trigger.Difficulty)
		}
	}
	return nil
}

// LoadTriggers reads a trigger table from a JSON file
func LoadTriggers(path string) (TriggerTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read triggers file: %w", err)
	}

	var table TriggerTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse triggers data: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
