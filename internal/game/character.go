package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
)

// Ability score bounds for rolled and supplied stats
const (
	MinRolledScore = 8
	MaxRolledScore = 15
	MinScore       = 3
	MaxScore       = 20
)

var (
	ErrEmptyName    = errors.New("character name is required")
	ErrUnknownClass = errors.New("unknown class")
	ErrInvalidScore = errors.New("ability score out of range")
)

// NewCharacter builds a level 1 character of the given class. Abilities not
// present in supplied are rolled uniformly between MinRolledScore and
// MaxRolledScore.
func NewCharacter(dice *rules.DiceRoller, name, class string, supplied map[types.Ability]int, startingItems []string) (*types.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	def, ok := rules.LookupClass(class)
	if !ok {
		return nil, fmt.Errorf("%w: %q (choose one of %s)", ErrUnknownClass, class, strings.Join(rules.ClassNames(), ", "))
	}

	stats := make(map[types.Ability]int, len(types.Abilities))
	for _, ability := range types.Abilities {
		if score, ok := supplied[ability]; ok {
			if score < MinScore || score > MaxScore {
				return nil, fmt.Errorf("%w: %s=%d", ErrInvalidScore, ability, score)
			}
			stats[ability] = score
			continue
		}
		stats[ability] = dice.Between(MinRolledScore, MaxRolledScore)
	}

	maxHP := rules.MaxHP(def, 1, stats[types.CON])
	character := &types.Character{
		ID:            uuid.New().String(),
		Name:          name,
		Class:         def.Name,
		Level:         1,
		XP:            0,
		HP:            maxHP,
		MaxHP:         maxHP,
		Stats:         stats,
		Proficiencies: append([]string(nil), def.Proficiencies...),
		Skills:        rules.StartingSkills(def, 1),
		Inventory:     types.Inventory{},
		Companions:    []string{},
		Journal:       []string{},
		CreatedAt:     time.Now().UTC(),
	}
	for _, item := range startingItems {
		if item = strings.TrimSpace(item); item != "" {
			character.Inventory.Grant(item, 1)
		}
	}

	return character, nil
}

// FormatSheet renders the character sheet as plain text
func FormatSheet(c *types.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, level %d %s\n", c.Name, c.Level, c.Class)
	fmt.Fprintf(&b, "HP %d/%d | XP %d", c.HP, c.MaxHP, c.XP)
	if next, ok := rules.XPForLevel(c.Level + 1); ok {
		fmt.Fprintf(&b, "/%d", next)
	}
	b.WriteString("\n")
	for i, ability := range types.Abilities {
		if i > 0 {
			b.WriteString(" ")
		}
		score := c.Stats[ability]
		fmt.Fprintf(&b, "%s %d (%+d)", ability, score, rules.Modifier(score))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Skills: %s\n", joinOrNone(c.Skills))
	fmt.Fprintf(&b, "Inventory: %s\n", c.Inventory.String())
	fmt.Fprintf(&b, "Companions: %s", joinOrNone(c.Companions))
	return b.String()
}

// FormatJournal renders the journal entries as a numbered list
func FormatJournal(c *types.Character) string {
	if len(c.Journal) == 0 {
		return "The journal is empty."
	}
	var b strings.Builder
	for i, entry := range c.Journal {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, entry)
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
