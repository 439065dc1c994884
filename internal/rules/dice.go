package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/user/solo-adventure/internal/types"
)

// ErrUnknownSkill indicates a check was requested for a skill not in the table.
var ErrUnknownSkill = errors.New("unknown skill")

// Source produces die faces. *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// DiceRoller handles dice rolling for the game. It is safe for concurrent use.
type DiceRoller struct {
	mu  sync.Mutex
	rng Source
}

// NewDiceRoller creates a new dice roller seeded from the clock
func NewDiceRoller() *DiceRoller {
	return NewSeededDiceRoller(time.Now().UnixNano())
}

// NewSeededDiceRoller creates a reproducible dice roller
func NewSeededDiceRoller(seed int64) *DiceRoller {
	return &DiceRoller{rng: rand.New(rand.NewSource(seed))}
}

// NewDiceRollerFromSource wraps an arbitrary source, mainly for tests
func NewDiceRollerFromSource(src Source) *DiceRoller {
	return &DiceRoller{rng: src}
}

// Roll rolls a die with the specified number of sides
func (dr *DiceRoller) Roll(sides int) int {
	if sides <= 0 {
		return 0
	}
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.rng.Intn(sides) + 1
}

// D20 rolls a twenty-sided die
func (dr *DiceRoller) D20() int {
	return dr.Roll(20)
}

// Between rolls uniformly in [lo, hi]
func (dr *DiceRoller) Between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + dr.Roll(hi-lo+1) - 1
}

// Modifier returns the ability modifier for a score, floor((score-10)/2)
func Modifier(score int) int {
	d := score - 10
	if d < 0 && d%2 != 0 {
		return d/2 - 1
	}
	return d / 2
}

// ProficiencyBonus returns 2 + floor((level-1)/4)
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

// RollCheck rolls a d20 skill check for character. It never mutates the character.
func RollCheck(dr *DiceRoller, character *types.Character, skill string) (types.CheckRoll, error) {
	name, ability, ok := LookupSkill(skill)
	if !ok {
		return types.CheckRoll{}, fmt.Errorf("%w: %q", ErrUnknownSkill, skill)
	}

	raw := dr.D20()
	mod := Modifier(character.Stats[ability])
	bonus := 0
	if character.IsTrained(name) {
		bonus = ProficiencyBonus(character.Level)
	}

	return types.CheckRoll{
		Skill:    name,
		Ability:  ability,
		Raw:      raw,
		Modifier: mod,
		Bonus:    bonus,
		Total:    raw + mod + bonus,
	}, nil
}

// Resolve reports whether a check total meets the difficulty class
func Resolve(total, dc int) bool {
	return total >= dc
}
