package tags

import (
	"fmt"
	"strings"

	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

// Default per-tag limits. Narrator text is trusted but bounded.
const (
	DefaultMaxXPPerTag     = 1000
	DefaultMaxDamagePerTag = 50
)

// Limits bounds the magnitude of numeric directives
type Limits struct {
	MaxXPPerTag     int `json:"max_xp_per_tag"`
	MaxDamagePerTag int `json:"max_damage_per_tag"`
}

// DefaultLimits returns the default per-tag limits
func DefaultLimits() Limits {
	return Limits{
		MaxXPPerTag:     DefaultMaxXPPerTag,
		MaxDamagePerTag: DefaultMaxDamagePerTag,
	}
}

// Applier applies parsed directives to a character
type Applier struct {
	limits Limits
	logger *zap.Logger
}

// NewApplier creates an applier. Non-positive limits fall back to the defaults.
func NewApplier(limits Limits, logger *zap.Logger) *Applier {
	if limits.MaxXPPerTag <= 0 {
		limits.MaxXPPerTag = DefaultMaxXPPerTag
	}
	if limits.MaxDamagePerTag <= 0 {
		limits.MaxDamagePerTag = DefaultMaxDamagePerTag
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{limits: limits, logger: logger}
}

// Limits returns the limits in effect
func (a *Applier) Limits() Limits {
	return a.limits
}

// ApplyText parses text and applies every directive found
func (a *Applier) ApplyText(c *types.Character, text string) []types.Effect {
	return a.Apply(c, Parse(text))
}

// Apply mutates c according to directives, in order, and returns the effects
// that actually changed something.
func (a *Applier) Apply(c *types.Character, directives []Directive) []types.Effect {
	var effects []types.Effect
	for _, d := range directives {
		applied := a.apply(c, d)
		if len(applied) == 0 {
			a.logger.Debug("Directive had no effect",
				zap.String("kind", string(d.Kind)),
				zap.String("raw", d.Raw))
			continue
		}
		for _, e := range applied {
			a.logger.Debug("Applied directive",
				zap.String("character", c.Name),
				zap.String("effect", string(e.Kind)),
				zap.String("message", e.Message))
		}
		effects = append(effects, applied...)
	}
	return effects
}

func (a *Applier) apply(c *types.Character, d Directive) []types.Effect {
	switch d.Kind {
	case KindXP:
		return a.awardXP(c, d.Value)
	case KindDamage:
		return a.damage(c, d.Value)
	case KindAddItem:
		if !c.Inventory.AddUnique(d.Text) {
			return nil
		}
		return []types.Effect{{Kind: types.EffectItemAdded, Name: d.Text, Message: "Item: " + d.Text}}
	case KindRemoveItem:
		removed, ok := c.Inventory.RemoveMatching(d.Text)
		if !ok {
			return nil
		}
		return []types.Effect{{Kind: types.EffectItemRemoved, Name: removed, Message: "Removed: " + removed}}
	case KindAddCompanion:
		if !addUnique(&c.Companions, d.Text) {
			return nil
		}
		return []types.Effect{{Kind: types.EffectCompanionAdded, Name: d.Text, Message: "Companion: " + d.Text}}
	case KindRemoveCompanion:
		removed, ok := removeMatching(&c.Companions, d.Text)
		if !ok {
			return nil
		}
		return []types.Effect{{Kind: types.EffectCompanionRemoved, Name: removed, Message: removed + " left the party"}}
	case KindJournal:
		if !addUnique(&c.Journal, d.Text) {
			return nil
		}
		return []types.Effect{{Kind: types.EffectJournal, Message: "Journal updated"}}
	}
	return nil
}

// awardXP adds a clamped amount. Negative amounts are corrections: experience
// floors at zero and level never decreases.
func (a *Applier) awardXP(c *types.Character, amount int) []types.Effect {
	amount = clamp(amount, a.limits.MaxXPPerTag)
	if amount == 0 {
		return nil
	}

	before := c.XP
	c.XP += amount
	if c.XP < 0 {
		c.XP = 0
	}
	if c.XP == before {
		return nil
	}

	effects := []types.Effect{{
		Kind:    types.EffectXP,
		Amount:  c.XP - before,
		Message: fmt.Sprintf("%+d XP", c.XP-before),
	}}
	for _, gain := range rules.Advance(c) {
		effects = append(effects, levelUpEffect(gain))
	}
	return effects
}

func levelUpEffect(gain rules.LevelGain) types.Effect {
	msg := fmt.Sprintf("Level up! Now level %d (+%d max HP)", gain.Level, gain.HPGain)
	if len(gain.Skills) > 0 {
		msg += ", new skills: " + strings.Join(gain.Skills, ", ")
	}
	return types.Effect{
		Kind:    types.EffectLevelUp,
		Level:   gain.Level,
		Amount:  gain.HPGain,
		Skills:  gain.Skills,
		Message: msg,
	}
}

// damage subtracts a clamped, non-negative amount with no floor
func (a *Applier) damage(c *types.Character, amount int) []types.Effect {
	if amount <= 0 {
		return nil
	}
	amount = clamp(amount, a.limits.MaxDamagePerTag)
	c.HP -= amount
	return []types.Effect{{
		Kind:    types.EffectDamage,
		Amount:  amount,
		Message: fmt.Sprintf("Took %d damage (HP %d/%d)", amount, c.HP, c.MaxHP),
	}}
}

func clamp(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func addUnique(list *[]string, value string) bool {
	for _, existing := range *list {
		if strings.EqualFold(existing, value) {
			return false
		}
	}
	*list = append(*list, value)
	return true
}

// removeMatching drops the first entry containing fragment under case folding
func removeMatching(list *[]string, fragment string) (string, bool) {
	for i, existing := range *list {
		if types.ContainsFold(existing, fragment) {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return existing, true
		}
	}
	return "", false
}
