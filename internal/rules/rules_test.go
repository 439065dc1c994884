package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/solo-adventure/internal/types"
)

// fixedSource replays die faces; each value is the face wanted, not the Intn result.
type fixedSource struct {
	faces []int
	next  int
}

func (f *fixedSource) Intn(n int) int {
	face := f.faces[f.next%len(f.faces)]
	f.next++
	return face - 1
}

func TestModifier(t *testing.T) {
	cases := map[int]int{
		1: -5, 3: -4, 8: -1, 9: -1, 10: 0, 11: 0, 12: 1, 15: 2, 18: 4, 20: 5,
	}
	for score, want := range cases {
		assert.Equal(t, want, Modifier(score), "score %d", score)
	}
}

func TestProficiencyBonus(t *testing.T) {
	cases := map[int]int{1: 2, 4: 2, 5: 3, 8: 3, 9: 4, 13: 5, 17: 6, 20: 6}
	for level, want := range cases {
		assert.Equal(t, want, ProficiencyBonus(level), "level %d", level)
	}
}

func TestResolveBoundary(t *testing.T) {
	assert.True(t, Resolve(15, 15))
	assert.True(t, Resolve(16, 15))
	assert.False(t, Resolve(14, 15))
}

func TestRollCheck(t *testing.T) {
	character := &types.Character{
		Level:         5,
		Stats:         map[types.Ability]int{types.INT: 14, types.DEX: 8},
		Proficiencies: []string{"Investigation"},
	}
	roller := NewDiceRollerFromSource(&fixedSource{faces: []int{12, 20}})

	// Test case 1: trained skill adds proficiency
	roll, err := RollCheck(roller, character, "investigation")
	require.NoError(t, err)
	assert.Equal(t, "Investigation", roll.Skill)
	assert.Equal(t, types.INT, roll.Ability)
	assert.Equal(t, 12, roll.Raw)
	assert.Equal(t, 2, roll.Modifier)
	assert.Equal(t, 3, roll.Bonus)
	assert.Equal(t, 17, roll.Total)

	// Test case 2: untrained skill with a negative modifier
	roll, err = RollCheck(roller, character, "Stealth")
	require.NoError(t, err)
	assert.Equal(t, 20, roll.Raw)
	assert.Equal(t, 0, roll.Bonus)
	assert.Equal(t, 19, roll.Total)

	// Test case 3: unknown skill
	_, err = RollCheck(roller, character, "Juggling")
	assert.ErrorIs(t, err, ErrUnknownSkill)
}

func TestSeededRollerIsReproducible(t *testing.T) {
	a := NewSeededDiceRoller(42)
	b := NewSeededDiceRoller(42)
	for i := 0; i < 50; i++ {
		face := a.D20()
		assert.Equal(t, face, b.D20())
		assert.GreaterOrEqual(t, face, 1)
		assert.LessOrEqual(t, face, 20)
	}
}

func TestBetween(t *testing.T) {
	roller := NewSeededDiceRoller(7)
	for i := 0; i < 100; i++ {
		v := roller.Between(8, 15)
		assert.GreaterOrEqual(t, v, 8)
		assert.LessOrEqual(t, v, 15)
	}
	assert.Equal(t, 5, roller.Between(5, 5))
}

func TestClassifyPrefersLongerPhraseDeclaredFirst(t *testing.T) {
	pending := DefaultTriggers.Classify("I try to OPEN CHEST carefully", nil)
	require.NotNil(t, pending)
	assert.Equal(t, "open chest", pending.Action)
	assert.Equal(t, []string{"Investigation"}, pending.Skills)
	assert.Equal(t, 15, pending.DC)
	assert.Equal(t, "chest", pending.Target)
}

func TestClassifyShorterPhraseFirstShadowsLonger(t *testing.T) {
	table := TriggerTable{
		{Phrase: "open", Skills: []string{"Athletics"}, Difficulty: Easy},
		{Phrase: "open chest", Skills: []string{"Investigation"}, Difficulty: Medium},
	}

	pending := table.Classify("open chest", nil)
	require.NotNil(t, pending)
	assert.Equal(t, "open", pending.Action)

	shadowed := table.Shadowed()
	require.Len(t, shadowed, 1)
	assert.Equal(t, "open chest", shadowed[0].Phrase)
	assert.Empty(t, DefaultTriggers.Shadowed())
}

func TestClassifySkips(t *testing.T) {
	existing := &types.PendingCheck{Action: "look", Skills: []string{"Perception"}, DC: 10}

	assert.Nil(t, DefaultTriggers.Classify("I look around", existing))
	assert.Nil(t, DefaultTriggers.Classify("I search the room", existing))
	assert.Nil(t, DefaultTriggers.Classify("[Manual Roll] I rolled Perception. Result: 14 (Natural 12).", nil))
	assert.Nil(t, DefaultTriggers.Classify("Rolled 12 (success). Resolve the outcome.", nil))
	assert.Nil(t, DefaultTriggers.Classify("[SYSTEM: Talk to Bram]", nil))
	assert.Nil(t, DefaultTriggers.Classify("I greet the innkeeper", nil))

	pending := DefaultTriggers.Classify("I LOOK around", nil)
	require.NotNil(t, pending)
	assert.Equal(t, Easy, pending.Difficulty)
	assert.Equal(t, 10, pending.DC)
}

func TestValidateAndLoadTriggers(t *testing.T) {
	assert.NoError(t, DefaultTriggers.Validate())
	assert.ErrorIs(t, TriggerTable{{Phrase: " ", Skills: []string{"Arcana"}, Difficulty: Easy}}.Validate(), ErrEmptyTrigger)
	assert.ErrorIs(t, TriggerTable{{Phrase: "x", Difficulty: Easy}}.Validate(), ErrTriggerSkills)
	assert.ErrorIs(t, TriggerTable{{Phrase: "x", Skills: []string{"Juggling"}, Difficulty: Easy}}.Validate(), ErrUnknownSkill)
	assert.ErrorIs(t, TriggerTable{{Phrase: "x", Skills: []string{"Arcana"}, Difficulty: "brutal"}}.Validate(), ErrUnknownDifficulty)

	path := filepath.Join(t.TempDir(), "triggers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"phrase": "pick lock", "skills": ["Acrobatics"], "difficulty": "hard"},
		{"phrase": "read", "skills": ["Arcana", "History"], "difficulty": "very hard"}
	]`), 0644))

	table, err := LoadTriggers(path)
	require.NoError(t, err)
	require.Len(t, table, 2)

	pending := table.Classify("I pick lock on the door", nil)
	require.NotNil(t, pending)
	assert.Equal(t, 20, pending.DC)

	_, err = LoadTriggers(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTables(t *testing.T) {
	xp, ok := XPForLevel(2)
	assert.True(t, ok)
	assert.Equal(t, 300, xp)
	_, ok = XPForLevel(MaxLevel + 1)
	assert.False(t, ok)

	mage, ok := LookupClass("mage")
	require.True(t, ok)
	assert.Equal(t, 6, MaxHP(mage, 1, 10))
	assert.Equal(t, 6+1+8, MaxHP(mage, 3, 12))
	assert.Equal(t, 1, MaxHP(types.ClassDefinition{BaseHP: 1}, 1, 3))

	assert.Equal(t, []string{"Mage", "Rogue", "Warrior"}, ClassNames())
	assert.Contains(t, SkillNames(), "Perception")

	dc, ok := DifficultyClass(" Hard ")
	assert.True(t, ok)
	assert.Equal(t, 20, dc)
}
