// Package rules holds the mechanical half of the game: classes, skills,
// difficulty tiers, dice and the action trigger table.
package rules

import (
	"sort"
	"strings"

	"github.com/user/solo-adventure/internal/types"
)

// MaxLevel is the highest reachable level
const MaxLevel = 20

// xpThresholds maps a level to the total experience needed to reach it
var xpThresholds = map[int]int{
	1: 0, 2: 300, 3: 900, 4: 2700, 5: 6500,
	6: 14000, 7: 23000, 8: 34000, 9: 48000, 10: 64000,
	11: 85000, 12: 100000, 13: 120000, 14: 140000, 15: 165000,
	16: 195000, 17: 225000, 18: 265000, 19: 305000, 20: 355000,
}

// XPForLevel returns the experience threshold for level, and false past MaxLevel
func XPForLevel(level int) (int, bool) {
	xp, ok := xpThresholds[level]
	return xp, ok
}

// Skills maps every check skill to its governing ability
var Skills = map[string]types.Ability{
	"Athletics":     types.STR,
	"Acrobatics":    types.DEX,
	"Stealth":       types.DEX,
	"Arcana":        types.INT,
	"History":       types.INT,
	"Investigation": types.INT,
	"Perception":    types.WIS,
	"Survival":      types.WIS,
	"Persuasion":    types.CHA,
}

// SkillNames returns the check skills sorted by name
func SkillNames() []string {
	names := make([]string, 0, len(Skills))
	for name := range Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupSkill resolves a skill name case-insensitively
func LookupSkill(name string) (string, types.Ability, bool) {
	for skill, ability := range Skills {
		if strings.EqualFold(skill, strings.TrimSpace(name)) {
			return skill, ability, true
		}
	}
	return "", "", false
}

// Difficulty tiers
const (
	Easy             = "easy"
	Medium           = "medium"
	Hard             = "hard"
	VeryHard         = "very hard"
	NearlyImpossible = "nearly impossible"
)

// DCTable maps a difficulty tier to its DC
var DCTable = map[string]int{
	Easy:             10,
	Medium:           15,
	Hard:             20,
	VeryHard:         25,
	NearlyImpossible: 30,
}

// DifficultyClass returns the DC for a tier
func DifficultyClass(tier string) (int, bool) {
	dc, ok := DCTable[strings.ToLower(strings.TrimSpace(tier))]
	return dc, ok
}

// Classes is the built-in class table
var Classes = map[string]types.ClassDefinition{
	"Mage": {
		Name:          "Mage",
		BaseHP:        6,
		HPPerLevel:    4,
		Proficiencies: []string{"Arcana", "History"},
		SkillGrants: map[int][]string{
			1: {"Fire Bolt", "Arcane Shield"},
			3: {"Mage Armor"},
			5: {"Fireball"},
		},
	},
	"Warrior": {
		Name:          "Warrior",
		BaseHP:        10,
		HPPerLevel:    6,
		Proficiencies: []string{"Athletics", "Survival"},
		SkillGrants: map[int][]string{
			1: {"Second Wind", "Power Strike"},
			3: {"Shield Bash"},
			5: {"Whirlwind"},
		},
	},
	"Rogue": {
		Name:          "Rogue",
		BaseHP:        8,
		HPPerLevel:    5,
		Proficiencies: []string{"Stealth", "Acrobatics"},
		SkillGrants: map[int][]string{
			1: {"Sneak Attack", "Cunning Action"},
			3: {"Evasion"},
			5: {"Shadow Step"},
		},
	},
}

// LookupClass resolves a class name case-insensitively
func LookupClass(name string) (types.ClassDefinition, bool) {
	for key, def := range Classes {
		if strings.EqualFold(key, strings.TrimSpace(name)) {
			return def, true
		}
	}
	return types.ClassDefinition{}, false
}

// ClassNames returns the class names sorted
func ClassNames() []string {
	names := make([]string, 0, len(Classes))
	for name := range Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxHP computes maximum hit points for a class at level with the given CON score
func MaxHP(class types.ClassDefinition, level, con int) int {
	hp := class.BaseHP + Modifier(con) + (level-1)*class.HPPerLevel
	if hp < 1 {
		hp = 1
	}
	return hp
}
