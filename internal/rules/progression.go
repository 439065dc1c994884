package rules

import (
	"strings"

	"github.com/user/solo-adventure/internal/types"
)

// LevelGain records one level crossed by Advance
type LevelGain struct {
	Level  int      `json:"level"`
	HPGain int      `json:"hp_gain"`
	Skills []string `json:"skills,omitempty"`
}

// Advance levels the character once per XP threshold it has crossed and
// returns every level gained, in order. Each level adds the class HP per level
// to both maximum and current HP and grants that level's skills.
func Advance(c *types.Character) []LevelGain {
	class, known := LookupClass(c.Class)

	var gains []LevelGain
	for c.Level < MaxLevel {
		need, ok := XPForLevel(c.Level + 1)
		if !ok || c.XP < need {
			break
		}
		c.Level++

		gain := LevelGain{Level: c.Level}
		if known {
			gain.HPGain = class.HPPerLevel
			c.MaxHP += class.HPPerLevel
			c.HP += class.HPPerLevel
			for _, skill := range class.SkillGrants[c.Level] {
				if hasSkill(c.Skills, skill) {
					continue
				}
				c.Skills = append(c.Skills, skill)
				gain.Skills = append(gain.Skills, skill)
			}
		}
		gains = append(gains, gain)
	}
	return gains
}

// StartingSkills returns every skill the class grants up to level
func StartingSkills(class types.ClassDefinition, level int) []string {
	var skills []string
	for l := 1; l <= level; l++ {
		for _, skill := range class.SkillGrants[l] {
			if !hasSkill(skills, skill) {
				skills = append(skills, skill)
			}
		}
	}
	return skills
}

func hasSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}
