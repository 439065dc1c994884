package narrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/user/solo-adventure/internal/types"
)

// PromptContext is the state embedded into the system instruction
type PromptContext struct {
	Setting   string
	Character *types.Character
	Objects   map[string]*types.WorldObject
}

// BuildSystemPrompt renders the Dungeon Master instruction for the current state
func BuildSystemPrompt(pc PromptContext) string {
	c := pc.Character
	if c == nil {
		c = &types.Character{Name: "the player"}
	}

	var b strings.Builder
	b.WriteString("You are the Dungeon Master (Narrator).\n")
	fmt.Fprintf(&b, "GAME SETTING: %s\n\n", pc.Setting)

	b.WriteString("PLAYER:\n")
	fmt.Fprintf(&b, "- The user is playing as '%s'. Always address the user as 'You'.\n", c.Name)
	fmt.Fprintf(&b, "- NEVER treat '%s' as an NPC or merchant. NEVER speak for '%s'.\n", c.Name, c.Name)
	fmt.Fprintf(&b, "- %s is a level %d %s with %d/%d HP.\n", c.Name, c.Level, c.Class, c.HP, c.MaxHP)
	fmt.Fprintf(&b, "- Skills: %s\n", listOrNone(c.Skills))
	fmt.Fprintf(&b, "- Companions: %s\n\n", listOrNone(c.Companions))

	b.WriteString("INVENTORY:\n")
	fmt.Fprintf(&b, "- The player inventory is: %s\n", c.Inventory.String())
	b.WriteString("- You may ONLY mention or describe items from this list.\n")
	b.WriteString("- You may NOT invent weapons, armor, tools, gear, food, or equipment for the player.\n\n")

	objects := objectNames(pc.Objects)
	b.WriteString("WORLD OBJECTS:\n")
	fmt.Fprintf(&b, "- The following interactive objects exist: %s\n", objects)
	fmt.Fprintf(&b, "- You may describe the environment freely based on the '%s' setting.\n", pc.Setting)
	b.WriteString("- You may NOT resolve interactions without rolls.\n\n")

	b.WriteString("MECHANICS:\n")
	b.WriteString("- Never roll dice\n")
	b.WriteString("- Never decide success or failure\n")
	b.WriteString("- Only narrate outcomes AFTER results are provided\n")
	b.WriteString("- Change state ONLY with these tags: [XP: n], [DAMAGE: n], [ADD ITEM: name], [REMOVE ITEM: name], " +
		"[ADD COMPANION: name], [REMOVE COMPANION: name], [UPDATE JOURNAL: text]\n")
	b.WriteString("- Reward meaningful actions with [XP: n]\n")
	b.WriteString("- Always end with: What do you do?\n")
	return b.String()
}

// OpeningPrompt is the first user turn of a new session
func OpeningPrompt(setting, name string) string {
	return fmt.Sprintf("[START GAME: Begin the adventure in a %s setting. The player is '%s'. "+
		"Describe the opening scene and where I start. DO NOT make '%s' an NPC.]", setting, name, name)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func objectNames(objects map[string]*types.WorldObject) string {
	if len(objects) == 0 {
		return "none"
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj.Looted {
			names = append(names, obj.Name+" (looted)")
			continue
		}
		names = append(names, obj.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
