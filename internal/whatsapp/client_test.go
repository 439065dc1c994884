package whatsapp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/user/solo-adventure/internal/game"
	"github.com/user/solo-adventure/internal/mocks"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

const testChat = "5521999999999@s.whatsapp.net"

func newHandler() (*CommandHandler, *mocks.GameManager) {
	gm := new(mocks.GameManager)
	return NewCommandHandler(gm, zap.NewNop()), gm
}

func TestProcessCommand(t *testing.T) {
	// Setup
	handler, gm := newHandler()
	ctx := context.Background()
	sessionID := "6f1d3c1e-2f7a-4f1b-9a53-0d6c2f4b1a10"

	// Test case 1: commands without a session
	response := handler.ProcessCommand(ctx, testChat, "/look around")
	assert.Contains(t, response, "No adventure in progress")

	// Test case 2: starting an adventure binds the chat
	gm.On("CreateSession", ctx, types.NewSessionRequest{Name: "Kara", Class: "Warrior", Setting: "Dark Fantasy"}).
		Return(&types.TurnResult{
			SessionID: sessionID,
			Reply:     "Rain falls on the village. [XP: 10]",
			Phase:     types.PhaseAwaitingInput,
		}, nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/new Kara Warrior Dark Fantasy")
	assert.Contains(t, response, "Adventure started")
	assert.Contains(t, response, sessionID)
	assert.Contains(t, response, "Rain falls on the village.")
	assert.NotContains(t, response, "[XP: 10]")

	// Test case 3: free text goes to the narrator
	gm.On("SubmitAction", ctx, sessionID, "I open the chest").Return(&types.TurnResult{
		SessionID: sessionID,
		Notice:    "This requires a roll (medium DC 15).",
		Phase:     types.PhaseAwaitingSkill,
		Pending: &types.PendingCheck{
			Action:     "open chest",
			Skills:     []string{"Investigation", "Sleight of Hand"},
			Difficulty: "medium",
			DC:         15,
		},
	}, nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/I open the chest")
	assert.Contains(t, response, "/roll Investigation | /roll Sleight of Hand")
	assert.Contains(t, response, "DC 15")

	// Test case 4: resolving the roll
	success := true
	gm.On("ResolveCheck", ctx, sessionID, "Investigation").Return(&types.TurnResult{
		SessionID: sessionID,
		Roll:      &types.CheckRoll{Skill: "Investigation", Raw: 14, Modifier: 1, Bonus: 2, Total: 17},
		Success:   &success,
		Reply:     "The lid creaks open.",
		Effects:   []types.Effect{{Kind: types.EffectLoot, Message: "Looted Gold Coin x10 from Old Chest"}},
		Phase:     types.PhaseAwaitingInput,
	}, nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/roll Investigation")
	assert.Contains(t, response, "🎲 Investigation: 17")
	assert.Contains(t, response, "success")
	assert.Contains(t, response, "• Looted Gold Coin x10 from Old Chest")

	// Test case 5: game errors become friendly replies
	gm.On("SubmitAction", ctx, sessionID, "I run").Return(nil, fmt.Errorf("submit: %w", game.ErrCheckPending)).Once()
	response = handler.ProcessCommand(ctx, testChat, "/I run")
	assert.Contains(t, response, "A roll is pending")

	gm.On("ManualRoll", ctx, sessionID, "Juggling").Return(nil, game.ErrTurnInProgress).Once()
	response = handler.ProcessCommand(ctx, testChat, "/manual Juggling")
	assert.Contains(t, response, "still telling")

	// Test case 6: character sheet
	gm.On("GetSession", sessionID).Return(&types.SessionView{
		SessionID: sessionID,
		Character: &types.Character{
			Name:  "Kara",
			Class: "Warrior",
			Level: 1,
			HP:    12,
			MaxHP: 12,
			Stats: map[types.Ability]int{types.STR: 15},
		},
	}, nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/sheet")
	assert.Contains(t, response, "Kara, level 1 Warrior")

	// Test case 7: ending saves first and unbinds the chat
	gm.On("SaveSession", ctx, sessionID).Return(types.SnapshotInfo{SessionID: sessionID, CharacterName: "Kara", Level: 1}, nil).Once()
	gm.On("EndSession", sessionID).Return(nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/end")
	assert.Contains(t, response, "/load "+sessionID)
	_, bound := handler.binding(testChat)
	assert.False(t, bound)

	gm.AssertExpectations(t)
}

func TestProcessCommandLoad(t *testing.T) {
	// Setup
	handler, gm := newHandler()
	ctx := context.Background()
	sessionID := "0b7e8a8c-5f0e-4c36-8f8e-3f1a4d9e2b77"
	savedAt := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)

	// Test case 1: listing saves
	gm.On("ListSnapshots", ctx).Return([]types.SnapshotInfo{
		{SessionID: sessionID, CharacterName: "Vex", Level: 3, SavedAt: savedAt},
	}, nil).Once()

	response := handler.ProcessCommand(ctx, testChat, "/load")
	assert.Contains(t, response, "Vex (level 3), 2026-03-04 18:30")
	assert.Contains(t, response, "/load "+sessionID)

	// Test case 2: unknown save
	gm.On("LoadSession", ctx, "nope").Return(nil, game.ErrInvalidSessionID).Once()
	response = handler.ProcessCommand(ctx, testChat, "/load nope")
	assert.Contains(t, response, "No save found")

	// Test case 3: loading resumes the story and binds the chat
	gm.On("LoadSession", ctx, sessionID).Return(&types.SessionView{
		SessionID: sessionID,
		Character: &types.Character{Name: "Vex"},
		Transcript: []types.Turn{
			{Role: types.RoleAssistant, Kind: types.KindNarration, Content: "The guards are asleep. [UPDATE JOURNAL: Slipped past the gate]"},
			{Role: types.RoleAssistant, Kind: types.KindSystem, Content: "This requires a roll."},
		},
		Pending: &types.PendingCheck{Skills: []string{"Stealth"}, Difficulty: "easy", DC: 10},
	}, nil).Once()

	response = handler.ProcessCommand(ctx, testChat, "/load "+sessionID)
	assert.Contains(t, response, "Welcome back, Vex")
	assert.Contains(t, response, "The guards are asleep.")
	assert.NotContains(t, response, "JOURNAL")
	assert.Contains(t, response, "/roll Stealth")

	bound, ok := handler.binding(testChat)
	require.True(t, ok)
	assert.Equal(t, sessionID, bound)

	// Test case 4: a session that disappeared unbinds the chat
	gm.On("GetSession", sessionID).Return(nil, game.ErrSessionNotFound).Once()
	response = handler.ProcessCommand(ctx, testChat, "/journal")
	assert.Contains(t, response, "No adventure in progress")
	_, ok = handler.binding(testChat)
	assert.False(t, ok)

	gm.AssertExpectations(t)
}

func TestProcessCommandHelpAndUsage(t *testing.T) {
	// Setup
	handler, gm := newHandler()
	ctx := context.Background()

	// Test case 1: help lists classes and skills
	response := handler.ProcessCommand(ctx, testChat, "/help")
	assert.Contains(t, response, "SOLO ADVENTURE")
	assert.Contains(t, response, "Warrior")
	assert.Contains(t, response, "Investigation")
	assert.Equal(t, response, handler.ProcessCommand(ctx, testChat, "/"))

	// Test case 2: usage hints
	assert.Contains(t, handler.ProcessCommand(ctx, testChat, "/new Kara"), "Usage: /new")
	assert.Contains(t, handler.ProcessCommand(ctx, testChat, "hello"), "Commands start with '/'")

	// Test case 3: unexpected errors are logged, not echoed
	handler.bind(testChat, "s1")
	gm.On("TriggerEvent", ctx, "s1", "cozy").Return(nil, fmt.Errorf("disk on fire")).Once()
	response = handler.ProcessCommand(ctx, testChat, "/event cozy")
	assert.Equal(t, "Something went wrong. Try again.", response)
	assert.Contains(t, handler.ProcessCommand(ctx, testChat, "/roll"), "Usage: /roll")

	// Test case 4: unrelated calls never reach the game
	gm.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	gm.AssertExpectations(t)
}

func TestMessageFormatter(t *testing.T) {
	// Setup
	formatter := NewMessageFormatter()
	failure := false

	// Test case 1: failed roll with a narrator error
	response := formatter.FormatTurn(&types.TurnResult{
		Roll:    &types.CheckRoll{Skill: "Athletics", Raw: 3, Modifier: -1, Bonus: 0, Total: 2},
		Success: &failure,
		Error:   "narrator: connection refused",
	})
	assert.Contains(t, response, "🎲 Athletics: 2 (d20 3, -1, +0) ❌ failure")
	assert.Contains(t, response, "narrator is unavailable")
	assert.NotContains(t, response, "connection refused")

	// Test case 2: no saves
	assert.Equal(t, "No saved adventures yet.", formatter.FormatSnapshots(nil, 5))

	// Test case 3: list is capped
	infos := make([]types.SnapshotInfo, 7)
	for i := range infos {
		infos[i] = types.SnapshotInfo{SessionID: fmt.Sprintf("id-%d", i), CharacterName: "Vex"}
	}
	listing := formatter.FormatSnapshots(infos, 5)
	assert.Contains(t, listing, "/load id-4")
	assert.NotContains(t, listing, "/load id-5")

	// Test case 4: no narration yet
	assert.Empty(t, formatter.LastNarration(&types.SessionView{}))
}

func TestCommandText(t *testing.T) {
	// Test case 1: private chats need a slash
	assert.Equal(t, "/roll Stealth", commandText("/roll Stealth", false))
	assert.Empty(t, commandText("hello there", false))

	// Test case 2: groups need a "/ " prefix
	assert.Equal(t, "/roll Stealth", commandText("/ roll Stealth", true))
	assert.Empty(t, commandText("/roll Stealth", true))
	assert.Empty(t, commandText("hello there", true))
}

func TestParseJID(t *testing.T) {
	// Test case 1: bare phone number
	jid, err := parseJID("5521999999999")
	require.NoError(t, err)
	assert.Equal(t, "5521999999999", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)

	// Test case 2: full group JID
	jid, err = parseJID("120363025246125486@g.us")
	require.NoError(t, err)
	assert.Equal(t, "g.us", jid.Server)
}

func TestStoreNames(t *testing.T) {
	// Test case 1: round trip
	name := storeFileName("5521999999999", "abc-123")
	phone, id, ok := parseStoreName(name)
	require.True(t, ok)
	assert.Equal(t, "5521999999999", phone)
	assert.Equal(t, "abc-123", id)

	// Test case 2: foreign files
	_, _, ok = parseStoreName("snapshots.db")
	assert.False(t, ok)
	_, _, ok = parseStoreName("store__.db")
	assert.False(t, ok)

	// Test case 3: device listing on an empty directory
	devices, err := NewDeviceStore(t.TempDir(), zap.NewNop()).ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}
