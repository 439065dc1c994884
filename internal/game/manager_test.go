package game

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/user/solo-adventure/config"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
)

// MockNarrator is a mock implementation of narrator.Narrator
type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Complete(ctx context.Context, system string, window []types.Turn) (string, error) {
	args := m.Called(ctx, system, window)
	return args.String(0), args.Error(1)
}

func (m *MockNarrator) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// fixedSource replays die faces
type fixedSource struct {
	faces []int
	next  int
}

func (f *fixedSource) Intn(n int) int {
	face := f.faces[f.next%len(f.faces)]
	f.next++
	return face - 1
}

var mageStats = map[types.Ability]int{
	types.STR: 10, types.DEX: 14, types.CON: 12,
	types.INT: 16, types.WIS: 10, types.CHA: 8,
}

func newTestManager(t *testing.T, n *MockNarrator, faces ...int) *GameManager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Game.AutosaveInterval = 0

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	if len(faces) == 0 {
		faces = []int{10}
	}
	dice := rules.NewDiceRollerFromSource(&fixedSource{faces: faces})
	return NewGameManagerWithDice(cfg, store, n, dice)
}

func expectReply(n *MockNarrator, reply string) *mock.Call {
	return n.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(reply, nil).Once()
}

func startSession(t *testing.T, gm *GameManager, n *MockNarrator, opening string) string {
	t.Helper()
	expectReply(n, opening)
	res, err := gm.CreateSession(context.Background(), types.NewSessionRequest{
		Name:      "Renn",
		Class:     "mage",
		Abilities: mageStats,
	})
	require.NoError(t, err)
	require.Empty(t, res.Error)
	return res.SessionID
}

func characterJSON(t *testing.T, gm *GameManager, id string) []byte {
	t.Helper()
	view, err := gm.GetSession(id)
	require.NoError(t, err)
	data, err := json.Marshal(view.Character)
	require.NoError(t, err)
	return data
}

func TestCreateSession(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	expectReply(n, "<think>set the scene</think>You wake in a meadow. [ADD ITEM: Walking Stick] What do you do?")

	// Test case 1: opening scene is narrated and its tags applied
	res, err := gm.CreateSession(context.Background(), types.NewSessionRequest{
		Name:      "Renn",
		Class:     "mage",
		Abilities: mageStats,
	})
	require.NoError(t, err)
	assert.Equal(t, "You wake in a meadow. [ADD ITEM: Walking Stick] What do you do?", res.Reply)
	assert.Equal(t, types.PhaseAwaitingInput, res.Phase)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, types.EffectItemAdded, res.Effects[0].Kind)

	view, err := gm.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Fantasy Adventure", view.Setting)
	assert.Equal(t, "Mage", view.Character.Class)
	assert.Equal(t, 7, view.Character.MaxHP)
	assert.Equal(t, []string{"Clothes", "Walking Stick"}, view.Character.Inventory.Names())
	require.Len(t, view.Transcript, 2)
	assert.True(t, strings.HasPrefix(view.Transcript[0].Content, "[START GAME:"))
	assert.Equal(t, types.KindNarration, view.Transcript[1].Kind)
	assert.Contains(t, view.Objects, "chest")

	// Test case 2: the opening window holds only the start turn
	window := n.Calls[0].Arguments.Get(2).([]types.Turn)
	assert.Len(t, window, 1)

	// Test case 3: invalid requests are rejected before anything is stored
	_, err = gm.CreateSession(context.Background(), types.NewSessionRequest{Name: "Renn", Class: "Bard"})
	assert.ErrorIs(t, err, ErrUnknownClass)
	_, err = gm.CreateSession(context.Background(), types.NewSessionRequest{Name: " ", Class: "Mage"})
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Len(t, gm.ListSessions(), 1)

	// Test case 4: unknown session
	_, err = gm.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n.AssertExpectations(t)
}

func TestSubmitActionOpensPendingCheck(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "A chest sits in the corner. What do you do?")

	// Test case 1: trigger phrase opens a check without calling the narrator
	res, err := gm.SubmitAction(context.Background(), id, "I try to open chest")
	require.NoError(t, err)
	assert.Equal(t, "This requires a roll (medium DC 15). Choose one: Investigation.", res.Notice)
	assert.Equal(t, types.PhaseAwaitingSkill, res.Phase)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "chest", res.Pending.Target)
	n.AssertNumberOfCalls(t, "Complete", 1)

	// Test case 2: no nested checks and no narrated operations while pending
	_, err = gm.SubmitAction(context.Background(), id, "I look around")
	assert.ErrorIs(t, err, ErrCheckPending)
	_, err = gm.TriggerEvent(context.Background(), id, EventCozy)
	assert.ErrorIs(t, err, ErrCheckPending)
	_, err = gm.ManualRoll(context.Background(), id, "Arcana")
	assert.ErrorIs(t, err, ErrCheckPending)

	// Test case 3: only candidate skills resolve the check
	_, err = gm.ResolveCheck(context.Background(), id, "Stealth")
	assert.ErrorIs(t, err, ErrSkillNotAllowed)

	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingSkill, view.Phase)
	last := view.Transcript[len(view.Transcript)-1]
	assert.Equal(t, types.RoleAssistant, last.Role)
	assert.Equal(t, types.KindSystem, last.Kind)

	// Test case 4: empty text
	_, err = gm.SubmitAction(context.Background(), id, "   ")
	assert.ErrorIs(t, err, ErrEmptyAction)
}

func TestResolveCheckLootsOnce(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n, 20)
	id := startSession(t, gm, n, "A chest sits in the corner. What do you do?")

	// Test case 1: success transfers the chest contents
	_, err := gm.SubmitAction(context.Background(), id, "open chest")
	require.NoError(t, err)
	expectReply(n, "The lid swings open. [XP: 25] What do you do?")

	res, err := gm.ResolveCheck(context.Background(), id, "investigation")
	require.NoError(t, err)
	require.NotNil(t, res.Roll)
	assert.Equal(t, 20, res.Roll.Raw)
	assert.Equal(t, 23, res.Roll.Total)
	require.NotNil(t, res.Success)
	assert.True(t, *res.Success)
	assert.Equal(t, "Rolled 20 on Investigation (total 23 vs DC 15, success). Resolve the outcome.", res.Notice)
	assert.Nil(t, res.Pending)
	assert.Equal(t, types.PhaseAwaitingInput, res.Phase)

	kinds := make([]types.EffectKind, 0, len(res.Effects))
	for _, e := range res.Effects {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []types.EffectKind{types.EffectLoot, types.EffectLoot, types.EffectXP}, kinds)

	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Character.Inventory.Quantity("Gold Coin"))
	assert.Equal(t, 1, view.Character.Inventory.Quantity("Healing Potion"))
	assert.True(t, view.Objects["chest"].Looted)
	assert.Equal(t, 25, view.Character.XP)

	// the roll reaches the narrator as a user turn
	window := n.Calls[1].Arguments.Get(2).([]types.Turn)
	assert.Equal(t, types.RoleUser, window[len(window)-1].Role)
	assert.Equal(t, types.KindRoll, window[len(window)-1].Kind)

	// Test case 2: a looted chest yields nothing the second time
	_, err = gm.SubmitAction(context.Background(), id, "open chest again")
	require.NoError(t, err)
	expectReply(n, "It is empty. What do you do?")

	res, err = gm.ResolveCheck(context.Background(), id, "Investigation")
	require.NoError(t, err)
	assert.Empty(t, res.Effects)

	view, err = gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Character.Inventory.Quantity("Gold Coin"))

	// Test case 3: nothing left to resolve
	_, err = gm.ResolveCheck(context.Background(), id, "Investigation")
	assert.ErrorIs(t, err, ErrNoPendingCheck)

	n.AssertExpectations(t)
}

func TestResolveCheckFailureKeepsLoot(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n, 1)
	id := startSession(t, gm, n, "A chest. What do you do?")

	_, err := gm.SubmitAction(context.Background(), id, "open chest")
	require.NoError(t, err)
	expectReply(n, "The lock holds. What do you do?")

	res, err := gm.ResolveCheck(context.Background(), id, "Investigation")
	require.NoError(t, err)
	require.NotNil(t, res.Success)
	assert.False(t, *res.Success)
	assert.Contains(t, res.Notice, "failure")
	assert.Empty(t, res.Effects)

	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.False(t, view.Objects["chest"].Looted)
	assert.False(t, view.Character.Inventory.Has("Gold Coin"))
}

func TestNarratorFailureLeavesCharacterUntouched(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "The road splits. What do you do?")

	before := characterJSON(t, gm, id)
	viewBefore, err := gm.GetSession(id)
	require.NoError(t, err)

	n.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("connection refused")).Once()

	// Test case 1: the failure is reported in the result, not as an error
	res, err := gm.SubmitAction(context.Background(), id, "I walk north")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "connection refused")
	assert.Empty(t, res.Reply)
	assert.Equal(t, types.PhaseAwaitingInput, res.Phase)

	// Test case 2: character byte-identical, exactly one error turn
	assert.Equal(t, string(before), string(characterJSON(t, gm, id)))

	view, err := gm.GetSession(id)
	require.NoError(t, err)
	added := view.Transcript[len(viewBefore.Transcript):]
	require.Len(t, added, 2)
	assert.Equal(t, types.KindPlayer, added[0].Kind)
	assert.Equal(t, types.KindError, added[1].Kind)

	errorTurns := 0
	for _, turn := range view.Transcript {
		if turn.Kind == types.KindError {
			errorTurns++
		}
	}
	assert.Equal(t, 1, errorTurns)

	// Test case 3: the error turn is not sent on the next call
	expectReply(n, "You walk north. What do you do?")
	_, err = gm.SubmitAction(context.Background(), id, "I walk north again")
	require.NoError(t, err)
	window := n.Calls[2].Arguments.Get(2).([]types.Turn)
	for _, turn := range window {
		assert.NotEqual(t, types.KindError, turn.Kind)
	}

	// Test case 4: a reply that is only reasoning counts as a failure
	expectReply(n, "<think>nothing to say</think>")
	res, err = gm.SubmitAction(context.Background(), id, "I wait")
	require.NoError(t, err)
	assert.Contains(t, res.Error, ErrEmptyReply.Error())
}

func TestTurnInProgress(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "Rain falls. What do you do?")

	entered := make(chan struct{})
	release := make(chan struct{})
	n.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return("The wind howls. What do you do?", nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := gm.SubmitAction(context.Background(), id, "I wait for the rain to stop")
		done <- err
	}()
	<-entered

	// Test case 1: concurrent operations on the same session are refused
	_, err := gm.SubmitAction(context.Background(), id, "I run")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	_, err = gm.SaveSession(context.Background(), id)
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, gm.EndSession(id), ErrTurnInProgress)

	// Test case 2: the session can still be viewed
	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseNarrating, view.Phase)

	close(release)
	require.NoError(t, <-done)

	view, err = gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingInput, view.Phase)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "A chest. [ADD COMPANION: Bram] What do you do?")

	_, err := gm.SubmitAction(context.Background(), id, "open chest")
	require.NoError(t, err)
	before, err := gm.GetSession(id)
	require.NoError(t, err)

	// Test case 1: save and end
	info, err := gm.SaveSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, info.SessionID)
	assert.Equal(t, "Renn", info.CharacterName)

	require.NoError(t, gm.EndSession(id))
	_, err = gm.GetSession(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Test case 2: load restores the pending check and the character
	view, err := gm.LoadSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingSkill, view.Phase)
	require.NotNil(t, view.Pending)
	assert.Equal(t, before.Pending, view.Pending)
	assert.Equal(t, before.Character.Stats, view.Character.Stats)
	assert.Equal(t, before.Character.Companions, view.Character.Companions)
	assert.Equal(t, len(before.Transcript), len(view.Transcript))

	_, err = gm.SubmitAction(context.Background(), id, "I look around")
	assert.ErrorIs(t, err, ErrCheckPending)

	// Test case 3: snapshots can be listed and deleted
	infos, err := gm.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].SessionID)

	require.NoError(t, gm.DeleteSnapshot(context.Background(), id))
	_, err = gm.LoadSession(context.Background(), id)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestDetachedSessionsRefuseTurns(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	ctx := context.Background()
	id := startSession(t, gm, n, "Rain falls. What do you do?")

	_, err := gm.SaveSession(ctx, id)
	require.NoError(t, err)
	stale, err := gm.session(id)
	require.NoError(t, err)

	// Test case 1: a reload detaches the old copy
	_, err = gm.LoadSession(ctx, id)
	require.NoError(t, err)

	_, err = gm.controller.DropItem(stale, "Clothes")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = gm.controller.SubmitAction(ctx, stale, "I wait")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = gm.saveIfDirty(stale)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Test case 2: the reloaded session still plays
	res, err := gm.DropItem(id, "Clothes")
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, types.EffectItemRemoved, res.Effects[0].Kind)

	// Test case 3: ending detaches as well
	current, err := gm.session(id)
	require.NoError(t, err)
	require.NoError(t, gm.EndSession(id))
	_, err = gm.controller.GiveItem(ctx, current, "Rope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n.AssertExpectations(t)
}

func TestCreateSessionHoldsTurnUntilNarrated(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	ctx := context.Background()

	var during []error
	n.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			for _, session := range gm.activeSessions() {
				_, err := gm.SaveSession(ctx, session.ID)
				during = append(during, err)
			}
		}).
		Return("Rain falls. What do you do?", nil).Once()

	// Test case 1: the published session is busy while its opening is narrated
	res, err := gm.CreateSession(ctx, types.NewSessionRequest{Name: "Renn", Class: "mage", Abilities: mageStats})
	require.NoError(t, err)
	require.Len(t, during, 1)
	assert.ErrorIs(t, during[0], ErrTurnInProgress)

	// Test case 2: the lock is released afterwards
	_, err = gm.SaveSession(ctx, res.SessionID)
	assert.NoError(t, err)
}

func TestManualRollAndEvents(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n, 15)
	id := startSession(t, gm, n, "A quiet camp. What do you do?")

	// Test case 1: manual roll of a trained skill
	expectReply(n, "The runes glow. What do you do?")
	res, err := gm.ManualRoll(context.Background(), id, "arcana")
	require.NoError(t, err)
	require.NotNil(t, res.Roll)
	assert.Equal(t, "[Manual Roll] I rolled Arcana. Result: 20 (Natural 15).", res.Notice)

	// Test case 2: manual rolls never open a check
	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.Nil(t, view.Pending)

	// Test case 3: events
	expectReply(n, "A fire crackles. What do you do?")
	res, err = gm.TriggerEvent(context.Background(), id, "Cozy")
	require.NoError(t, err)
	assert.Equal(t, "[SYSTEM: Trigger cozy event.]", res.Notice)

	expectReply(n, "Fate smiles. What do you do?")
	res, err = gm.TriggerEvent(context.Background(), id, EventD20)
	require.NoError(t, err)
	assert.Equal(t, "[SYSTEM: Roll D20. Result: 15.]", res.Notice)

	_, err = gm.TriggerEvent(context.Background(), id, "dragon")
	assert.ErrorIs(t, err, ErrUnknownEvent)
	_, err = gm.ManualRoll(context.Background(), id, "Juggling")
	assert.ErrorIs(t, err, rules.ErrUnknownSkill)

	n.AssertExpectations(t)
}

func TestItemsAndCompanions(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "Bram joins you. [ADD COMPANION: Bram] [ADD ITEM: Rope] What do you do?")

	// Test case 1: giving an item lets the narrator remove it
	expectReply(n, "The guard pockets it. [REMOVE ITEM: Clothes] What do you do?")
	res, err := gm.GiveItem(context.Background(), id, "clothes")
	require.NoError(t, err)
	assert.Equal(t, "[SYSTEM: Renn hands over Clothes. React and use [REMOVE ITEM: Clothes].]", res.Notice)

	view, err := gm.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Rope"}, view.Character.Inventory.Names())

	_, err = gm.GiveItem(context.Background(), id, "Sword")
	assert.ErrorIs(t, err, ErrItemNotHeld)

	// Test case 2: dropping needs no narrator
	res, err = gm.DropItem(id, "rope")
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, "Rope", res.Effects[0].Name)
	_, err = gm.DropItem(id, "rope")
	assert.ErrorIs(t, err, ErrItemNotHeld)

	// Test case 3: companions
	expectReply(n, "Bram grins. What do you do?")
	res, err = gm.TalkToCompanion(context.Background(), id, "bram")
	require.NoError(t, err)
	assert.Equal(t, "[SYSTEM: Talk to Bram]", res.Notice)

	expectReply(n, "Bram waves goodbye. [REMOVE COMPANION: Bram] What do you do?")
	res, err = gm.DismissCompanion(context.Background(), id, "Bram")
	require.NoError(t, err)
	assert.Equal(t, "[SYSTEM: Bram leaves party. use [REMOVE COMPANION: Bram]]", res.Notice)

	view, err = gm.GetSession(id)
	require.NoError(t, err)
	assert.Empty(t, view.Character.Companions)

	_, err = gm.TalkToCompanion(context.Background(), id, "Bram")
	assert.ErrorIs(t, err, ErrUnknownCompanion)

	n.AssertExpectations(t)
}

func TestAutosaveSavesDirtySessions(t *testing.T) {
	// Setup
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	id := startSession(t, gm, n, "Morning. What do you do?")
	session, err := gm.session(id)
	require.NoError(t, err)

	// Test case 1: a fresh session is saved once
	saved, err := gm.saveIfDirty(session)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = gm.saveIfDirty(session)
	require.NoError(t, err)
	assert.False(t, saved)

	// Test case 2: a change marks it dirty again
	_, err = gm.DropItem(id, "Clothes")
	require.NoError(t, err)
	NewAutosaveSystem(gm, time.Hour).saveDirty()

	snap, err := gm.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, snap.Character.Inventory)
}

func TestListModels(t *testing.T) {
	n := new(MockNarrator)
	gm := newTestManager(t, n)
	n.On("ListModels", mock.Anything).Return([]string{"llama3", "mistral"}, nil).Once()

	models, err := gm.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, models)
}
