package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/solo-adventure/internal/game"
	"github.com/user/solo-adventure/internal/interfaces"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

const helpText = `🗡️ *SOLO ADVENTURE* 🗡️

/new <name> <class> [setting] - start an adventure (classes: %s)
/<anything else> - tell the narrator what you do, e.g. /I open the chest
/roll <skill> - roll for the pending check
/manual <skill> - roll any skill (%s)
/event cozy|adventure|d20 - shake things up
/give <item> - hand an item over
/drop <item> - drop an item
/talk <companion> - talk to a companion
/dismiss <companion> - part ways with a companion
/sheet - character sheet
/journal - journal entries
/save - save the adventure
/load [id] - list saves or load one
/end - save and close the adventure
/help - this message`

// CommandHandler turns chat commands into game operations. Each chat is bound
// to at most one active session.
type CommandHandler struct {
	gameManager interfaces.GameManager
	formatter   *MessageFormatter
	logger      *zap.Logger
	bindings    map[string]string
	mutex       sync.RWMutex
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(gameManager interfaces.GameManager, logger *zap.Logger) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		gameManager: gameManager,
		formatter:   NewMessageFormatter(),
		logger:      logger,
		bindings:    make(map[string]string),
	}
}

// ProcessCommand handles one "/" message from chat and returns the reply
func (ch *CommandHandler) ProcessCommand(ctx context.Context, chat, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "Commands start with '/'. Send /help to see them."
	}
	text = strings.TrimSpace(strings.TrimPrefix(text, "/"))
	if text == "" {
		return ch.help()
	}

	word, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case "help", "start":
		return ch.help()
	case "new":
		return ch.handleNew(ctx, chat, rest)
	case "load":
		return ch.handleLoad(ctx, chat, rest)
	}

	sessionID, ok := ch.binding(chat)
	if !ok {
		return "No adventure in progress. Start one with /new <name> <class> [setting] or /load."
	}

	var (
		res *types.TurnResult
		err error
	)
	switch strings.ToLower(word) {
	case "roll":
		if rest == "" {
			return "Usage: /roll <skill>"
		}
		res, err = ch.gameManager.ResolveCheck(ctx, sessionID, rest)
	case "manual":
		if rest == "" {
			return "Usage: /manual <skill>"
		}
		res, err = ch.gameManager.ManualRoll(ctx, sessionID, rest)
	case "event":
		res, err = ch.gameManager.TriggerEvent(ctx, sessionID, rest)
	case "give":
		res, err = ch.gameManager.GiveItem(ctx, sessionID, rest)
	case "drop":
		res, err = ch.gameManager.DropItem(sessionID, rest)
	case "talk":
		res, err = ch.gameManager.TalkToCompanion(ctx, sessionID, rest)
	case "dismiss":
		res, err = ch.gameManager.DismissCompanion(ctx, sessionID, rest)
	case "sheet", "status":
		return ch.handleView(chat, sessionID, game.FormatSheet)
	case "journal":
		return ch.handleView(chat, sessionID, game.FormatJournal)
	case "save":
		return ch.handleSave(ctx, chat, sessionID)
	case "end":
		return ch.handleEnd(ctx, chat, sessionID)
	default:
		res, err = ch.gameManager.SubmitAction(ctx, sessionID, text)
	}
	if err != nil {
		return ch.friendlyError(chat, err)
	}
	return ch.formatter.FormatTurn(res)
}

func (ch *CommandHandler) help() string {
	return fmt.Sprintf(helpText, strings.Join(rules.ClassNames(), ", "), strings.Join(rules.SkillNames(), ", "))
}

func (ch *CommandHandler) handleNew(ctx context.Context, chat, args string) string {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return fmt.Sprintf("Usage: /new <name> <class> [setting]\nClasses: %s", strings.Join(rules.ClassNames(), ", "))
	}

	res, err := ch.gameManager.CreateSession(ctx, types.NewSessionRequest{
		Name:    fields[0],
		Class:   fields[1],
		Setting: strings.Join(fields[2:], " "),
	})
	if err != nil {
		return ch.friendlyError(chat, err)
	}

	ch.bind(chat, res.SessionID)
	ch.logger.Info("Chat started adventure",
		zap.String("chat", chat),
		zap.String("session_id", res.SessionID))

	return fmt.Sprintf("⚔️ Adventure started! Save id: %s\n\n%s", res.SessionID, ch.formatter.FormatTurn(res))
}

func (ch *CommandHandler) handleLoad(ctx context.Context, chat, id string) string {
	if id == "" {
		infos, err := ch.gameManager.ListSnapshots(ctx)
		if err != nil {
			return ch.friendlyError(chat, err)
		}
		return ch.formatter.FormatSnapshots(infos, 5)
	}

	view, err := ch.gameManager.LoadSession(ctx, id)
	if err != nil {
		return ch.friendlyError(chat, err)
	}
	ch.bind(chat, view.SessionID)

	msg := fmt.Sprintf("📖 Welcome back, %s.", view.Character.Name)
	if last := ch.formatter.LastNarration(view); last != "" {
		msg += "\n\n" + last
	}
	if view.Pending != nil {
		msg += "\n\n" + ch.formatter.FormatTurn(&types.TurnResult{Pending: view.Pending})
	}
	return msg
}

func (ch *CommandHandler) handleView(chat, sessionID string, render func(*types.Character) string) string {
	view, err := ch.gameManager.GetSession(sessionID)
	if err != nil {
		return ch.friendlyError(chat, err)
	}
	return render(view.Character)
}

func (ch *CommandHandler) handleSave(ctx context.Context, chat, sessionID string) string {
	info, err := ch.gameManager.SaveSession(ctx, sessionID)
	if err != nil {
		return ch.friendlyError(chat, err)
	}
	return fmt.Sprintf("💾 Saved %s (level %d). Load it later with /load %s", info.CharacterName, info.Level, info.SessionID)
}

func (ch *CommandHandler) handleEnd(ctx context.Context, chat, sessionID string) string {
	if _, err := ch.gameManager.SaveSession(ctx, sessionID); err != nil {
		return ch.friendlyError(chat, err)
	}
	if err := ch.gameManager.EndSession(sessionID); err != nil {
		return ch.friendlyError(chat, err)
	}
	ch.unbind(chat)
	return fmt.Sprintf("🏁 Adventure saved and closed. Resume with /load %s", sessionID)
}

// friendlyError maps game errors to chat replies
func (ch *CommandHandler) friendlyError(chat string, err error) string {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		ch.unbind(chat)
		return "No adventure in progress. Start one with /new <name> <class> [setting] or /load."
	case errors.Is(err, game.ErrTurnInProgress):
		return "⏳ The narrator is still telling the last turn. Wait a moment."
	case errors.Is(err, game.ErrCheckPending):
		return "🎲 A roll is pending. Use /roll <skill> first."
	case errors.Is(err, game.ErrNoPendingCheck):
		return "No roll is pending. Use /manual <skill> to roll anyway."
	case errors.Is(err, game.ErrSnapshotNotFound), errors.Is(err, game.ErrInvalidSessionID):
		return "No save found with that id. Send /load to list them."
	case errors.Is(err, game.ErrSkillNotAllowed),
		errors.Is(err, game.ErrUnknownClass),
		errors.Is(err, game.ErrEmptyName),
		errors.Is(err, game.ErrEmptyAction),
		errors.Is(err, game.ErrUnknownEvent),
		errors.Is(err, game.ErrItemNotHeld),
		errors.Is(err, game.ErrUnknownCompanion),
		errors.Is(err, rules.ErrUnknownSkill):
		return "❌ " + err.Error()
	}

	ch.logger.Error("Command failed",
		zap.String("chat", chat),
		zap.Error(err))
	return "Something went wrong. Try again."
}

func (ch *CommandHandler) binding(chat string) (string, bool) {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()
	id, ok := ch.bindings[chat]
	return id, ok
}

func (ch *CommandHandler) bind(chat, sessionID string) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	ch.bindings[chat] = sessionID
}

func (ch *CommandHandler) unbind(chat string) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	delete(ch.bindings, chat)
}
