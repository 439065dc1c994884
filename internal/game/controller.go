package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/solo-adventure/internal/narrator"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/tags"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

var (
	ErrEmptyAction      = errors.New("action text is required")
	ErrCheckPending     = errors.New("a skill check is pending")
	ErrTurnInProgress   = errors.New("another turn is in progress")
	ErrNoPendingCheck   = errors.New("no skill check is pending")
	ErrSkillNotAllowed  = errors.New("skill is not a candidate for the pending check")
	ErrUnknownEvent     = errors.New("unknown event kind")
	ErrItemNotHeld      = errors.New("item is not in the inventory")
	ErrUnknownCompanion = errors.New("no such companion in the party")
	ErrEmptyReply       = errors.New("narrator returned an empty reply")
)

// Event kinds accepted by TriggerEvent
const (
	EventCozy      = "cozy"
	EventAdventure = "adventure"
	EventD20       = "d20"
)

// Controller drives the turn cycle of a session: classification, pending
// checks, narration and tag application.
type Controller struct {
	narrator narrator.Narrator
	dice     *rules.DiceRoller
	triggers rules.TriggerTable
	applier  *tags.Applier
	window   int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewController creates a turn controller
func NewController(n narrator.Narrator, dice *rules.DiceRoller, triggers rules.TriggerTable, limits tags.Limits, window int, timeout time.Duration) *Controller {
	if window <= 0 {
		window = narrator.DefaultWindow
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Controller{
		narrator: n,
		dice:     dice,
		triggers: triggers,
		applier:  tags.NewApplier(limits, nil),
		window:   window,
		timeout:  timeout,
		logger:   zap.NewNop(),
	}
}

// SetLogger sets the logger for the controller and its tag applier
func (c *Controller) SetLogger(logger *zap.Logger) {
	c.logger = logger
	c.applier = tags.NewApplier(c.applier.Limits(), logger)
}

// begin narrates the opening scene of a fresh session. The caller must hold
// the turn lock.
func (c *Controller) begin(ctx context.Context, s *Session) *types.TurnResult {
	s.mu.Lock()
	s.appendTurn(types.RoleUser, types.KindSystem, narrator.OpeningPrompt(s.Setting, s.character.Name))
	res := s.result()
	s.mu.Unlock()

	return c.narrate(ctx, s, res)
}

// SubmitAction records free player text. Text that matches a trigger opens a
// pending check and returns without narration.
func (c *Controller) SubmitAction(ctx context.Context, s *Session, text string) (*types.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAction
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrCheckPending
	}
	s.appendTurn(types.RoleUser, types.KindPlayer, text)
	s.phase = types.PhaseClassifying

	check := c.triggers.Classify(text, s.pending)
	if check != nil {
		notice := fmt.Sprintf("This requires a roll (%s DC %d). Choose one: %s.",
			check.Difficulty, check.DC, strings.Join(check.Skills, ", "))
		s.pending = check
		s.phase = types.PhaseAwaitingSkill
		s.appendTurn(types.RoleAssistant, types.KindSystem, notice)
		res := s.result()
		res.Notice = notice
		s.mu.Unlock()

		c.logger.Info("Skill check required",
			zap.String("session_id", s.ID),
			zap.String("action", text),
			zap.Strings("skills", check.Skills),
			zap.Int("dc", check.DC))
		return res, nil
	}
	res := s.result()
	s.mu.Unlock()

	return c.narrate(ctx, s, res), nil
}

// ResolveCheck rolls the chosen skill against the pending check, transfers
// loot on success and narrates the outcome
func (c *Controller) ResolveCheck(ctx context.Context, s *Session, skill string) (*types.TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil, ErrNoPendingCheck
	}
	name, ok := s.pending.Allows(strings.TrimSpace(skill))
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q (choose one of %s)", ErrSkillNotAllowed, skill, strings.Join(s.pending.Skills, ", "))
	}
	roll, err := rules.RollCheck(c.dice, s.character, name)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	check := s.pending
	success := rules.Resolve(roll.Total, check.DC)
	var loot []types.Effect
	if success && check.Target != "" {
		loot = s.loot(check.Target)
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}
	notice := fmt.Sprintf("Rolled %d on %s (total %d vs DC %d, %s). Resolve the outcome.",
		roll.Raw, roll.Skill, roll.Total, check.DC, outcome)
	s.appendTurn(types.RoleUser, types.KindRoll, notice)
	s.pending = nil

	res := s.result()
	res.Notice = notice
	res.Roll = &roll
	res.Success = &success
	res.Effects = loot
	s.mu.Unlock()

	c.logger.Info("Resolved skill check",
		zap.String("session_id", s.ID),
		zap.String("skill", roll.Skill),
		zap.Int("raw", roll.Raw),
		zap.Int("total", roll.Total),
		zap.Int("dc", check.DC),
		zap.Bool("success", success),
		zap.Int("loot", len(loot)))

	return c.narrate(ctx, s, res), nil
}

// loot moves the contents of an unlooted object into the inventory. Must be
// called with mu held.
func (s *Session) loot(target string) []types.Effect {
	obj, ok := s.objects[target]
	if !ok || obj.Looted {
		return nil
	}
	var effects []types.Effect
	for _, item := range obj.Contents {
		s.character.Inventory.Grant(item.Name, item.Quantity)
		effects = append(effects, types.Effect{
			Kind:    types.EffectLoot,
			Name:    item.Name,
			Amount:  item.Quantity,
			Message: fmt.Sprintf("Looted %s x%d from %s", item.Name, item.Quantity, obj.Name),
		})
	}
	obj.Looted = true
	s.dirty = true
	return effects
}

// ManualRoll rolls any known skill outside a pending check and reports it to
// the narrator
func (c *Controller) ManualRoll(ctx context.Context, s *Session, skill string) (*types.TurnResult, error) {
	var roll types.CheckRoll
	res, err := c.inject(ctx, s, types.KindRoll, func() (string, error) {
		var err error
		roll, err = rules.RollCheck(c.dice, s.character, strings.TrimSpace(skill))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[Manual Roll] I rolled %s. Result: %d (Natural %d).", roll.Skill, roll.Total, roll.Raw), nil
	})
	if err != nil {
		return nil, err
	}
	res.Roll = &roll
	return res, nil
}

// TriggerEvent asks the narrator for a cozy moment, an adventure hook or a
// reaction to a plain d20
func (c *Controller) TriggerEvent(ctx context.Context, s *Session, kind string) (*types.TurnResult, error) {
	return c.inject(ctx, s, types.KindSystem, func() (string, error) {
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case EventCozy:
			return "[SYSTEM: Trigger cozy event.]", nil
		case EventAdventure:
			return "[SYSTEM: Trigger adventure.]", nil
		case EventD20:
			return fmt.Sprintf("[SYSTEM: Roll D20. Result: %d.]", c.dice.D20()), nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	})
}

// GiveItem hands an inventory item to someone in the scene. The narrator
// removes it with a tag when it reacts.
func (c *Controller) GiveItem(ctx context.Context, s *Session, item string) (*types.TurnResult, error) {
	return c.inject(ctx, s, types.KindSystem, func() (string, error) {
		name, ok := findItem(s.character.Inventory, item)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrItemNotHeld, item)
		}
		return fmt.Sprintf("[SYSTEM: %s hands over %s. React and use [REMOVE ITEM: %s].]", s.character.Name, name, name), nil
	})
}

// TalkToCompanion opens a conversation with a party member
func (c *Controller) TalkToCompanion(ctx context.Context, s *Session, name string) (*types.TurnResult, error) {
	return c.inject(ctx, s, types.KindSystem, func() (string, error) {
		companion, ok := findCompanion(s.character.Companions, name)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownCompanion, name)
		}
		return fmt.Sprintf("[SYSTEM: Talk to %s]", companion), nil
	})
}

// DismissCompanion asks the narrator to write a companion out of the party
func (c *Controller) DismissCompanion(ctx context.Context, s *Session, name string) (*types.TurnResult, error) {
	return c.inject(ctx, s, types.KindSystem, func() (string, error) {
		companion, ok := findCompanion(s.character.Companions, name)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownCompanion, name)
		}
		return fmt.Sprintf("[SYSTEM: %s leaves party. use [REMOVE COMPANION: %s]]", companion, companion), nil
	})
}

// DropItem removes an inventory entry without involving the narrator
func (c *Controller) DropItem(s *Session, item string) (*types.TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := findItem(s.character.Inventory, item)
	if !ok || !s.character.Inventory.Drop(name) {
		return nil, fmt.Errorf("%w: %q", ErrItemNotHeld, item)
	}
	s.updatedAt = time.Now().UTC()
	s.dirty = true

	res := s.result()
	res.Effects = []types.Effect{{Kind: types.EffectItemRemoved, Name: name, Message: "Dropped: " + name}}
	return res, nil
}

// inject appends an engine-authored user turn and narrates it. build runs
// with the session fields locked and may reject the request.
func (c *Controller) inject(ctx context.Context, s *Session, kind types.TurnKind, build func() (string, error)) (*types.TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrCheckPending
	}
	content, err := build()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.appendTurn(types.RoleUser, kind, content)
	res := s.result()
	res.Notice = content
	s.mu.Unlock()

	return c.narrate(ctx, s, res), nil
}

// narrate sends the transcript window to the narrator and applies the reply.
// On failure exactly one error turn is recorded and the character is left
// untouched. The caller must hold the turn lock.
func (c *Controller) narrate(ctx context.Context, s *Session, res *types.TurnResult) *types.TurnResult {
	s.mu.Lock()
	s.phase = types.PhaseNarrating
	system := narrator.BuildSystemPrompt(narrator.PromptContext{
		Setting:   s.Setting,
		Character: s.character.Clone(),
		Objects:   cloneObjects(s.objects),
	})
	window := narrator.Window(s.transcript, c.window)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.narrator.Complete(ctx, system, window)
	if err == nil {
		reply = narrator.StripReasoning(reply)
		if reply == "" {
			err = ErrEmptyReply
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = types.PhaseAwaitingInput

	if err != nil {
		c.logger.Error("Narrator call failed",
			zap.String("session_id", s.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		s.appendTurn(types.RoleAssistant, types.KindError, fmt.Sprintf("The narrator is unavailable: %v", err))
		res.Phase = s.phase
		res.Pending = nil
		res.Error = err.Error()
		return res
	}

	s.appendTurn(types.RoleAssistant, types.KindNarration, reply)
	effects := c.applier.ApplyText(s.character, reply)

	c.logger.Info("Narrated turn",
		zap.String("session_id", s.ID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("effects", len(effects)))

	res.Reply = reply
	res.Effects = append(res.Effects, effects...)
	res.Phase = s.phase
	res.Pending = nil
	return res
}

// findItem resolves an inventory entry by exact name first, then by case
// folded substring
func findItem(inv types.Inventory, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, item := range inv {
		if strings.EqualFold(item.Name, name) {
			return item.Name, true
		}
	}
	for _, item := range inv {
		if types.ContainsFold(item.Name, name) {
			return item.Name, true
		}
	}
	return "", false
}

func findCompanion(companions []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, companion := range companions {
		if strings.EqualFold(companion, name) {
			return companion, true
		}
	}
	for _, companion := range companions {
		if types.ContainsFold(companion, name) {
			return companion, true
		}
	}
	return "", false
}
