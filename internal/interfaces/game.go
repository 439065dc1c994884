package interfaces

import (
	"context"

	"github.com/user/solo-adventure/internal/types"
)

// MessageSender defines the interface for sending messages
type MessageSender interface {
	SendMessage(phoneNumber, recipient, message string) (string, error)
}

// GameManager defines the interface for game operations
type GameManager interface {
	CreateSession(ctx context.Context, req types.NewSessionRequest) (*types.TurnResult, error)
	GetSession(sessionID string) (*types.SessionView, error)
	ListSessions() []types.SessionSummary
	EndSession(sessionID string) error

	SubmitAction(ctx context.Context, sessionID, text string) (*types.TurnResult, error)
	ResolveCheck(ctx context.Context, sessionID, skill string) (*types.TurnResult, error)
	ManualRoll(ctx context.Context, sessionID, skill string) (*types.TurnResult, error)
	TriggerEvent(ctx context.Context, sessionID, kind string) (*types.TurnResult, error)
	GiveItem(ctx context.Context, sessionID, item string) (*types.TurnResult, error)
	DropItem(sessionID, item string) (*types.TurnResult, error)
	TalkToCompanion(ctx context.Context, sessionID, name string) (*types.TurnResult, error)
	DismissCompanion(ctx context.Context, sessionID, name string) (*types.TurnResult, error)

	SaveSession(ctx context.Context, sessionID string) (types.SnapshotInfo, error)
	LoadSession(ctx context.Context, sessionID string) (*types.SessionView, error)
	ListSnapshots(ctx context.Context) ([]types.SnapshotInfo, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error

	ListModels(ctx context.Context) ([]string, error)
}
