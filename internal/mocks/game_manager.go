// Package mocks holds testify mocks shared by the transport tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/user/solo-adventure/internal/interfaces"
	"github.com/user/solo-adventure/internal/types"
)

// GameManager is a mock of interfaces.GameManager
type GameManager struct {
	mock.Mock
}

var _ interfaces.GameManager = (*GameManager)(nil)

func turn(args mock.Arguments) (*types.TurnResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TurnResult), args.Error(1)
}

func (m *GameManager) CreateSession(ctx context.Context, req types.NewSessionRequest) (*types.TurnResult, error) {
	return turn(m.Called(ctx, req))
}

func (m *GameManager) GetSession(id string) (*types.SessionView, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SessionView), args.Error(1)
}

func (m *GameManager) ListSessions() []types.SessionSummary {
	args := m.Called()
	return args.Get(0).([]types.SessionSummary)
}

func (m *GameManager) EndSession(id string) error {
	return m.Called(id).Error(0)
}

func (m *GameManager) SubmitAction(ctx context.Context, id, text string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, text))
}

func (m *GameManager) ResolveCheck(ctx context.Context, id, skill string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, skill))
}

func (m *GameManager) ManualRoll(ctx context.Context, id, skill string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, skill))
}

func (m *GameManager) TriggerEvent(ctx context.Context, id, kind string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, kind))
}

func (m *GameManager) GiveItem(ctx context.Context, id, item string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, item))
}

func (m *GameManager) DropItem(id, item string) (*types.TurnResult, error) {
	return turn(m.Called(id, item))
}

func (m *GameManager) TalkToCompanion(ctx context.Context, id, name string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, name))
}

func (m *GameManager) DismissCompanion(ctx context.Context, id, name string) (*types.TurnResult, error) {
	return turn(m.Called(ctx, id, name))
}

func (m *GameManager) SaveSession(ctx context.Context, id string) (types.SnapshotInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.SnapshotInfo), args.Error(1)
}

func (m *GameManager) LoadSession(ctx context.Context, id string) (*types.SessionView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SessionView), args.Error(1)
}

func (m *GameManager) ListSnapshots(ctx context.Context) ([]types.SnapshotInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.SnapshotInfo), args.Error(1)
}

func (m *GameManager) DeleteSnapshot(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *GameManager) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
