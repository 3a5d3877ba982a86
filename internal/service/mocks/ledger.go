package mocks

import (
	"context"

	"bingo_bot/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	return user(args, 0), args.Error(1)
}

func (m *MockLedger) HasCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	args := m.Called(ctx, telegramID, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Completions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error) {
	args := m.Called(ctx, telegramID)
	completions, _ := args.Get(0).([]model.TaskCompletion)
	return completions, args.Error(1)
}

func (m *MockLedger) CompleteTask(ctx context.Context, telegramID int64, task model.Task) (*model.User, error) {
	args := m.Called(ctx, telegramID, task)
	return user(args, 0), args.Error(1)
}

// WithUserLock runs fn directly; tests exercise real locking on
// LedgerService.
func (m *MockLedger) WithUserLock(telegramID int64, fn func() error) error {
	return fn()
}

type MockMembershipChecker struct {
	mock.Mock
}

func (m *MockMembershipChecker) IsMember(ctx context.Context, channelRef string, telegramID int64) (bool, error) {
	args := m.Called(ctx, channelRef, telegramID)
	return args.Bool(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(event model.LedgerEvent) {
	m.Called(event)
}
