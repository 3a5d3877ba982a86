package mocks

import (
	"context"

	"bingo_bot/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreateUser(ctx context.Context, user *model.User, referralBonus int) (bool, error) {
	args := m.Called(ctx, user, referralBonus)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	return user(args, 0), args.Error(1)
}

func (m *MockLedgerRepository) AddPoints(ctx context.Context, telegramID int64, delta int) (*model.User, error) {
	args := m.Called(ctx, telegramID, delta)
	return user(args, 0), args.Error(1)
}

func (m *MockLedgerRepository) UpdateWalletAddress(ctx context.Context, telegramID int64, address string) error {
	args := m.Called(ctx, telegramID, address)
	return args.Error(0)
}

func (m *MockLedgerRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *MockLedgerRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	args := m.Called(ctx, limit)
	users, _ := args.Get(0).([]*model.User)
	return users, args.Error(1)
}

func (m *MockLedgerRepository) HasCompletedTask(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	args := m.Called(ctx, telegramID, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) ListCompletions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error) {
	args := m.Called(ctx, telegramID)
	completions, _ := args.Get(0).([]model.TaskCompletion)
	return completions, args.Error(1)
}

func (m *MockLedgerRepository) MarkTaskCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	args := m.Called(ctx, telegramID, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) CompleteTask(ctx context.Context, telegramID int64, taskID string, reward int) (*model.User, error) {
	args := m.Called(ctx, telegramID, taskID, reward)
	return user(args, 0), args.Error(1)
}

func (m *MockLedgerRepository) CreateWithdrawal(ctx context.Context, telegramID int64, amount int) (*model.Withdrawal, *model.User, error) {
	args := m.Called(ctx, telegramID, amount)
	w, _ := args.Get(0).(*model.Withdrawal)
	return w, user(args, 1), args.Error(2)
}

func (m *MockLedgerRepository) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	args := m.Called(ctx, id)
	w, _ := args.Get(0).(*model.Withdrawal)
	return w, args.Error(1)
}

func (m *MockLedgerRepository) CompleteWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	args := m.Called(ctx, id)
	w, _ := args.Get(0).(*model.Withdrawal)
	return w, args.Error(1)
}

func (m *MockLedgerRepository) ListPendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error) {
	args := m.Called(ctx, limit)
	w, _ := args.Get(0).([]*model.Withdrawal)
	return w, args.Error(1)
}

func (m *MockLedgerRepository) ListUserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error) {
	args := m.Called(ctx, telegramID, limit)
	w, _ := args.Get(0).([]*model.Withdrawal)
	return w, args.Error(1)
}

func user(args mock.Arguments, i int) *model.User {
	u, _ := args.Get(i).(*model.User)
	return u
}
