package mocks

import (
	"context"

	"bingo_bot/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockReviewRepository struct {
	mock.Mock
}

func (m *MockReviewRepository) CreateReview(ctx context.Context, telegramID int64, taskID, handle string) (*model.ManualReview, error) {
	args := m.Called(ctx, telegramID, taskID, handle)
	r, _ := args.Get(0).(*model.ManualReview)
	return r, args.Error(1)
}

func (m *MockReviewRepository) HasPendingReview(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	args := m.Called(ctx, telegramID, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReviewRepository) ListPendingReviewTaskIDs(ctx context.Context, telegramID int64) ([]string, error) {
	args := m.Called(ctx, telegramID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockReviewRepository) ResolveReview(ctx context.Context, telegramID int64, taskID string, status model.ReviewStatus) (bool, error) {
	args := m.Called(ctx, telegramID, taskID, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockReviewRepository) ListPendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error) {
	args := m.Called(ctx, limit)
	r, _ := args.Get(0).([]*model.ManualReview)
	return r, args.Error(1)
}
