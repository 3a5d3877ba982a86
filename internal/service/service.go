package service

import (
	"context"
	"errors"

	"bingo_bot/internal/model"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already registered")
	ErrAlreadyCompleted      = errors.New("task already completed")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrBelowMinimum          = errors.New("amount is below the minimum withdrawal")
	ErrWithdrawalNotFound    = errors.New("withdrawal not found")
	ErrWithdrawalCompleted   = errors.New("withdrawal already completed")
	ErrTaskNotFound          = errors.New("task not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrMalformedInput        = errors.New("malformed input")
	ErrExternalCheckFailed   = errors.New("external check failed")
	ErrNotMember             = errors.New("user is not a channel member")
	ErrWalletNotSet          = errors.New("wallet address is not set")
	ErrReviewPending         = errors.New("review already pending")
	ErrWrongVerificationKind = errors.New("task uses a different verification kind")
)

type Service struct {
	*LedgerService
	*TaskService
}

func NewService(ledgerService *LedgerService, taskService *TaskService) *Service {
	return &Service{
		LedgerService: ledgerService,
		TaskService:   taskService,
	}
}

type LedgerRepository interface {
	CreateUser(ctx context.Context, user *model.User, referralBonus int) (bool, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	AddPoints(ctx context.Context, telegramID int64, delta int) (*model.User, error)
	UpdateWalletAddress(ctx context.Context, telegramID int64, address string) error
	ListUserIDs(ctx context.Context) ([]int64, error)
	GetTopUsers(ctx context.Context, limit int) ([]*model.User, error)

	HasCompletedTask(ctx context.Context, telegramID int64, taskID string) (bool, error)
	ListCompletions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error)
	MarkTaskCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error)
	CompleteTask(ctx context.Context, telegramID int64, taskID string, reward int) (*model.User, error)

	CreateWithdrawal(ctx context.Context, telegramID int64, amount int) (*model.Withdrawal, *model.User, error)
	GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)
	CompleteWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error)
	ListPendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error)
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, telegramID int64, taskID, handle string) (*model.ManualReview, error)
	HasPendingReview(ctx context.Context, telegramID int64, taskID string) (bool, error)
	ListPendingReviewTaskIDs(ctx context.Context, telegramID int64) ([]string, error)
	ResolveReview(ctx context.Context, telegramID int64, taskID string, status model.ReviewStatus) (bool, error)
	ListPendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error)
}

// Ledger is the subset of LedgerService that task verification needs.
type Ledger interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	HasCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error)
	Completions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error)
	CompleteTask(ctx context.Context, telegramID int64, task model.Task) (*model.User, error)
	WithUserLock(telegramID int64, fn func() error) error
}

type TaskCatalog interface {
	List() []model.Task
	Find(id string) (model.Task, bool)
}

// MembershipChecker asks the messaging platform whether a user belongs to
// a channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelRef string, telegramID int64) (bool, error)
}

// Notifier receives ledger events after they are committed.
type Notifier interface {
	Publish(event model.LedgerEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(model.LedgerEvent) {}
