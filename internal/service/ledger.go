package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bingo_bot/internal/metrics"
	"bingo_bot/internal/model"
	"bingo_bot/internal/repository"
	"bingo_bot/pkg/logger"

	"go.uber.org/zap"
)

type LedgerConfig struct {
	StartingBonus     int   `mapstructure:"startingBonus"`
	ReferralBonus     int   `mapstructure:"referralBonus"`
	MinWithdrawal     int   `mapstructure:"minWithdrawal"`
	WithdrawalOptions []int `mapstructure:"withdrawalOptions"`
}

type WalletConfig struct {
	Prefix    string `mapstructure:"prefix"`
	MinLength int    `mapstructure:"minLength"`
}

// LedgerService owns balances, task completions and withdrawals. Mutations
// for one user are serialized in-process on top of the storage guarantees.
type LedgerService struct {
	repo     LedgerRepository
	cfg      LedgerConfig
	wallet   WalletConfig
	notifier Notifier
	locks    *userLocks
	now      func() time.Time
}

func NewLedgerService(repo LedgerRepository, cfg LedgerConfig, wallet WalletConfig, notifier Notifier) *LedgerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &LedgerService{
		repo:     repo,
		cfg:      cfg,
		wallet:   wallet,
		notifier: notifier,
		locks:    newUserLocks(),
		now:      time.Now,
	}
}

func (s *LedgerService) Config() LedgerConfig {
	return s.cfg
}

func (s *LedgerService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by telegram ID: %w", err)
	}
	return user, nil
}

// Register creates the user with the starting bonus. referrerCredited is
// true when referrerID named another existing user who received the
// referral bonus.
func (s *LedgerService) Register(ctx context.Context, telegramID int64, username string, referrerID *int64) (user *model.User, referrerCredited bool, err error) {
	unlock := s.locks.lock(telegramID)
	defer unlock()

	if username == "" {
		username = "Anonymous"
	}

	u := &model.User{
		TelegramID:   telegramID,
		Username:     username,
		Points:       s.cfg.StartingBonus,
		ReferrerID:   referrerID,
		RegisteredAt: s.now(),
	}

	credited, err := s.repo.CreateUser(ctx, u, s.cfg.ReferralBonus)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, false, ErrUserExists
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	metrics.Registrations.WithLabelValues(fmt.Sprint(credited)).Inc()
	metrics.PointsCredited.WithLabelValues("starting_bonus").Add(float64(s.cfg.StartingBonus))
	s.publish(model.EventPointsCredited, u.TelegramID, u.Points, u.Points, "")

	if credited {
		metrics.PointsCredited.WithLabelValues("referral").Add(float64(s.cfg.ReferralBonus))
		if referrer, err := s.repo.GetUserByTelegramID(ctx, *u.ReferrerID); err == nil {
			s.publish(model.EventPointsCredited, referrer.TelegramID, referrer.Points, s.cfg.ReferralBonus, "")
		}
	}

	logger.Logger().Info("user registered",
		zap.Int64("telegram_id", telegramID),
		zap.Bool("referrer_credited", credited))

	return u, credited, nil
}

// AddPoints applies delta to the balance. A negative delta that would take
// the balance below zero fails with ErrInsufficientBalance.
func (s *LedgerService) AddPoints(ctx context.Context, telegramID int64, delta int) (*model.User, error) {
	unlock := s.locks.lock(telegramID)
	defer unlock()

	user, err := s.repo.AddPoints(ctx, telegramID, delta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, ErrInsufficientBalance
		default:
			return nil, fmt.Errorf("failed to update user points: %w", err)
		}
	}

	if delta > 0 {
		metrics.PointsCredited.WithLabelValues("admin").Add(float64(delta))
	}
	s.publish(model.EventPointsCredited, telegramID, user.Points, delta, "")

	return user, nil
}

func (s *LedgerService) HasCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	done, err := s.repo.HasCompletedTask(ctx, telegramID, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to check task completion: %w", err)
	}
	return done, nil
}

func (s *LedgerService) Completions(ctx context.Context, telegramID int64) ([]model.TaskCompletion, error) {
	completions, err := s.repo.ListCompletions(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed tasks: %w", err)
	}
	return completions, nil
}

// MarkCompleted records a completion without crediting points. It returns
// false when the pair was already completed.
func (s *LedgerService) MarkCompleted(ctx context.Context, telegramID int64, taskID string) (bool, error) {
	unlock := s.locks.lock(telegramID)
	defer unlock()

	inserted, err := s.repo.MarkTaskCompleted(ctx, telegramID, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to mark task completed: %w", err)
	}
	return inserted, nil
}

// CompleteTask records the completion and credits the task reward as one
// unit. A repeated call fails with ErrAlreadyCompleted and credits nothing.
func (s *LedgerService) CompleteTask(ctx context.Context, telegramID int64, task model.Task) (*model.User, error) {
	unlock := s.locks.lock(telegramID)
	defer unlock()

	user, err := s.repo.CompleteTask(ctx, telegramID, task.ID, task.Points)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repository.ErrAlreadyCompleted):
			return nil, ErrAlreadyCompleted
		default:
			return nil, fmt.Errorf("failed to complete task: %w", err)
		}
	}

	metrics.TaskCompletions.WithLabelValues(string(task.Kind)).Inc()
	metrics.PointsCredited.WithLabelValues("task").Add(float64(task.Points))
	s.publish(model.EventPointsCredited, telegramID, user.Points, task.Points, "")

	return user, nil
}

// WithUserLock runs fn while holding the same per-user lock that guards
// balance and completion changes.
func (s *LedgerService) WithUserLock(telegramID int64, fn func() error) error {
	unlock := s.locks.lock(telegramID)
	defer unlock()
	return fn()
}

func (s *LedgerService) WalletRules() WalletConfig {
	return s.wallet
}

var walletBodyPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidWallet reports whether address carries the configured prefix, is
// long enough and has only letters and digits after the prefix.
func (s *LedgerService) ValidWallet(address string) bool {
	body, ok := strings.CutPrefix(address, s.wallet.Prefix)
	return ok && len(address) >= s.wallet.MinLength && walletBodyPattern.MatchString(body)
}

func (s *LedgerService) SetWallet(ctx context.Context, telegramID int64, address string) error {
	address = strings.TrimSpace(address)
	if !s.ValidWallet(address) {
		return ErrMalformedInput
	}

	unlock := s.locks.lock(telegramID)
	defer unlock()

	if err := s.repo.UpdateWalletAddress(ctx, telegramID, address); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update wallet address: %w", err)
	}
	return nil
}

// CreateWithdrawal reserves amount from the balance immediately and records
// a pending request against the current wallet.
func (s *LedgerService) CreateWithdrawal(ctx context.Context, telegramID int64, amount int) (*model.Withdrawal, *model.User, error) {
	if amount < s.cfg.MinWithdrawal {
		return nil, nil, ErrBelowMinimum
	}

	unlock := s.locks.lock(telegramID)
	defer unlock()

	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	if !user.HasWallet() {
		return nil, nil, ErrWalletNotSet
	}
	if user.Points < amount {
		return nil, nil, ErrInsufficientBalance
	}

	withdrawal, updated, err := s.repo.CreateWithdrawal(ctx, telegramID, amount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil, ErrUserNotFound
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, nil, ErrInsufficientBalance
		default:
			return nil, nil, fmt.Errorf("failed to create withdrawal: %w", err)
		}
	}

	metrics.Withdrawals.WithLabelValues(string(model.WithdrawalPending)).Inc()
	s.publish(model.EventWithdrawalRequested, telegramID, updated.Points, -amount, withdrawal.ID)

	logger.Logger().Info("withdrawal requested",
		zap.Int64("telegram_id", telegramID),
		zap.String("withdrawal_id", withdrawal.ID),
		zap.Int("amount", amount))

	return withdrawal, updated, nil
}

// CompleteWithdrawal settles a pending request. Balances are untouched since
// the amount was reserved at creation.
func (s *LedgerService) CompleteWithdrawal(ctx context.Context, withdrawalID string) (*model.Withdrawal, error) {
	withdrawal, err := s.repo.CompleteWithdrawal(ctx, withdrawalID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrWithdrawalNotFound
		case errors.Is(err, repository.ErrWithdrawalCompleted):
			return nil, ErrWithdrawalCompleted
		default:
			return nil, fmt.Errorf("failed to complete withdrawal: %w", err)
		}
	}

	metrics.Withdrawals.WithLabelValues(string(model.WithdrawalCompleted)).Inc()
	s.notifier.Publish(model.LedgerEvent{
		Type:           model.EventWithdrawalCompleted,
		UserTelegramID: withdrawal.UserTelegramID,
		WithdrawalID:   withdrawal.ID,
		At:             s.now(),
	})

	return withdrawal, nil
}

func (s *LedgerService) ListUserIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

func (s *LedgerService) GetLeaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	users, err := s.repo.GetTopUsers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return users, nil
}

func (s *LedgerService) PendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error) {
	withdrawals, err := s.repo.ListPendingWithdrawals(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return withdrawals, nil
}

// UserWithdrawal returns one of the user's own withdrawals. A request that
// belongs to someone else fails with ErrUnauthorized.
func (s *LedgerService) UserWithdrawal(ctx context.Context, telegramID int64, withdrawalID string) (*model.Withdrawal, error) {
	withdrawal, err := s.repo.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	if withdrawal.UserTelegramID != telegramID {
		return nil, ErrUnauthorized
	}
	return withdrawal, nil
}

func (s *LedgerService) UserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error) {
	withdrawals, err := s.repo.ListUserWithdrawals(ctx, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (s *LedgerService) publish(eventType model.LedgerEventType, telegramID int64, points, delta int, withdrawalID string) {
	s.notifier.Publish(model.LedgerEvent{
		Type:           eventType,
		UserTelegramID: telegramID,
		Points:         points,
		Delta:          delta,
		WithdrawalID:   withdrawalID,
		At:             s.now(),
	})
}
