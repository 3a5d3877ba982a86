package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bingo_bot/internal/model"
	"bingo_bot/internal/repository"
	"bingo_bot/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLedgerConfig = LedgerConfig{
	StartingBonus:     100,
	ReferralBonus:     25,
	MinWithdrawal:     5000,
	WithdrawalOptions: []int{5000, 10000, 20000},
}

var testWalletConfig = WalletConfig{Prefix: "0x", MinLength: 20}

const testWallet = "0x1234567890abcdef1234"

func TestLedgerService_Register(t *testing.T) {
	referrer := int64(200)

	tests := []struct {
		name             string
		telegramID       int64
		referrerID       *int64
		mockSetup        func(*mocks.MockLedgerRepository)
		expectedCredited bool
		expectedError    error
	}{
		{
			name:       "New user without referrer",
			telegramID: 100,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
					return u.TelegramID == 100 && u.Points == 100 && u.ReferrerID == nil
				}), 25).Return(false, nil)
			},
		},
		{
			name:       "New user with referrer",
			telegramID: 101,
			referrerID: &referrer,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
					return u.TelegramID == 101 && u.ReferrerID != nil && *u.ReferrerID == referrer
				}), 25).Return(true, nil)
				repo.On("GetUserByTelegramID", mock.Anything, referrer).
					Return(&model.User{TelegramID: referrer, Points: 125}, nil)
			},
			expectedCredited: true,
		},
		{
			name:       "Already registered",
			telegramID: 102,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CreateUser", mock.Anything, mock.Anything, 25).
					Return(false, repository.ErrAlreadyExists)
			},
			expectedError: ErrUserExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			user, credited, err := service.Register(context.Background(), tt.telegramID, "", tt.referrerID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedCredited, credited)
			assert.Equal(t, 100, user.Points)
			assert.Equal(t, "Anonymous", user.Username)
			repo.AssertExpectations(t)
		})
	}
}

func TestLedgerService_AddPoints(t *testing.T) {
	tests := []struct {
		name          string
		delta         int
		mockSetup     func(*mocks.MockLedgerRepository)
		expectedPts   int
		expectedError error
	}{
		{
			name:  "Credit",
			delta: 50,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("AddPoints", mock.Anything, int64(1), 50).
					Return(&model.User{TelegramID: 1, Points: 150}, nil)
			},
			expectedPts: 150,
		},
		{
			name:  "Unknown user",
			delta: 50,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("AddPoints", mock.Anything, int64(1), 50).
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrUserNotFound,
		},
		{
			name:  "Would go negative",
			delta: -500,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("AddPoints", mock.Anything, int64(1), -500).
					Return(nil, repository.ErrInsufficientBalance)
			},
			expectedError: ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			user, err := service.AddPoints(context.Background(), 1, tt.delta)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedPts, user.Points)
		})
	}
}

func TestLedgerService_CreateWithdrawal(t *testing.T) {
	tests := []struct {
		name          string
		amount        int
		mockSetup     func(*mocks.MockLedgerRepository)
		expectedError error
		expectedPts   int
	}{
		{
			name:          "Below minimum",
			amount:        4000,
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrBelowMinimum,
		},
		{
			name:   "Unknown user",
			amount: 5000,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetUserByTelegramID", mock.Anything, int64(7)).
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrUserNotFound,
		},
		{
			name:   "Wallet not set",
			amount: 5000,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetUserByTelegramID", mock.Anything, int64(7)).
					Return(&model.User{TelegramID: 7, Points: 6000}, nil)
			},
			expectedError: ErrWalletNotSet,
		},
		{
			name:   "Balance 4000 requests 5000",
			amount: 5000,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetUserByTelegramID", mock.Anything, int64(7)).
					Return(&model.User{TelegramID: 7, Points: 4000, WalletAddress: testWallet}, nil)
			},
			expectedError: ErrInsufficientBalance,
		},
		{
			name:   "Balance 6000 requests 5000",
			amount: 5000,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetUserByTelegramID", mock.Anything, int64(7)).
					Return(&model.User{TelegramID: 7, Points: 6000, WalletAddress: testWallet}, nil)
				repo.On("CreateWithdrawal", mock.Anything, int64(7), 5000).
					Return(&model.Withdrawal{
						ID:             "w-1",
						UserTelegramID: 7,
						Amount:         5000,
						Status:         model.WithdrawalPending,
					}, &model.User{TelegramID: 7, Points: 1000, WalletAddress: testWallet}, nil)
			},
			expectedPts: 1000,
		},
		{
			name:   "Balance changed before deduction",
			amount: 5000,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetUserByTelegramID", mock.Anything, int64(7)).
					Return(&model.User{TelegramID: 7, Points: 6000, WalletAddress: testWallet}, nil)
				repo.On("CreateWithdrawal", mock.Anything, int64(7), 5000).
					Return(nil, nil, repository.ErrInsufficientBalance)
			},
			expectedError: ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			withdrawal, user, err := service.CreateWithdrawal(context.Background(), 7, tt.amount)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, withdrawal)
				repo.AssertExpectations(t)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 5000, withdrawal.Amount)
			assert.Equal(t, model.WithdrawalPending, withdrawal.Status)
			assert.Equal(t, tt.expectedPts, user.Points)
		})
	}
}

func TestLedgerService_CompleteWithdrawal(t *testing.T) {
	tests := []struct {
		name          string
		mockSetup     func(*mocks.MockLedgerRepository)
		expectedError error
	}{
		{
			name: "Pending request",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CompleteWithdrawal", mock.Anything, "w-1").
					Return(&model.Withdrawal{ID: "w-1", Status: model.WithdrawalCompleted}, nil)
			},
		},
		{
			name: "Unknown id",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CompleteWithdrawal", mock.Anything, "w-1").
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrWithdrawalNotFound,
		},
		{
			name: "Already completed",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("CompleteWithdrawal", mock.Anything, "w-1").
					Return(nil, repository.ErrWithdrawalCompleted)
			},
			expectedError: ErrWithdrawalCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			w, err := service.CompleteWithdrawal(context.Background(), "w-1")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.WithdrawalCompleted, w.Status)
			repo.AssertNotCalled(t, "AddPoints", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestLedgerService_UserWithdrawal(t *testing.T) {
	tests := []struct {
		name          string
		withdrawalID  string
		mockSetup     func(*mocks.MockLedgerRepository)
		expectedError error
	}{
		{
			name:         "Own request",
			withdrawalID: "w-1",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetWithdrawal", mock.Anything, "w-1").
					Return(&model.Withdrawal{ID: "w-1", UserTelegramID: 7, Amount: 5000}, nil)
			},
		},
		{
			name:         "Another user's request",
			withdrawalID: "w-2",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetWithdrawal", mock.Anything, "w-2").
					Return(&model.Withdrawal{ID: "w-2", UserTelegramID: 8, Amount: 5000}, nil)
			},
			expectedError: ErrUnauthorized,
		},
		{
			name:         "Unknown id",
			withdrawalID: "nope",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("GetWithdrawal", mock.Anything, "nope").Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrWithdrawalNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			w, err := service.UserWithdrawal(context.Background(), 7, tt.withdrawalID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, w)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.withdrawalID, w.ID)
		})
	}
}

func TestLedgerService_CompleteTask(t *testing.T) {
	task := model.Task{ID: "tg", Points: 200, Kind: model.VerificationChannel}

	t.Run("Credits once and publishes", func(t *testing.T) {
		repo := &mocks.MockLedgerRepository{}
		notifier := &mocks.MockNotifier{}
		repo.On("CompleteTask", mock.Anything, int64(5), "tg", 200).
			Return(&model.User{TelegramID: 5, Points: 300}, nil).Once()
		repo.On("CompleteTask", mock.Anything, int64(5), "tg", 200).
			Return(nil, repository.ErrAlreadyCompleted).Once()
		notifier.On("Publish", mock.MatchedBy(func(e model.LedgerEvent) bool {
			return e.Type == model.EventPointsCredited && e.Delta == 200 && e.Points == 300
		})).Once()

		service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, notifier)

		user, err := service.CompleteTask(context.Background(), 5, task)
		require.NoError(t, err)
		assert.Equal(t, 300, user.Points)

		_, err = service.CompleteTask(context.Background(), 5, task)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)

		notifier.AssertExpectations(t)
	})

	t.Run("Unknown user", func(t *testing.T) {
		repo := &mocks.MockLedgerRepository{}
		repo.On("CompleteTask", mock.Anything, int64(6), "tg", 200).
			Return(nil, repository.ErrNotFound)
		service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

		_, err := service.CompleteTask(context.Background(), 6, task)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestLedgerService_MarkCompleted(t *testing.T) {
	repo := &mocks.MockLedgerRepository{}
	repo.On("MarkTaskCompleted", mock.Anything, int64(7), "tg").Return(true, nil).Once()
	repo.On("MarkTaskCompleted", mock.Anything, int64(7), "tg").Return(false, nil).Once()
	repo.On("MarkTaskCompleted", mock.Anything, int64(8), "tg").Return(false, errors.New("db down"))

	service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

	inserted, err := service.MarkCompleted(context.Background(), 7, "tg")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = service.MarkCompleted(context.Background(), 7, "tg")
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = service.MarkCompleted(context.Background(), 8, "tg")
	assert.Error(t, err)

	repo.AssertNotCalled(t, "AddPoints", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestLedgerService_SetWallet(t *testing.T) {
	tests := []struct {
		name          string
		address       string
		mockSetup     func(*mocks.MockLedgerRepository)
		expectedError error
	}{
		{
			name:          "Missing prefix",
			address:       "1x1234567890abcdef1234",
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrMalformedInput,
		},
		{
			name:          "Too short",
			address:       "0x1234",
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrMalformedInput,
		},
		{
			name:          "Backtick in address",
			address:       "0x`aaaaaaaaaaaaaaaaaaaaaa",
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrMalformedInput,
		},
		{
			name:          "Markdown characters in address",
			address:       "0x_aaaaaaaaa*aaaaaaaaaaa[",
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrMalformedInput,
		},
		{
			name:          "Inner whitespace",
			address:       "0x1234567890 abcdef1234",
			mockSetup:     func(repo *mocks.MockLedgerRepository) {},
			expectedError: ErrMalformedInput,
		},
		{
			name:    "Valid address is trimmed",
			address: "  " + testWallet + "\n",
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("UpdateWalletAddress", mock.Anything, int64(3), testWallet).Return(nil)
			},
		},
		{
			name:    "Unknown user",
			address: testWallet,
			mockSetup: func(repo *mocks.MockLedgerRepository) {
				repo.On("UpdateWalletAddress", mock.Anything, int64(3), testWallet).Return(repository.ErrNotFound)
			},
			expectedError: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.MockLedgerRepository{}
			tt.mockSetup(repo)
			service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

			err := service.SetWallet(context.Background(), 3, tt.address)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				if errors.Is(tt.expectedError, ErrMalformedInput) {
					repo.AssertNotCalled(t, "UpdateWalletAddress", mock.Anything, mock.Anything, mock.Anything)
				}
				return
			}
			assert.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestLedgerService_WithUserLock(t *testing.T) {
	service := NewLedgerService(&mocks.MockLedgerRepository{}, testLedgerConfig, testWalletConfig, nil)

	inner := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = service.WithUserLock(1, func() error {
			close(inner)
			<-release
			return nil
		})
	}()
	<-inner

	acquired := make(chan struct{})
	go func() {
		unlock := service.locks.lock(1)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while WithUserLock was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released after WithUserLock returned")
	}

	wantErr := errors.New("boom")
	assert.ErrorIs(t, service.WithUserLock(2, func() error { return wantErr }), wantErr)
}

func TestLedgerService_GetUserWrapsStorageErrors(t *testing.T) {
	repo := &mocks.MockLedgerRepository{}
	repo.On("GetUserByTelegramID", mock.Anything, int64(9)).Return(nil, errors.New("disk on fire"))
	service := NewLedgerService(repo, testLedgerConfig, testWalletConfig, nil)

	_, err := service.GetUser(context.Background(), 9)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestUserLocks_SerializesPerUser(t *testing.T) {
	locks := newUserLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(42)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locks.locks)
}
