package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"bingo_bot/internal/middleware"
	"bingo_bot/internal/model"
	"bingo_bot/internal/notify"
	"bingo_bot/internal/service"
	"bingo_bot/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminID = int64(9000)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockLedger) UserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error) {
	args := m.Called(ctx, telegramID, limit)
	withdrawals, _ := args.Get(0).([]*model.Withdrawal)
	return withdrawals, args.Error(1)
}

func (m *mockLedger) UserWithdrawal(ctx context.Context, telegramID int64, withdrawalID string) (*model.Withdrawal, error) {
	args := m.Called(ctx, telegramID, withdrawalID)
	withdrawal, _ := args.Get(0).(*model.Withdrawal)
	return withdrawal, args.Error(1)
}

func (m *mockLedger) GetLeaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	args := m.Called(ctx, limit)
	users, _ := args.Get(0).([]*model.User)
	return users, args.Error(1)
}

func (m *mockLedger) PendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error) {
	args := m.Called(ctx, limit)
	withdrawals, _ := args.Get(0).([]*model.Withdrawal)
	return withdrawals, args.Error(1)
}

type mockTasks struct {
	mock.Mock
}

func (m *mockTasks) TasksForUser(ctx context.Context, telegramID int64) ([]service.TaskView, error) {
	args := m.Called(ctx, telegramID)
	views, _ := args.Get(0).([]service.TaskView)
	return views, args.Error(1)
}

func (m *mockTasks) PendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error) {
	args := m.Called(ctx, limit)
	reviews, _ := args.Get(0).([]*model.ManualReview)
	return reviews, args.Error(1)
}

func initData(id int64) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":`+strconv.FormatInt(id, 10)+`,"username":"alice"}`)
	return values.Encode()
}

func newTestRouter(ledger *mockLedger, tasks *mockTasks, hub Subscriber) *gin.Engine {
	gin.SetMode(gin.TestMode)

	a := auth.NewTelegramAuth("123:token", true)
	router := gin.New()
	NewHealthRoutes(router)

	v1 := router.Group("/api/v1")
	NewUserRoutes(v1, ledger, tasks, a)
	NewAdminRoutes(v1, ledger, tasks, a, middleware.NewAuthorization(adminID))
	if hub != nil {
		NewEventRoutes(v1, hub, a)
	}
	return router
}

func doRequest(router *gin.Engine, path string, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != 0 {
		req.Header.Set("Authorization", "Telegram "+initData(userID))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(new(mockLedger), new(mockTasks), nil)

	for _, path := range []string{"/", "/healthz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := doRequest(router, path, 0)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestGetMe(t *testing.T) {
	registered := time.UnixMilli(1700000000000)

	tests := []struct {
		name           string
		userID         int64
		mockSetup      func(m *mockLedger)
		expectedStatus int
		expectedBody   map[string]any
	}{
		{
			name:   "registered user",
			userID: 1,
			mockSetup: func(m *mockLedger) {
				m.On("GetUser", mock.Anything, int64(1)).Return(&model.User{
					TelegramID:    1,
					Username:      "alice",
					Points:        1200,
					Referrals:     2,
					WalletAddress: "0xabcdef0123456789abcdef",
					RegisteredAt:  registered,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]any{
				"telegram_id":   float64(1),
				"username":      "alice",
				"points":        float64(1200),
				"level":         float64(3),
				"referrals":     float64(2),
				"wallet":        "0xabcdef...cdef",
				"registered_at": float64(1700000000),
			},
		},
		{
			name:   "not registered",
			userID: 2,
			mockSetup: func(m *mockLedger) {
				m.On("GetUser", mock.Anything, int64(2)).Return(nil, service.ErrUserNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:   "storage failure",
			userID: 3,
			mockSetup: func(m *mockLedger) {
				m.On("GetUser", mock.Anything, int64(3)).Return(nil, errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "unauthenticated",
			mockSetup:      func(m *mockLedger) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(mockLedger)
			tt.mockSetup(ledger)
			router := newTestRouter(ledger, new(mockTasks), nil)

			w := doRequest(router, "/api/v1/me", tt.userID)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedBody, body)
			}
			ledger.AssertExpectations(t)
		})
	}
}

func TestGetMyTasks(t *testing.T) {
	completedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tasks := new(mockTasks)
	tasks.On("TasksForUser", mock.Anything, int64(1)).Return([]service.TaskView{
		{Task: model.Task{ID: "tg_join", Title: "Join", Points: 50, Kind: model.VerificationChannel}, Status: service.TaskCompleted, CompletedAt: &completedAt},
		{Task: model.Task{ID: "x_follow", Title: "Follow", Points: 200, Kind: model.VerificationManual}, Status: service.TaskUnderReview},
	}, nil)
	router := newTestRouter(new(mockLedger), tasks, nil)

	w := doRequest(router, "/api/v1/me/tasks", 1)

	require.Equal(t, http.StatusOK, w.Code)
	var body []service.TaskView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	require.NotNil(t, body[0].CompletedAt)
	assert.True(t, completedAt.Equal(*body[0].CompletedAt))
	assert.Equal(t, service.TaskUnderReview, body[1].Status)
	assert.Nil(t, body[1].CompletedAt)
}

func TestGetMyWithdrawals(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		mockSetup      func(m *mockLedger)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "empty history",
			path: "/api/v1/me/withdrawals",
			mockSetup: func(m *mockLedger) {
				m.On("UserWithdrawals", mock.Anything, int64(1), maxListLimit).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "[]",
		},
		{
			name: "custom limit",
			path: "/api/v1/me/withdrawals?limit=5",
			mockSetup: func(m *mockLedger) {
				m.On("UserWithdrawals", mock.Anything, int64(1), 5).Return([]*model.Withdrawal{
					{ID: "w1", UserTelegramID: 1, Amount: 5000, Status: model.WithdrawalPending},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid limit",
			path:           "/api/v1/me/withdrawals?limit=-1",
			mockSetup:      func(m *mockLedger) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "own withdrawal",
			path: "/api/v1/me/withdrawals/w1",
			mockSetup: func(m *mockLedger) {
				m.On("UserWithdrawal", mock.Anything, int64(1), "w1").
					Return(&model.Withdrawal{ID: "w1", UserTelegramID: 1, Amount: 5000, Status: model.WithdrawalPending}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "someone else's withdrawal",
			path: "/api/v1/me/withdrawals/w2",
			mockSetup: func(m *mockLedger) {
				m.On("UserWithdrawal", mock.Anything, int64(1), "w2").Return(nil, service.ErrUnauthorized)
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"forbidden"}`,
		},
		{
			name: "unknown withdrawal",
			path: "/api/v1/me/withdrawals/nope",
			mockSetup: func(m *mockLedger) {
				m.On("UserWithdrawal", mock.Anything, int64(1), "nope").Return(nil, service.ErrWithdrawalNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"withdrawal not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(mockLedger)
			tt.mockSetup(ledger)
			router := newTestRouter(ledger, new(mockTasks), nil)

			w := doRequest(router, tt.path, 1)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			ledger.AssertExpectations(t)
		})
	}
}

func TestGetLeaderboard(t *testing.T) {
	ledger := new(mockLedger)
	ledger.On("GetLeaderboard", mock.Anything, maxListLimit).Return([]*model.User{
		{TelegramID: 2, Username: "bob", Points: 900},
		{TelegramID: 1, Username: "alice", Points: 100, Referrals: 1},
	}, nil)
	router := newTestRouter(ledger, new(mockTasks), nil)

	w := doRequest(router, "/api/v1/leaderboard?limit=1000", 1)

	require.Equal(t, http.StatusOK, w.Code)
	var body []leaderboardEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, leaderboardEntry{Rank: 1, Username: "bob", Points: 900, Level: 2}, body[0])
	assert.Equal(t, 2, body[1].Rank)
}

func TestGetPending(t *testing.T) {
	t.Run("admin sees both queues", func(t *testing.T) {
		ledger := new(mockLedger)
		tasks := new(mockTasks)
		ledger.On("PendingWithdrawals", mock.Anything, maxListLimit).Return([]*model.Withdrawal{{ID: "w1"}}, nil)
		tasks.On("PendingReviews", mock.Anything, maxListLimit).Return(nil, nil)
		router := newTestRouter(ledger, tasks, nil)

		w := doRequest(router, "/api/v1/admin/pending", adminID)

		require.Equal(t, http.StatusOK, w.Code)
		var body pendingResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Empty(t, body.Reviews)
		require.Len(t, body.Withdrawals, 1)
		assert.Equal(t, "w1", body.Withdrawals[0].ID)
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		router := newTestRouter(new(mockLedger), new(mockTasks), nil)

		w := doRequest(router, "/api/v1/admin/pending", 1)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestEventStream(t *testing.T) {
	hub := notify.NewHub()
	server := httptest.NewServer(newTestRouter(new(mockLedger), new(mockTasks), hub))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?auth=" + url.QueryEscape(initData(7))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(7) == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(model.LedgerEvent{Type: model.EventPointsCredited, UserTelegramID: 8, Points: 1})
	hub.Publish(model.LedgerEvent{Type: model.EventPointsCredited, UserTelegramID: 7, Points: 150, Delta: 50})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event model.LedgerEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, model.EventPointsCredited, event.Type)
	assert.Equal(t, int64(7), event.UserTelegramID)
	assert.Equal(t, 150, event.Points)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers(7) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStream_RequiresAuth(t *testing.T) {
	router := newTestRouter(new(mockLedger), new(mockTasks), notify.NewHub())

	w := doRequest(router, "/api/v1/ws", 0)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
