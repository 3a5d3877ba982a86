package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"bingo_bot/internal/model"
	"bingo_bot/internal/service"
	"bingo_bot/pkg/auth"
	"bingo_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 10
	maxListLimit            = 100
)

type LedgerReader interface {
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	UserWithdrawals(ctx context.Context, telegramID int64, limit int) ([]*model.Withdrawal, error)
	UserWithdrawal(ctx context.Context, telegramID int64, withdrawalID string) (*model.Withdrawal, error)
	GetLeaderboard(ctx context.Context, limit int) ([]*model.User, error)
	PendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error)
}

type TaskReader interface {
	TasksForUser(ctx context.Context, telegramID int64) ([]service.TaskView, error)
	PendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error)
}

type userRoutes struct {
	ledger LedgerReader
	tasks  TaskReader
}

func NewUserRoutes(handler *gin.RouterGroup, ledger LedgerReader, tasks TaskReader, a *auth.TelegramAuth) {
	r := &userRoutes{ledger: ledger, tasks: tasks}

	h := handler.Group("")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("/me", r.GetMe)
		h.GET("/me/tasks", r.GetMyTasks)
		h.GET("/me/withdrawals", r.GetMyWithdrawals)
		h.GET("/me/withdrawals/:id", r.GetMyWithdrawal)
		h.GET("/leaderboard", r.GetLeaderboard)
	}
}

type userResponse struct {
	TelegramID   int64  `json:"telegram_id"`
	Username     string `json:"username"`
	Points       int    `json:"points"`
	Level        int    `json:"level"`
	Referrals    int    `json:"referrals"`
	ReferrerID   *int64 `json:"referrer_id,omitempty"`
	Wallet       string `json:"wallet,omitempty"`
	RegisteredAt int64  `json:"registered_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		TelegramID:   u.TelegramID,
		Username:     u.Username,
		Points:       u.Points,
		Level:        u.Level(),
		Referrals:    u.Referrals,
		ReferrerID:   u.ReferrerID,
		Wallet:       u.MaskedWallet(),
		RegisteredAt: u.RegisteredAt.Unix(),
	}
}

func (r *userRoutes) GetMe(c *gin.Context) {
	log := logger.Logger()

	telegramUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	user, err := r.ledger.GetUser(c.Request.Context(), telegramUser.ID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "start the bot to register first"})
			return
		}
		log.Error("failed to get user", zap.Int64("telegram_id", telegramUser.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (r *userRoutes) GetMyTasks(c *gin.Context) {
	log := logger.Logger()

	telegramUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	views, err := r.tasks.TasksForUser(c.Request.Context(), telegramUser.ID)
	if err != nil {
		log.Error("failed to list tasks", zap.Int64("telegram_id", telegramUser.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}

	c.JSON(http.StatusOK, views)
}

func (r *userRoutes) GetMyWithdrawals(c *gin.Context) {
	log := logger.Logger()

	telegramUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	limit, ok := parseLimit(c, maxListLimit)
	if !ok {
		return
	}

	withdrawals, err := r.ledger.UserWithdrawals(c.Request.Context(), telegramUser.ID, limit)
	if err != nil {
		log.Error("failed to list withdrawals", zap.Int64("telegram_id", telegramUser.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list withdrawals"})
		return
	}

	if withdrawals == nil {
		withdrawals = []*model.Withdrawal{}
	}
	c.JSON(http.StatusOK, withdrawals)
}

func (r *userRoutes) GetMyWithdrawal(c *gin.Context) {
	log := logger.Logger()

	telegramUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	withdrawal, err := r.ledger.UserWithdrawal(c.Request.Context(), telegramUser.ID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWithdrawalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		case errors.Is(err, service.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			log.Error("failed to get withdrawal",
				zap.Int64("telegram_id", telegramUser.ID),
				zap.String("withdrawal_id", c.Param("id")),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get withdrawal"})
		}
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

type leaderboardEntry struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username"`
	Points    int    `json:"points"`
	Level     int    `json:"level"`
	Referrals int    `json:"referrals"`
}

func (r *userRoutes) GetLeaderboard(c *gin.Context) {
	log := logger.Logger()

	limit, ok := parseLimit(c, defaultLeaderboardLimit)
	if !ok {
		return
	}

	users, err := r.ledger.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		log.Error("failed to get leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leaderboard"})
		return
	}

	out := make([]leaderboardEntry, len(users))
	for i, user := range users {
		out[i] = leaderboardEntry{
			Rank:      i + 1,
			Username:  user.Username,
			Points:    user.Points,
			Level:     user.Level(),
			Referrals: user.Referrals,
		}
	}

	c.JSON(http.StatusOK, out)
}

// parseLimit reads ?limit=, falling back to def and capping at maxListLimit.
// It writes the 400 itself when the value is not a positive integer.
func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
