package api

import (
	"net/http"

	"bingo_bot/internal/middleware"
	"bingo_bot/internal/model"
	"bingo_bot/pkg/auth"
	"bingo_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type adminRoutes struct {
	ledger LedgerReader
	tasks  TaskReader
}

func NewAdminRoutes(handler *gin.RouterGroup, ledger LedgerReader, tasks TaskReader, a *auth.TelegramAuth, authz *middleware.Authorization) {
	r := &adminRoutes{ledger: ledger, tasks: tasks}

	h := handler.Group("/admin")
	h.Use(a.TelegramAuthMiddleware(), authz.AdminOnly())
	{
		h.GET("/pending", r.GetPending)
	}
}

type pendingResponse struct {
	Reviews     []*model.ManualReview `json:"reviews"`
	Withdrawals []*model.Withdrawal   `json:"withdrawals"`
}

func (r *adminRoutes) GetPending(c *gin.Context) {
	log := logger.Logger()

	limit, ok := parseLimit(c, maxListLimit)
	if !ok {
		return
	}

	reviews, err := r.tasks.PendingReviews(c.Request.Context(), limit)
	if err != nil {
		log.Error("failed to list pending reviews", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending reviews"})
		return
	}

	withdrawals, err := r.ledger.PendingWithdrawals(c.Request.Context(), limit)
	if err != nil {
		log.Error("failed to list pending withdrawals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending withdrawals"})
		return
	}

	out := pendingResponse{Reviews: reviews, Withdrawals: withdrawals}
	if out.Reviews == nil {
		out.Reviews = []*model.ManualReview{}
	}
	if out.Withdrawals == nil {
		out.Withdrawals = []*model.Withdrawal{}
	}

	c.JSON(http.StatusOK, out)
}
