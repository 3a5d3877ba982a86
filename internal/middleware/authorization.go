package middleware

import (
	"net/http"

	"bingo_bot/pkg/auth"
	"bingo_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authorization guards the admin endpoints. BinGo has a single admin,
// identified by Telegram id.
type Authorization struct {
	adminID int64
}

func NewAuthorization(adminID int64) *Authorization {
	return &Authorization{
		adminID: adminID,
	}
}

// AdminOnly must run after the Telegram auth middleware.
func (a *Authorization) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		telegramUser, ok := auth.UserFromContext(c)
		if !ok {
			log.Error("telegram user data not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if a.adminID == 0 || telegramUser.ID != a.adminID {
			log.Info("unauthorized access attempt to admin endpoint",
				zap.Int64("telegram_id", telegramUser.ID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Set("is_admin", true)
		c.Next()
	}
}
