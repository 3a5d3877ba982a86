package api

import (
	"net/http"
	"time"

	"bingo_bot/internal/model"
	"bingo_bot/pkg/auth"
	"bingo_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Subscriber interface {
	Subscribe(userID int64) (<-chan model.LedgerEvent, func())
}

type wsRoutes struct {
	hub Subscriber
}

// NewEventRoutes streams the caller's ledger events over a websocket.
// Browsers cannot set headers on the upgrade request, so the init data may
// also arrive as ?auth=<initData>.
func NewEventRoutes(handler *gin.RouterGroup, hub Subscriber, a *auth.TelegramAuth) {
	r := &wsRoutes{hub: hub}

	h := handler.Group("")
	h.Use(authFromQuery(), a.TelegramAuthMiddleware())
	h.GET("/ws", r.handleWebSocket)
}

func authFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if initData := c.Query("auth"); initData != "" {
				c.Request.Header.Set("Authorization", "Telegram "+initData)
			}
		}
		c.Next()
	}
}

func (r *wsRoutes) handleWebSocket(c *gin.Context) {
	log := logger.Logger()

	user, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	events, cancel := r.hub.Subscribe(user.ID)
	done := make(chan struct{})

	go readLoop(conn, done)
	go writeLoop(conn, user.ID, events, cancel, done)
}

// readLoop discards client frames and reports when the peer goes away.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Logger().Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, userID int64, events <-chan model.LedgerEvent, cancel func(), done <-chan struct{}) {
	log := logger.Logger()
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}

			out, err := json.Marshal(event)
			if err != nil {
				log.Error("failed to marshal ledger event", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				log.Info("failed to write ledger event", zap.Int64("telegram_id", userID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
