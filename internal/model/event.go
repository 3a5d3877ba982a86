package model

import "time"

type LedgerEventType string

const (
	EventPointsCredited      LedgerEventType = "POINTS_CREDITED"
	EventWithdrawalRequested LedgerEventType = "WITHDRAWAL_REQUESTED"
	EventWithdrawalCompleted LedgerEventType = "WITHDRAWAL_COMPLETED"
)

// LedgerEvent is published after a committed balance or withdrawal change.
type LedgerEvent struct {
	Type           LedgerEventType `json:"type"`
	UserTelegramID int64           `json:"user_telegram_id"`
	Points         int             `json:"points"`
	Delta          int             `json:"delta,omitempty"`
	WithdrawalID   string          `json:"withdrawal_id,omitempty"`
	At             time.Time       `json:"at"`
}
