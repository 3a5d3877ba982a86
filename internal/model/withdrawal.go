package model

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

type Withdrawal struct {
	ID             string           `json:"id"`
	UserTelegramID int64            `json:"user_telegram_id"`
	Username       string           `json:"username"`
	WalletAddress  string           `json:"wallet_address"`
	Amount         int              `json:"amount"`
	Status         WithdrawalStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}
