package model

import "time"

type User struct {
	TelegramID    int64
	Username      string
	Points        int
	WalletAddress string
	ReferrerID    *int64
	Referrals     int
	RegisteredAt  time.Time
}

// Level is one step per 500 points, starting at 1.
func (u *User) Level() int {
	return u.Points/500 + 1
}

func (u *User) HasWallet() bool {
	return u.WalletAddress != ""
}

// MaskedWallet shortens the address for display, e.g. 0x12ab34...9f0e.
func (u *User) MaskedWallet() string {
	if len(u.WalletAddress) <= 12 {
		return u.WalletAddress
	}
	return u.WalletAddress[:8] + "..." + u.WalletAddress[len(u.WalletAddress)-4:]
}

type TaskCompletion struct {
	UserTelegramID int64
	TaskID         string
	CompletedAt    time.Time
}
