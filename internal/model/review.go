package model

import "time"

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ManualReview is a submitted social handle awaiting an admin decision.
type ManualReview struct {
	ID             string       `json:"id"`
	UserTelegramID int64        `json:"user_telegram_id"`
	TaskID         string       `json:"task_id"`
	Handle         string       `json:"handle"`
	Status         ReviewStatus `json:"status"`
	SubmittedAt    time.Time    `json:"submitted_at"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
}
