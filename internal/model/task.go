package model

type VerificationKind string

const (
	// VerificationChannel tasks are verified by asking Telegram whether the
	// user is a member of the referenced channel.
	VerificationChannel VerificationKind = "channel"
	// VerificationManual tasks are verified by the admin.
	VerificationManual VerificationKind = "social"
)

type Task struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Points     int              `json:"points"`
	Kind       VerificationKind `json:"type"`
	ChannelRef string           `json:"username,omitempty"`
	Link       string           `json:"link,omitempty"`
}

type TaskCatalog struct {
	Tasks []Task `json:"tasks"`
}
