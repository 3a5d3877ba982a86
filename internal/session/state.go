// Package session tracks which conversational step a user is in. A user is
// in at most one step at a time; Kind selects which fields are meaningful.
package session

import (
	"context"
	"time"
)

type Kind string

const (
	KindNone         Kind = ""
	KindCaptcha      Kind = "captcha"
	KindWallet       Kind = "wallet"
	KindManualReview Kind = "manual_review"
)

const MaxCaptchaAttempts = 3

type State struct {
	Kind Kind `json:"kind"`

	// captcha
	ExpectedAnswer string `json:"expected_answer,omitempty"`
	Attempts       int    `json:"attempts,omitempty"`
	ReferrerID     *int64 `json:"referrer_id,omitempty"`

	// manual_review
	TaskID string `json:"task_id,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

func (s State) Active() bool {
	return s.Kind != KindNone
}

// AttemptsLeft is only meaningful for captcha states.
func (s State) AttemptsLeft() int {
	return MaxCaptchaAttempts - s.Attempts
}

func Captcha(expected string, referrerID *int64) State {
	return State{Kind: KindCaptcha, ExpectedAnswer: expected, ReferrerID: referrerID, StartedAt: time.Now()}
}

func Wallet() State {
	return State{Kind: KindWallet, StartedAt: time.Now()}
}

func ManualReview(taskID string) State {
	return State{Kind: KindManualReview, TaskID: taskID, StartedAt: time.Now()}
}

// Store keeps one State per user. Get returns the zero State when the user
// has none or it expired.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
}

type Config struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}
