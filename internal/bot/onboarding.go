package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"bingo_bot/internal/metrics"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/pkg/logger"

	"go.uber.org/zap"
)

// handleStart shows the menu to registered users and opens the captcha for
// everyone else. The referrer from "/start <id>" is held in the captcha
// session until it is solved.
func (b *Bot) handleStart(ctx context.Context, ev Event, args string) {
	log := logger.Logger()

	_, err := b.ledger.GetUser(ctx, ev.UserID)
	switch {
	case err == nil:
		b.send(ctx, ev.ChatID, msgMainMenu, mainMenuKeyboard())
		return
	case !errors.Is(err, service.ErrUserNotFound):
		log.Error("failed to look up user", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	var referrerID *int64
	payload, _, _ := strings.Cut(args, " ")
	if id, ok := parseUserID(payload); ok && id != ev.UserID {
		referrerID = &id
	}

	x, y := b.operands()
	state := session.Captcha(strconv.Itoa(x+y), referrerID)
	if err := b.sessions.Set(ctx, ev.UserID, state); err != nil {
		log.Error("failed to store captcha", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, captchaText(x, y), nil)
}

func (b *Bot) handleCaptchaAnswer(ctx context.Context, ev Event, state session.State) {
	log := logger.Logger()

	if strings.TrimSpace(ev.Text) != state.ExpectedAnswer {
		state.Attempts++
		if state.Attempts >= session.MaxCaptchaAttempts {
			metrics.CaptchaAttempts.WithLabelValues("exhausted").Inc()
			if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
				log.Error("failed to clear captcha", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
			}
			b.send(ctx, ev.ChatID, msgTooManyAttempts, nil)
			return
		}

		metrics.CaptchaAttempts.WithLabelValues("wrong").Inc()
		if err := b.sessions.Set(ctx, ev.UserID, state); err != nil {
			log.Error("failed to store captcha attempt", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		}
		b.send(ctx, ev.ChatID, wrongAnswerText(state.AttemptsLeft()), nil)
		return
	}

	metrics.CaptchaAttempts.WithLabelValues("solved").Inc()
	if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
		log.Error("failed to clear captcha", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}

	user, credited, err := b.ledger.Register(ctx, ev.UserID, ev.Username, state.ReferrerID)
	switch {
	case errors.Is(err, service.ErrUserExists):
		b.send(ctx, ev.ChatID, msgMainMenu, mainMenuKeyboard())
		return
	case err != nil:
		log.Error("failed to register user", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, welcomeText(user.Points), mainMenuKeyboard())

	if credited && user.ReferrerID != nil {
		bonus := b.ledger.Config().ReferralBonus
		b.send(ctx, *user.ReferrerID, referralCreditText(bonus, user.Username), nil)
	}
}
