package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bingo_bot/internal/model"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/pkg/logger"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// registeredUser loads the user behind ev, replying on failure.
func (b *Bot) registeredUser(ctx context.Context, ev Event) (*model.User, bool) {
	user, err := b.ledger.GetUser(ctx, ev.UserID)
	if err == nil {
		return user, true
	}

	if errors.Is(err, service.ErrUserNotFound) {
		if ev.IsCallback() {
			b.answer(ctx, ev, msgStartFirst)
		} else {
			b.send(ctx, ev.ChatID, msgNotRegistered, nil)
		}
		return nil, false
	}

	logger.Logger().Error("failed to get user", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	b.respond(ctx, ev, msgSomethingWrong)
	return nil, false
}

func (b *Bot) handleMenu(ctx context.Context, ev Event) {
	if _, ok := b.registeredUser(ctx, ev); !ok {
		return
	}
	b.send(ctx, ev.ChatID, msgMainMenu, mainMenuKeyboard())
}

func (b *Bot) handleWalletCommand(ctx context.Context, ev Event) {
	user, ok := b.registeredUser(ctx, ev)
	if !ok {
		return
	}
	b.openWalletStep(ctx, ev, user)
}

func (b *Bot) openWalletStep(ctx context.Context, ev Event, user *model.User) {
	if err := b.sessions.Set(ctx, ev.UserID, session.Wallet()); err != nil {
		logger.Logger().Error("failed to open wallet step", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.respond(ctx, ev, msgSomethingWrong)
		return
	}

	if user.HasWallet() {
		b.send(ctx, ev.ChatID, fmt.Sprintf(msgWalletUpdate, user.WalletAddress), nil)
	} else {
		b.send(ctx, ev.ChatID, fmt.Sprintf(msgWalletPrompt, b.walletPrefix()), nil)
	}
	if ev.IsCallback() {
		b.answer(ctx, ev, "Please send the address now.")
	}
}

func (b *Bot) handleWalletAddress(ctx context.Context, ev Event) {
	log := logger.Logger()
	address := strings.TrimSpace(ev.Text)

	err := b.ledger.SetWallet(ctx, ev.UserID, address)
	switch {
	case errors.Is(err, service.ErrMalformedInput):
		b.send(ctx, ev.ChatID, b.walletInvalidText(), nil)
		return
	case errors.Is(err, service.ErrUserNotFound):
		_ = b.sessions.Clear(ctx, ev.UserID)
		b.send(ctx, ev.ChatID, msgNotRegistered, nil)
		return
	case err != nil:
		log.Error("failed to save wallet", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
		log.Error("failed to clear wallet step", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}
	b.send(ctx, ev.ChatID, fmt.Sprintf(msgWalletSaved, address), mainMenuKeyboard())
}

func (b *Bot) walletPrefix() string {
	return b.ledger.WalletRules().Prefix
}

func (b *Bot) walletInvalidText() string {
	rules := b.ledger.WalletRules()
	return fmt.Sprintf(msgWalletInvalid, rules.Prefix, rules.MinLength)
}

func (b *Bot) handleWithdrawCommand(ctx context.Context, ev Event) {
	user, ok := b.registeredUser(ctx, ev)
	if !ok {
		return
	}
	if !user.HasWallet() {
		b.send(ctx, ev.ChatID, msgWalletRequired, nil)
		return
	}

	cfg := b.ledger.Config()
	b.send(ctx, ev.ChatID, withdrawPromptText(user.Points, cfg.MinWithdrawal), withdrawalKeyboard(cfg.WithdrawalOptions))
}

func (b *Bot) handleCallback(ctx context.Context, ev Event) {
	user, ok := b.registeredUser(ctx, ev)
	if !ok {
		return
	}

	data := ev.CallbackData
	switch {
	case data == cbMainMenu:
		b.edit(ctx, ev, msgMainMenu, mainMenuKeyboard())
		b.answer(ctx, ev, "")
	case data == cbShowTasks:
		b.showTasks(ctx, ev)
	case data == cbShowPoints:
		b.edit(ctx, ev, statsText(user), mainMenuKeyboard())
		b.answer(ctx, ev, "")
	case data == cbShowReferral:
		b.showReferral(ctx, ev)
	case data == cbSetWallet:
		b.openWalletStep(ctx, ev, user)
	case data == cbPromptWithdraw:
		if !user.HasWallet() {
			b.answer(ctx, ev, "❌ Set your wallet first using /wallet or the Set Wallet button.")
			return
		}
		cfg := b.ledger.Config()
		b.edit(ctx, ev, withdrawPromptText(user.Points, cfg.MinWithdrawal), withdrawalKeyboard(cfg.WithdrawalOptions))
		b.answer(ctx, ev, "")
	case strings.HasPrefix(data, cbWithdrawPrefix):
		b.withdraw(ctx, ev, strings.TrimPrefix(data, cbWithdrawPrefix))
	case strings.HasPrefix(data, cbClaimPrefix):
		b.claim(ctx, ev, strings.TrimPrefix(data, cbClaimPrefix))
	case data == cbNoop:
		b.answer(ctx, ev, msgUnderReview)
	default:
		b.answer(ctx, ev, "")
	}
}

func (b *Bot) showTasks(ctx context.Context, ev Event) {
	views, err := b.tasks.TasksForUser(ctx, ev.UserID)
	if err != nil {
		logger.Logger().Error("failed to list tasks", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.answer(ctx, ev, msgSomethingWrong)
		return
	}

	text := tasksText(views)
	keyboard, allDone := tasksKeyboard(views)
	if allDone {
		text += msgAllTasksDone
	}

	b.edit(ctx, ev, text, keyboard)
	b.answer(ctx, ev, "")
}

func (b *Bot) showReferral(ctx context.Context, ev Event) {
	link := referralLink(b.cfg.BotUsername, ev.UserID)
	b.edit(ctx, ev, referralText(link), mainMenuKeyboard())
	b.answer(ctx, ev, "")

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		logger.Logger().Warn("failed to render referral qr", zap.Error(err))
		return
	}
	if err := b.gw.SendPhoto(ctx, ev.ChatID, png, "Scan to join BinGo with your referral.", nil); err != nil {
		logger.Logger().Warn("failed to send referral qr", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}
}

func (b *Bot) withdraw(ctx context.Context, ev Event, raw string) {
	log := logger.Logger()

	amount, err := strconv.Atoi(raw)
	if err != nil || amount <= 0 {
		b.answer(ctx, ev, "❌ Invalid amount.")
		return
	}

	withdrawal, user, err := b.ledger.CreateWithdrawal(ctx, ev.UserID, amount)
	switch {
	case errors.Is(err, service.ErrBelowMinimum):
		b.answer(ctx, ev, fmt.Sprintf("❌ Minimum withdrawal amount is %d points.", b.ledger.Config().MinWithdrawal))
		return
	case errors.Is(err, service.ErrWalletNotSet):
		b.answer(ctx, ev, "❌ Set your wallet first using /wallet or the Set Wallet button.")
		return
	case errors.Is(err, service.ErrInsufficientBalance):
		b.answer(ctx, ev, "❌ You do not have enough points for this withdrawal.")
		return
	case err != nil:
		log.Error("failed to create withdrawal", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.answer(ctx, ev, msgSomethingWrong)
		return
	}

	b.edit(ctx, ev, withdrawSentText(amount, user.Points), mainMenuKeyboard())
	b.answer(ctx, ev, "Request sent successfully!")
	b.send(ctx, b.cfg.AdminID, adminWithdrawalText(withdrawal), nil)
}

func (b *Bot) claim(ctx context.Context, ev Event, taskID string) {
	task, err := b.tasks.FindTask(taskID)
	if err != nil {
		b.answer(ctx, ev, "Task not found.")
		return
	}

	switch task.Kind {
	case model.VerificationChannel:
		b.claimChannelTask(ctx, ev, task)
	case model.VerificationManual:
		b.claimManualTask(ctx, ev, task)
	default:
		b.answer(ctx, ev, "Task not found.")
	}
}

func (b *Bot) claimChannelTask(ctx context.Context, ev Event, task model.Task) {
	user, _, err := b.tasks.ClaimChannelTask(ctx, ev.UserID, task.ID)
	switch {
	case errors.Is(err, service.ErrAlreadyCompleted):
		b.answer(ctx, ev, msgAlreadyClaimed)
		return
	case errors.Is(err, service.ErrNotMember):
		b.answer(ctx, ev, "❌ Please join the channel first to claim points.")
		return
	case errors.Is(err, service.ErrExternalCheckFailed):
		b.answer(ctx, ev, "❌ Could not verify. Make sure bot is Admin in the channel.")
		return
	case err != nil:
		logger.Logger().Error("failed to claim channel task",
			zap.Int64("telegram_id", ev.UserID),
			zap.String("task_id", task.ID),
			zap.Error(err))
		b.answer(ctx, ev, msgSomethingWrong)
		return
	}

	b.answer(ctx, ev, fmt.Sprintf("✅ Task Complete! Added %d points!", task.Points))
	b.send(ctx, ev.ChatID, channelTaskDoneText(user.Points), mainMenuKeyboard())
}

func (b *Bot) claimManualTask(ctx context.Context, ev Event, task model.Task) {
	_, err := b.tasks.BeginManualClaim(ctx, ev.UserID, task.ID)
	switch {
	case errors.Is(err, service.ErrAlreadyCompleted):
		b.answer(ctx, ev, msgAlreadyClaimed)
		return
	case errors.Is(err, service.ErrReviewPending):
		b.answer(ctx, ev, msgAlreadyUnderReview)
		return
	case err != nil:
		logger.Logger().Error("failed to start manual claim",
			zap.Int64("telegram_id", ev.UserID),
			zap.String("task_id", task.ID),
			zap.Error(err))
		b.answer(ctx, ev, msgSomethingWrong)
		return
	}

	if err := b.sessions.Set(ctx, ev.UserID, session.ManualReview(task.ID)); err != nil {
		logger.Logger().Error("failed to open review step", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.answer(ctx, ev, msgSomethingWrong)
		return
	}

	b.sendForceReply(ctx, ev.ChatID, manualTaskPromptText(task))
	b.answer(ctx, ev, "Please submit your X username.")
}

func (b *Bot) handleReviewHandle(ctx context.Context, ev Event, state session.State) {
	log := logger.Logger()

	review, task, err := b.tasks.SubmitReview(ctx, ev.UserID, state.TaskID, ev.Text)
	switch {
	case errors.Is(err, service.ErrMalformedInput):
		b.send(ctx, ev.ChatID, msgHandleInvalid, nil)
		return
	case errors.Is(err, service.ErrReviewPending):
		_ = b.sessions.Clear(ctx, ev.UserID)
		b.send(ctx, ev.ChatID, msgAlreadyUnderReview, mainMenuKeyboard())
		return
	case errors.Is(err, service.ErrAlreadyCompleted):
		_ = b.sessions.Clear(ctx, ev.UserID)
		b.send(ctx, ev.ChatID, msgAlreadyClaimed, mainMenuKeyboard())
		return
	case errors.Is(err, service.ErrTaskNotFound):
		_ = b.sessions.Clear(ctx, ev.UserID)
		b.send(ctx, ev.ChatID, "Task not found.", mainMenuKeyboard())
		return
	case err != nil:
		log.Error("failed to submit review", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
		log.Error("failed to clear review step", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}

	user, _ := b.ledger.GetUser(ctx, ev.UserID)
	b.send(ctx, ev.ChatID, reviewSubmittedText(review.Handle, task), nil)
	b.send(ctx, b.cfg.AdminID, adminReviewText(user, review, task), nil)
}
