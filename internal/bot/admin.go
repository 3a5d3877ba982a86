package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bingo_bot/internal/metrics"
	"bingo_bot/internal/service"
	"bingo_bot/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const pendingListLimit = 20

// handleAdmin runs a console command. Callers have already checked that the
// sender is the admin.
func (b *Bot) handleAdmin(ctx context.Context, ev Event, cmd, args string) {
	logger.Logger().Info("admin command", zap.String("command", cmd))

	switch cmd {
	case "approve":
		b.adminApprove(ctx, ev, strings.Fields(args))
	case "reject":
		b.adminReject(ctx, ev, strings.Fields(args))
	case "addpoints":
		b.adminAddPoints(ctx, ev, strings.Fields(args))
	case "completewithdraw":
		b.adminCompleteWithdrawal(ctx, ev, strings.Fields(args))
	case "broadcast":
		b.adminBroadcast(ctx, ev, args)
	case "pending":
		b.adminPending(ctx, ev)
	}
}

func (b *Bot) adminApprove(ctx context.Context, ev Event, parts []string) {
	if len(parts) != 2 {
		b.send(ctx, ev.ChatID, "Usage: /approve <targetUserId> <taskId>", nil)
		return
	}
	targetID, ok := parseUserID(parts[0])
	if !ok {
		b.send(ctx, ev.ChatID, "Usage: /approve <targetUserId> <taskId>", nil)
		return
	}

	user, task, err := b.tasks.Approve(ctx, targetID, parts[1])
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		b.send(ctx, ev.ChatID, "Task ID not found.", nil)
		return
	case errors.Is(err, service.ErrUserNotFound):
		b.send(ctx, ev.ChatID, "Target user not found.", nil)
		return
	case errors.Is(err, service.ErrAlreadyCompleted):
		b.send(ctx, ev.ChatID, "Task already completed.", nil)
		return
	case err != nil:
		logger.Logger().Error("failed to approve review",
			zap.Int64("target_id", targetID),
			zap.String("task_id", parts[1]),
			zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, approvedAdminText(task.Points, user.TelegramID), nil)
	b.send(ctx, targetID, approvedUserText(task), nil)
}

func (b *Bot) adminReject(ctx context.Context, ev Event, parts []string) {
	if len(parts) != 2 {
		b.send(ctx, ev.ChatID, "Usage: /reject <targetUserId> <taskId>", nil)
		return
	}
	targetID, ok := parseUserID(parts[0])
	if !ok {
		b.send(ctx, ev.ChatID, "Usage: /reject <targetUserId> <taskId>", nil)
		return
	}

	task, resolved, err := b.tasks.Reject(ctx, targetID, parts[1])
	if err != nil {
		logger.Logger().Error("failed to reject review",
			zap.Int64("target_id", targetID),
			zap.String("task_id", parts[1]),
			zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	title := parts[1]
	if task != nil {
		title = task.Title
	}

	reply := fmt.Sprintf("❌ *REJECTED!* User %d notified.", targetID)
	if !resolved {
		reply += " (no pending submission was found)"
	}
	b.send(ctx, ev.ChatID, reply, nil)
	b.send(ctx, targetID, rejectedUserText(title), nil)
}

func (b *Bot) adminAddPoints(ctx context.Context, ev Event, parts []string) {
	const usage = "Usage: /addpoints <userId> <points>"
	if len(parts) != 2 {
		b.send(ctx, ev.ChatID, usage, nil)
		return
	}
	targetID, ok := parseUserID(parts[0])
	points, err := strconv.Atoi(parts[1])
	if !ok || err != nil || points == 0 {
		b.send(ctx, ev.ChatID, usage, nil)
		return
	}

	user, err := b.ledger.AddPoints(ctx, targetID, points)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		b.send(ctx, ev.ChatID, fmt.Sprintf("User %d not found.", targetID), nil)
		return
	case errors.Is(err, service.ErrInsufficientBalance):
		b.send(ctx, ev.ChatID, fmt.Sprintf("User %d does not have enough points for that.", targetID), nil)
		return
	case err != nil:
		logger.Logger().Error("failed to add points", zap.Int64("target_id", targetID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, fmt.Sprintf("✅ Added %d points to user %d. New balance: %d", points, targetID, user.Points), nil)
	if points > 0 {
		b.send(ctx, targetID, fmt.Sprintf("✨ The Admin added %d points to your account!", points), nil)
	} else {
		b.send(ctx, targetID, fmt.Sprintf("The Admin adjusted your balance by %d points.", points), nil)
	}
}

func (b *Bot) adminCompleteWithdrawal(ctx context.Context, ev Event, parts []string) {
	if len(parts) != 1 {
		b.send(ctx, ev.ChatID, "Usage: /completewithdraw <withdrawId>", nil)
		return
	}
	id := parts[0]

	withdrawal, err := b.ledger.CompleteWithdrawal(ctx, id)
	switch {
	case errors.Is(err, service.ErrWithdrawalNotFound):
		b.send(ctx, ev.ChatID, "Withdraw ID not found.", nil)
		return
	case errors.Is(err, service.ErrWithdrawalCompleted):
		b.send(ctx, ev.ChatID, fmt.Sprintf("Withdraw ID `%s` is already completed.", id), nil)
		return
	case err != nil:
		logger.Logger().Error("failed to complete withdrawal", zap.String("withdrawal_id", id), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, fmt.Sprintf("✅ Withdraw ID `%s` marked as completed.", id), nil)
	b.send(ctx, withdrawal.UserTelegramID, withdrawCompletedText(withdrawal), nil)
}

// adminBroadcast fans text out in the background, paced by the configured
// rate. A failed delivery is logged and the rest continue.
func (b *Bot) adminBroadcast(ctx context.Context, ev Event, text string) {
	if text == "" {
		b.send(ctx, ev.ChatID, "Usage: /broadcast <Your message here>", nil)
		return
	}

	ids, err := b.ledger.ListUserIDs(ctx)
	if err != nil {
		logger.Logger().Error("failed to list broadcast recipients", zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	b.send(ctx, ev.ChatID, fmt.Sprintf("📢 Broadcasting to %d users...", len(ids)), nil)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sent, failed := b.fanOut(ctx, ids, broadcastText(text))
		b.send(ctx, ev.ChatID, fmt.Sprintf("✅ Broadcast sent to %d active users (%d failed).", sent, failed), nil)
	}()
}

func (b *Bot) fanOut(ctx context.Context, ids []int64, text string) (sent, failed int) {
	log := logger.Logger()

	limit := rate.Inf
	if b.broadcast.RatePerSecond > 0 {
		limit = rate.Limit(b.broadcast.RatePerSecond)
	}
	burst := b.broadcast.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	opts := &SendOptions{ParseMode: "Markdown", DisableWebPreview: true}
	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn("broadcast interrupted", zap.Int("remaining", len(ids)-sent-failed), zap.Error(err))
			failed += len(ids) - sent - failed
			return sent, failed
		}

		if err := b.gw.SendMessage(ctx, id, text, opts); err != nil {
			failed++
			metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			log.Warn("failed to deliver broadcast", zap.Int64("telegram_id", id), zap.Error(err))
			continue
		}
		sent++
		metrics.BroadcastDeliveries.WithLabelValues("sent").Inc()
	}

	return sent, failed
}

func (b *Bot) adminPending(ctx context.Context, ev Event) {
	reviews, err := b.tasks.PendingReviews(ctx, pendingListLimit)
	if err != nil {
		logger.Logger().Error("failed to list pending reviews", zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}
	withdrawals, err := b.ledger.PendingWithdrawals(ctx, pendingListLimit)
	if err != nil {
		logger.Logger().Error("failed to list pending withdrawals", zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("🗂 *Pending reviews*\n")
	if len(reviews) == 0 {
		sb.WriteString("none\n")
	}
	for _, r := range reviews {
		fmt.Fprintf(&sb, "• %d `%s` %s\n", r.UserTelegramID, r.TaskID, esc(r.Handle))
	}

	sb.WriteString("\n💸 *Pending withdrawals*\n")
	if len(withdrawals) == 0 {
		sb.WriteString("none\n")
	}
	for _, w := range withdrawals {
		fmt.Fprintf(&sb, "• `%s` %d pts to `%s` (user %d)\n", w.ID, w.Amount, w.WalletAddress, w.UserTelegramID)
	}

	b.send(ctx, ev.ChatID, sb.String(), nil)
}
