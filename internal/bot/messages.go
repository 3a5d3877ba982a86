package bot

import (
	"fmt"
	"strings"

	"bingo_bot/internal/model"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	msgMainMenu           = "🚀 *BinGo Main Menu*\n\nChoose an action below:"
	msgNotRegistered      = "You are not registered yet. Use /start."
	msgStartFirst         = "Please /start the bot first."
	msgSolveCaptcha       = "Please solve the anti-bot check first."
	msgTooManyAttempts    = "❌ Too many failed attempts. Please restart the bot with /start."
	msgWalletPrompt       = "Please send your *BSC Wallet Address* now to save it for withdrawals. (Must start with %s)"
	msgWalletUpdate       = "Your current BSC Wallet Address is:\n`%s`\n\nPlease send your *new* address now to update it."
	msgWalletInvalid      = "❌ That doesn't look like a valid BSC address (must start with %s followed by letters and digits, at least %d characters). Please try again, or /cancel."
	msgWalletSaved        = "✅ Your new BSC Wallet Address has been saved:\n`%s`"
	msgWalletRequired     = "❌ You must set your BSC Wallet Address first using the /wallet command."
	msgUnknownCommand     = "I don't recognize that command. Try /menu to see your options."
	msgNothingToCancel    = "Nothing to cancel."
	msgCancelled          = "Cancelled."
	msgCaptchaCancelled   = "Anti-bot check cancelled. Send /start to begin again."
	msgSomethingWrong     = "Something went wrong. Please try again."
	msgUnderReview        = "Your claim is pending admin review. Thank you for your patience."
	msgAlreadyUnderReview = "⏳ Your submission for this task is already under review."
	msgHandleInvalid      = "❌ That doesn't look like an X (Twitter) @username (up to 15 letters, digits or _). Please try again, or /cancel."
	msgAlreadyClaimed     = "You have already claimed this reward. ✅"
)

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func captchaText(a, b int) string {
	return fmt.Sprintf("🤖 *Anti-Bot Check*\nTo start, please solve this simple math problem:\n\nWhat is %d + %d?", a, b)
}

func wrongAnswerText(left int) string {
	return fmt.Sprintf("❌ Incorrect answer. Try again. (%d attempts left).", left)
}

func welcomeText(bonus int) string {
	return fmt.Sprintf("✅ Correct! Welcome to BinGo! You received %d bonus points.", bonus)
}

func referralCreditText(bonus int, username string) string {
	return fmt.Sprintf("🎁 You received a %d point bonus because %s started the bot!", bonus, esc(username))
}

// finishStepText explains why a command was refused while a step is open.
func finishStepText(state session.State) string {
	switch state.Kind {
	case session.KindCaptcha:
		return msgSolveCaptcha
	case session.KindWallet:
		return "Please finish the current step first: send your wallet address, or /cancel."
	case session.KindManualReview:
		return "Please finish the current step first: reply with your X @username, or /cancel."
	default:
		return msgSomethingWrong
	}
}

func statsText(user *model.User) string {
	wallet := "❌ Not Set"
	if user.HasWallet() {
		wallet = "`" + user.MaskedWallet() + "`"
	}
	return fmt.Sprintf("💰 *Your Stats*\nPoints: %d\nLevel: %d\nReferrals: %d\nWallet: %s\n\nUse /menu to see options!",
		user.Points, user.Level(), user.Referrals, wallet)
}

func referralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", strings.TrimPrefix(botUsername, "@"), userID)
}

func referralText(link string) string {
	return fmt.Sprintf("👥 *Your Referral Link:*\n\nShare this link to earn a bonus when new users join:\n\n`%s`", link)
}

func withdrawPromptText(points, minimum int) string {
	return fmt.Sprintf("💸 *Withdrawal Request*\n\nYour current balance: *%d* pts\nMinimum withdrawal: *%d* pts\n\nSelect the amount you wish to withdraw:", points, minimum)
}

func withdrawSentText(amount, balance int) string {
	return fmt.Sprintf("✅ Your withdraw request for %d points has been sent! Your new balance is %d pts.", amount, balance)
}

func adminWithdrawalText(w *model.Withdrawal) string {
	return fmt.Sprintf("🚨 *NEW WITHDRAWAL REQUEST*\nUser: %s (%d)\nAmount: %d pts\nWallet: `%s`\nRequest ID: `%s`\n\nTo complete: `/completewithdraw %s`",
		esc(w.Username), w.UserTelegramID, w.Amount, w.WalletAddress, w.ID, w.ID)
}

func withdrawCompletedText(w *model.Withdrawal) string {
	return fmt.Sprintf("✅ Your withdrawal request for %d points to wallet `%s` has been *COMPLETED!*", w.Amount, w.WalletAddress)
}

func tasksText(views []service.TaskView) string {
	var b strings.Builder
	b.WriteString("📋 *Available Tasks*:\n\n")
	for _, v := range views {
		status := "➡️"
		switch v.Status {
		case service.TaskCompleted:
			status = "✅"
		case service.TaskUnderReview:
			status = "⏳"
		}
		title := fmt.Sprintf("%s (+%d pts)", esc(v.Task.Title), v.Task.Points)
		if v.Task.Link != "" {
			fmt.Fprintf(&b, "%s [%s](%s)\n", status, title, v.Task.Link)
		} else {
			fmt.Fprintf(&b, "%s %s\n", status, title)
		}
	}
	b.WriteString("\nTap a button below to check and claim points.")
	return b.String()
}

const msgAllTasksDone = "\n\nAll tasks completed! Amazing work! 🎉"

func channelTaskDoneText(points int) string {
	return fmt.Sprintf("🎉 You successfully completed the Telegram join task! You now have %d points.", points)
}

func manualTaskPromptText(task model.Task) string {
	return fmt.Sprintf("🔗 *Task: %s*\n\nTo complete this task, please *reply to this message* with your X (Twitter) `@username`\n\n_The Admin will review your account and approve the points manually._",
		esc(task.Title))
}

func reviewSubmittedText(handle string, task model.Task) string {
	return fmt.Sprintf("⏳ *Submitted!* Your X account (`%s`) has been sent for review for the *%s* task. The Admin will check and approve your points shortly!",
		handle, esc(task.Title))
}

func adminReviewText(user *model.User, review *model.ManualReview, task model.Task) string {
	username := "Anonymous"
	if user != nil && user.Username != "" {
		username = user.Username
	}
	return fmt.Sprintf("🔔 *NEW TASK SUBMISSION*\n\nUser: %s (`%d`)\nTask: *%s*\nX User: `%s`\n\nTo approve: `/approve %d %s`\nTo reject: `/reject %d %s`",
		esc(username), review.UserTelegramID, esc(task.Title), review.Handle,
		review.UserTelegramID, task.ID, review.UserTelegramID, task.ID)
}

func approvedAdminText(points int, userID int64) string {
	return fmt.Sprintf("✅ *APPROVED!* %d points added to user %d.", points, userID)
}

func approvedUserText(task model.Task) string {
	return fmt.Sprintf("🎉 *Admin Approval!* Your submission for *%s* has been approved. You received %d points!", esc(task.Title), task.Points)
}

func rejectedUserText(title string) string {
	return fmt.Sprintf("❌ *Admin Review:* Your submission for *%s* was denied. Please ensure you completed the task and submit again.", esc(title))
}

func broadcastText(text string) string {
	return "📢 *ADMIN BROADCAST*\n\n" + esc(text)
}
