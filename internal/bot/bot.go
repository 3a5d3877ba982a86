// Package bot runs the conversational side of BinGo: the per-user session
// gate, the user menu and the admin console.
package bot

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"bingo_bot/internal/metrics"
	"bingo_bot/internal/model"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Ledger interface {
	Config() service.LedgerConfig
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	Register(ctx context.Context, telegramID int64, username string, referrerID *int64) (*model.User, bool, error)
	AddPoints(ctx context.Context, telegramID int64, delta int) (*model.User, error)
	WalletRules() service.WalletConfig
	SetWallet(ctx context.Context, telegramID int64, address string) error
	CreateWithdrawal(ctx context.Context, telegramID int64, amount int) (*model.Withdrawal, *model.User, error)
	CompleteWithdrawal(ctx context.Context, withdrawalID string) (*model.Withdrawal, error)
	PendingWithdrawals(ctx context.Context, limit int) ([]*model.Withdrawal, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type Tasks interface {
	TasksForUser(ctx context.Context, telegramID int64) ([]service.TaskView, error)
	FindTask(taskID string) (model.Task, error)
	ClaimChannelTask(ctx context.Context, telegramID int64, taskID string) (*model.User, model.Task, error)
	BeginManualClaim(ctx context.Context, telegramID int64, taskID string) (model.Task, error)
	SubmitReview(ctx context.Context, telegramID int64, taskID, handle string) (*model.ManualReview, model.Task, error)
	Approve(ctx context.Context, telegramID int64, taskID string) (*model.User, model.Task, error)
	Reject(ctx context.Context, telegramID int64, taskID string) (*model.Task, bool, error)
	PendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error)
}

type BroadcastConfig struct {
	RatePerSecond float64 `mapstructure:"ratePerSecond"`
	Burst         int     `mapstructure:"burst"`
}

type Bot struct {
	gw        Gateway
	ledger    Ledger
	tasks     Tasks
	sessions  session.Store
	cfg       Config
	broadcast BroadcastConfig

	operands func() (int, int)

	wg sync.WaitGroup
}

func New(gw Gateway, ledger Ledger, tasks Tasks, sessions session.Store, cfg Config, broadcast BroadcastConfig) *Bot {
	return &Bot{
		gw:        gw,
		ledger:    ledger,
		tasks:     tasks,
		sessions:  sessions,
		cfg:       cfg,
		broadcast: broadcast,
		operands: func() (int, int) {
			return rand.IntN(9) + 1, rand.IntN(9) + 1
		},
	}
}

// Wait blocks until background work such as broadcasts has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

var adminCommands = map[string]bool{
	"approve":          true,
	"reject":           true,
	"addpoints":        true,
	"completewithdraw": true,
	"broadcast":        true,
	"pending":          true,
}

// HandleEvent routes one inbound event. Admin commands bypass the session
// gate; everything else is sent to the open step when there is one.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) {
	log := logger.Logger()
	kind := ev.kind()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event",
				zap.Any("panic", r),
				zap.Int64("telegram_id", ev.UserID))
		}
		metrics.BotEventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()
	metrics.BotEvents.WithLabelValues(kind).Inc()

	if ev.ChatID == 0 {
		ev.ChatID = ev.UserID
	}

	cmd, args := parseCommand(ev.Text)
	if !ev.IsCallback() && adminCommands[cmd] {
		if ev.UserID == b.cfg.AdminID {
			b.handleAdmin(ctx, ev, cmd, args)
		}
		return
	}

	state, err := b.sessions.Get(ctx, ev.UserID)
	if err != nil {
		log.Error("failed to load session", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.respond(ctx, ev, msgSomethingWrong)
		return
	}

	if ev.IsCallback() {
		if state.Active() {
			b.answer(ctx, ev, finishStepText(state))
			return
		}
		b.handleCallback(ctx, ev)
		return
	}

	if cmd == "cancel" {
		b.handleCancel(ctx, ev, state)
		return
	}

	if state.Active() {
		if cmd != "" {
			b.send(ctx, ev.ChatID, finishStepText(state), nil)
			return
		}

		switch state.Kind {
		case session.KindCaptcha:
			b.handleCaptchaAnswer(ctx, ev, state)
		case session.KindWallet:
			b.handleWalletAddress(ctx, ev)
		case session.KindManualReview:
			b.handleReviewHandle(ctx, ev, state)
		}
		return
	}

	switch cmd {
	case "start":
		b.handleStart(ctx, ev, args)
	case "menu":
		b.handleMenu(ctx, ev)
	case "wallet":
		b.handleWalletCommand(ctx, ev)
	case "withdraw":
		b.handleWithdrawCommand(ctx, ev)
	case "":
		// Free text outside of a step is ignored.
	default:
		if _, err := b.ledger.GetUser(ctx, ev.UserID); err == nil {
			b.send(ctx, ev.ChatID, msgUnknownCommand, mainMenuKeyboard())
		}
	}
}

func (b *Bot) handleCancel(ctx context.Context, ev Event, state session.State) {
	if !state.Active() {
		b.send(ctx, ev.ChatID, msgNothingToCancel, nil)
		return
	}

	if err := b.sessions.Clear(ctx, ev.UserID); err != nil {
		logger.Logger().Error("failed to clear session", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
		b.send(ctx, ev.ChatID, msgSomethingWrong, nil)
		return
	}

	if state.Kind == session.KindCaptcha {
		b.send(ctx, ev.ChatID, msgCaptchaCancelled, nil)
		return
	}
	b.send(ctx, ev.ChatID, msgCancelled, mainMenuKeyboard())
}

// send delivers a Markdown message. Delivery failures are logged and
// otherwise ignored.
func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard [][]Button) {
	opts := &SendOptions{ParseMode: tgbotapi.ModeMarkdown, Keyboard: keyboard, DisableWebPreview: true}
	if err := b.gw.SendMessage(ctx, chatID, text, opts); err != nil {
		logger.Logger().Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendForceReply(ctx context.Context, chatID int64, text string) {
	opts := &SendOptions{ParseMode: tgbotapi.ModeMarkdown, ForceReply: true}
	if err := b.gw.SendMessage(ctx, chatID, text, opts); err != nil {
		logger.Logger().Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) edit(ctx context.Context, ev Event, text string, keyboard [][]Button) {
	opts := &SendOptions{ParseMode: tgbotapi.ModeMarkdown, Keyboard: keyboard, DisableWebPreview: true}
	if err := b.gw.EditMessage(ctx, ev.ChatID, ev.MessageID, text, opts); err != nil {
		logger.Logger().Warn("failed to edit message", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}

func (b *Bot) answer(ctx context.Context, ev Event, text string) {
	if err := b.gw.AnswerCallback(ctx, ev.CallbackID, text); err != nil {
		logger.Logger().Warn("failed to answer callback", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}
}

// respond answers a button press with a toast and a text message with a
// reply.
func (b *Bot) respond(ctx context.Context, ev Event, text string) {
	if ev.IsCallback() {
		b.answer(ctx, ev, text)
		return
	}
	b.send(ctx, ev.ChatID, text, nil)
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
