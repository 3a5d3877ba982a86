package bot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bingo_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Config struct {
	BotToken       string        `mapstructure:"botToken"`
	BotUsername    string        `mapstructure:"botUsername"`
	AdminID        int64         `mapstructure:"adminId"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	PollTimeout    time.Duration `mapstructure:"pollTimeout"`
	Debug          bool          `mapstructure:"debug"`
}

// TelegramGateway talks to the Bot API. Outgoing calls share one client
// bounded by RequestTimeout; long polling uses its own client so a pending
// getUpdates never holds up a reply.
type TelegramGateway struct {
	sender *tgbotapi.BotAPI
	poller *tgbotapi.BotAPI
	cfg    Config
}

func NewTelegramGateway(cfg Config) (*TelegramGateway, error) {
	sender, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}
	sender.Debug = cfg.Debug

	poller, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: cfg.PollTimeout + cfg.RequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot poller: %w", err)
	}
	poller.Debug = cfg.Debug

	return &TelegramGateway{
		sender: sender,
		poller: poller,
		cfg:    cfg,
	}, nil
}

func (g *TelegramGateway) Username() string {
	return g.sender.Self.UserName
}

func (g *TelegramGateway) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if opts != nil {
		msg.ParseMode = opts.ParseMode
		msg.DisableWebPagePreview = opts.DisableWebPreview
		switch {
		case opts.ForceReply:
			msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
		case len(opts.Keyboard) > 0:
			msg.ReplyMarkup = inlineKeyboard(opts.Keyboard)
		}
	}

	_, err := g.sender.Send(msg)
	return err
}

func (g *TelegramGateway) EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if opts != nil {
		edit.ParseMode = opts.ParseMode
		edit.DisableWebPagePreview = opts.DisableWebPreview
		if len(opts.Keyboard) > 0 {
			markup := inlineKeyboard(opts.Keyboard)
			edit.ReplyMarkup = &markup
		}
	}

	_, err := g.sender.Send(edit)
	return err
}

func (g *TelegramGateway) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.sender.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func (g *TelegramGateway) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string, opts *SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "referral.png", Bytes: png})
	photo.Caption = caption
	if opts != nil {
		photo.ParseMode = opts.ParseMode
		if len(opts.Keyboard) > 0 {
			photo.ReplyMarkup = inlineKeyboard(opts.Keyboard)
		}
	}

	_, err := g.sender.Send(photo)
	return err
}

func (g *TelegramGateway) GetChatMembershipStatus(ctx context.Context, channelRef string, userID int64) (MemberStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	member, err := g.sender.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: channelRef,
			UserID:             userID,
		},
	})
	if err != nil {
		return "", err
	}

	return MemberStatus(member.Status), nil
}

// Poll feeds updates to handle until ctx is cancelled. Updates are handled
// one at a time in arrival order.
func (g *TelegramGateway) Poll(ctx context.Context, handle func(context.Context, Event)) {
	log := logger.Logger()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = int(g.cfg.PollTimeout.Seconds())

	updates := g.poller.GetUpdatesChan(updateConfig)
	defer g.poller.StopReceivingUpdates()

	log.Info("bot polling started", zap.String("username", g.poller.Self.UserName))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := eventFromUpdate(update)
			if !ok {
				continue
			}
			handle(ctx, ev)

		case <-ctx.Done():
			log.Info("bot polling stopped")
			return
		}
	}
}

func eventFromUpdate(update tgbotapi.Update) (Event, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		ev := Event{
			UserID:       cb.From.ID,
			ChatID:       cb.From.ID,
			Username:     cb.From.UserName,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}
		if cb.Message != nil {
			ev.MessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}
		return ev, true

	case update.Message != nil && update.Message.From != nil && update.Message.Text != "":
		msg := update.Message
		// Only private chats drive the conversation.
		if msg.Chat == nil || !msg.Chat.IsPrivate() {
			return Event{}, false
		}
		return Event{
			UserID:    msg.From.ID,
			ChatID:    msg.Chat.ID,
			Username:  msg.From.UserName,
			Text:      msg.Text,
			MessageID: msg.MessageID,
		}, true
	}

	return Event{}, false
}

func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}
