package bot

import (
	"context"
	"strings"
	"unicode"

	"bingo_bot/internal/service"
)

// Gateway is the messaging platform as seen by the handlers.
type Gateway interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string, opts *SendOptions) error
	GetChatMembershipStatus(ctx context.Context, channelRef string, userID int64) (MemberStatus, error)
}

type SendOptions struct {
	ParseMode         string
	Keyboard          [][]Button
	ForceReply        bool
	DisableWebPreview bool
}

// Button is an inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

func (s MemberStatus) IsMember() bool {
	switch s {
	case MemberCreator, MemberAdministrator, MemberMember:
		return true
	default:
		return false
	}
}

// Event is one inbound update: a text message or a button press.
type Event struct {
	UserID       int64
	ChatID       int64
	Username     string
	Text         string
	CallbackID   string
	CallbackData string
	MessageID    int
}

func (e Event) IsCallback() bool {
	return e.CallbackID != ""
}

func (e Event) kind() string {
	switch {
	case e.IsCallback():
		return "callback"
	case strings.HasPrefix(strings.TrimSpace(e.Text), "/"):
		return "command"
	default:
		return "text"
	}
}

// parseCommand splits "/cmd@bot a b" into "cmd" and "a b" at the first
// whitespace rune. Text that is not a command yields an empty name.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	name, args := text[1:], ""
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		name, args = name[:i], name[i:]
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

// membership adapts a Gateway to service.MembershipChecker.
type membership struct {
	gw Gateway
}

func (m membership) IsMember(ctx context.Context, channelRef string, telegramID int64) (bool, error) {
	status, err := m.gw.GetChatMembershipStatus(ctx, channelRef, telegramID)
	if err != nil {
		return false, err
	}
	return status.IsMember(), nil
}

func NewMembershipChecker(gw Gateway) service.MembershipChecker {
	return membership{gw: gw}
}
