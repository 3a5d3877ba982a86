package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bingo_bot/internal/model"
	"bingo_bot/internal/repository"
	"bingo_bot/internal/service"
	"bingo_bot/internal/session"
	"bingo_bot/internal/tasks"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	ChatID   int64
	Text     string
	Opts     *SendOptions
	Edit     bool
	Photo    bool
	Callback bool
}

// fakeGateway records everything the bot sends.
type fakeGateway struct {
	mu         sync.Mutex
	messages   []sentMessage
	members    map[string]map[int64]MemberStatus
	failSendTo map[int64]bool
	memberErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members:    make(map[string]map[int64]MemberStatus),
		failSendTo: make(map[int64]bool),
	}
}

func (f *fakeGateway) SendMessage(_ context.Context, chatID int64, text string, opts *SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSendTo[chatID] {
		return errors.New("bot was blocked by the user")
	}
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (f *fakeGateway) EditMessage(_ context.Context, chatID int64, _ int, text string, opts *SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text, Opts: opts, Edit: true})
	return nil
}

func (f *fakeGateway) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{Text: text, Callback: true})
	return nil
}

func (f *fakeGateway) SendPhoto(_ context.Context, chatID int64, _ []byte, caption string, opts *SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: caption, Opts: opts, Photo: true})
	return nil
}

func (f *fakeGateway) GetChatMembershipStatus(_ context.Context, channelRef string, userID int64) (MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberErr != nil {
		return "", f.memberErr
	}
	if status, ok := f.members[channelRef][userID]; ok {
		return status, nil
	}
	return MemberLeft, nil
}

func (f *fakeGateway) setMember(channel string, userID int64, status MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[channel] == nil {
		f.members[channel] = make(map[int64]MemberStatus)
	}
	f.members[channel][userID] = status
}

// last returns the most recent message or edit addressed to chatID.
func (f *fakeGateway) last(chatID int64) sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if !m.Callback && m.ChatID == chatID {
			return m
		}
	}
	return sentMessage{}
}

func (f *fakeGateway) lastAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Callback {
			return f.messages[i].Text
		}
	}
	return ""
}

func (f *fakeGateway) to(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.messages {
		if !m.Callback && m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeGateway) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
}

const (
	adminID = int64(9000)
	wallet  = "0xabcdef0123456789abcdef"
)

const testCatalogJSON = `{
  "tasks": [
    {"id": "tg_join", "title": "Join channel", "points": 50, "type": "channel", "username": "@bingo_news", "link": "https://t.me/bingo_news"},
    {"id": "x_follow", "title": "Follow on X", "points": 200, "type": "social", "link": "https://x.com/bingo"}
  ]
}`

type harness struct {
	bot      *Bot
	gw       *fakeGateway
	repo     *repository.Repository
	ledger   *service.LedgerService
	sessions *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	repo, err := repository.New(repository.Config{Driver: repository.DriverSQLite, Path: filepath.Join(dir, "bingo.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	catalogPath := filepath.Join(dir, "tasks_config.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalogJSON), 0o644))

	gw := newFakeGateway()
	ledger := service.NewLedgerService(repo, service.LedgerConfig{
		StartingBonus:     100,
		ReferralBonus:     25,
		MinWithdrawal:     5000,
		WithdrawalOptions: []int{5000, 10000, 20000},
	}, service.WalletConfig{Prefix: "0x", MinLength: 20}, nil)
	taskService := service.NewTaskService(ledger, repo, tasks.NewRegistry(catalogPath), NewMembershipChecker(gw))
	sessions := session.NewMemoryStore(time.Hour)

	b := New(gw, ledger, taskService, sessions, Config{
		BotUsername: "BinGo_bsc_bot",
		AdminID:     adminID,
	}, BroadcastConfig{})
	b.operands = func() (int, int) { return 3, 4 }

	return &harness{bot: b, gw: gw, repo: repo, ledger: ledger, sessions: sessions}
}

func (h *harness) text(userID int64, text string) {
	h.textAs(userID, "alice", text)
}

func (h *harness) textAs(userID int64, username, text string) {
	h.bot.HandleEvent(context.Background(), Event{UserID: userID, ChatID: userID, Username: username, Text: text})
}

func (h *harness) press(userID int64, data string) {
	h.bot.HandleEvent(context.Background(), Event{UserID: userID, ChatID: userID, CallbackID: "cb", CallbackData: data, MessageID: 1})
}

// register walks userID through the captcha.
func (h *harness) register(t *testing.T, userID int64, start string) *model.User {
	t.Helper()
	h.text(userID, start)
	h.text(userID, "7")
	user, err := h.ledger.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return user
}

func (h *harness) user(t *testing.T, userID int64) *model.User {
	t.Helper()
	user, err := h.ledger.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return user
}
