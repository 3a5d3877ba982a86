package notify

import (
	"testing"

	"bingo_bot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversToMatchingUser(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe(1)
	defer cancel()
	other, cancelOther := hub.Subscribe(2)
	defer cancelOther()

	hub.Publish(model.LedgerEvent{Type: model.EventPointsCredited, UserTelegramID: 1, Points: 150})

	select {
	case e := <-events:
		assert.Equal(t, 150, e.Points)
	default:
		t.Fatal("expected an event")
	}
	assert.Empty(t, other)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe(1)
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish(model.LedgerEvent{UserTelegramID: 1, Points: i})
	}

	assert.Len(t, events, subscriberBuffer)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe(1)

	cancel()
	cancel()

	_, ok := <-events
	require.False(t, ok)

	hub.Publish(model.LedgerEvent{UserTelegramID: 1})
	assert.Empty(t, hub.subs)
}
