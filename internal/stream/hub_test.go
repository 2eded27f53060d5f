package stream

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/model"
)

func recv(t *testing.T, s *Subscriber) Envelope {
	t.Helper()
	select {
	case ev := <-s.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func TestHub_FanOutToWorkspaceSubscribers(t *testing.T) {
	h := NewHub(8, zerolog.Nop())
	a := h.Subscribe("ws-1")
	b := h.Subscribe("ws-1")
	other := h.Subscribe("ws-2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	h.PublishBoardUpdated("ws-1", "board-1", 42)

	for _, s := range []*Subscriber{a, b} {
		ev := recv(t, s)
		assert.Equal(t, EventBoardUpdated, ev.Type)
	}
	select {
	case <-other.C():
		t.Fatal("event leaked across workspaces")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub(1, zerolog.Nop())
	s := h.Subscribe("ws-1")
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.PublishBoardUpdated("ws-1", "board-1", int64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestHub_CloseEndsSubscription(t *testing.T) {
	h := NewHub(8, zerolog.Nop())
	s := h.Subscribe("ws-1")
	require.Equal(t, 1, h.SubscriberCount("ws-1"))

	s.Close()
	s.Close() // idempotent

	assert.Equal(t, 0, h.SubscriberCount("ws-1"))
	_, open := <-s.C()
	assert.False(t, open)
}

func TestHub_PresenceCarriesFullSnapshot(t *testing.T) {
	h := NewHub(8, zerolog.Nop())
	s := h.Subscribe("ws-1")
	defer s.Close()

	h.PublishPresence("ws-1", []model.PresenceUser{
		{UserID: "u1", DisplayName: "Ada", Status: model.PresenceOnline},
	})
	h.PublishPresence("ws-1", []model.PresenceUser{})

	ev := recv(t, s)
	assert.Equal(t, EventPresence, ev.Type)
	ev = recv(t, s)
	assert.Equal(t, EventPresence, ev.Type)
	assert.Contains(t, string(ev.Payload), `"users":[]`)
}
