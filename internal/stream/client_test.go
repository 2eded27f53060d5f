package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/retry"
)

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m, ok := <-f.msgs:
		if !ok {
			return nil, errors.New("connection dropped")
		}
		return m, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) push(t *testing.T, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	f.msgs <- data
}

func fastBackoff() ClientConfig {
	return ClientConfig{
		Backoff:           retry.Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		DegradedThreshold: 3,
	}
}

type collected struct {
	mu            sync.Mutex
	boardUpdates  []BoardUpdatedPayload
	activities    []model.ActivityEvent
	notifications []model.NotificationEvent
	presence      [][]model.PresenceUser
	degraded      []int
}

func (c *collected) handler() Handler {
	return Handler{
		BoardUpdated: func(boardID string, stamp int64) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.boardUpdates = append(c.boardUpdates, BoardUpdatedPayload{BoardID: boardID, LastUpdated: stamp})
		},
		Activity: func(ev model.ActivityEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.activities = append(c.activities, ev)
		},
		Notification: func(ev model.NotificationEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.notifications = append(c.notifications, ev)
		},
		Presence: func(users []model.PresenceUser) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.presence = append(c.presence, users)
		},
		Degraded: func(failures int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.degraded = append(c.degraded, failures)
		},
	}
}

func TestClient_DemultiplexesEventTypes(t *testing.T) {
	conn := newFakeConn()
	col := &collected{}
	c := NewClient(func(context.Context, string) (Conn, error) { return conn, nil },
		col.handler(), fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "ws-1")

	bu, _ := NewBoardUpdated("board-1", 77)
	conn.push(t, bu)
	act, _ := NewActivity(model.ActivityEvent{ID: "a1", Verb: "card.moved"})
	conn.push(t, act)
	note, _ := NewNotification(model.NotificationEvent{ID: "n1", Message: "saved"})
	conn.push(t, note)
	pres, _ := NewPresence([]model.PresenceUser{{UserID: "u1"}})
	conn.push(t, pres)

	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return len(col.boardUpdates) == 1 && len(col.activities) == 1 &&
			len(col.notifications) == 1 && len(col.presence) == 1
	}, time.Second, time.Millisecond)

	col.mu.Lock()
	defer col.mu.Unlock()
	assert.Equal(t, "board-1", col.boardUpdates[0].BoardID)
	assert.Equal(t, int64(77), col.boardUpdates[0].LastUpdated)
	assert.Equal(t, "card.moved", col.activities[0].Verb)
}

func TestClient_MalformedPayloadDoesNotKillStream(t *testing.T) {
	conn := newFakeConn()
	col := &collected{}
	c := NewClient(func(context.Context, string) (Conn, error) { return conn, nil },
		col.handler(), fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "ws-1")

	conn.msgs <- []byte("{not json")
	conn.msgs <- []byte(`{"type":"board-updated","payload":"not-an-object"}`)
	good, _ := NewBoardUpdated("board-1", 5)
	conn.push(t, good)

	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return len(col.boardUpdates) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateOpen, c.State())
}

func TestClient_EmptyPresenceReplacesWholesale(t *testing.T) {
	conn := newFakeConn()
	col := &collected{}
	c := NewClient(func(context.Context, string) (Conn, error) { return conn, nil },
		col.handler(), fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "ws-1")

	pres, _ := NewPresence([]model.PresenceUser{{UserID: "u1"}, {UserID: "u2"}})
	conn.push(t, pres)
	empty, _ := NewPresence([]model.PresenceUser{})
	conn.push(t, empty)

	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return len(col.presence) == 2
	}, time.Second, time.Millisecond)

	col.mu.Lock()
	defer col.mu.Unlock()
	assert.Len(t, col.presence[0], 2)
	assert.Empty(t, col.presence[1])
	assert.NotNil(t, col.presence[1])
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	col := &collected{}

	c := NewClient(func(context.Context, string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if dials >= len(conns) {
			return nil, errors.New("no more conns")
		}
		conn := conns[dials]
		dials++
		return conn, nil
	}, col.handler(), fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "ws-1")

	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, time.Millisecond)
	close(conns[0].msgs) // drop the first connection

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 2 && c.State() == StateOpen
	}, time.Second, time.Millisecond)

	bu, _ := NewBoardUpdated("board-1", 9)
	conns[1].push(t, bu)
	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return len(col.boardUpdates) == 1
	}, time.Second, time.Millisecond)
}

func TestClient_DegradedAfterThreshold(t *testing.T) {
	col := &collected{}
	c := NewClient(func(context.Context, string) (Conn, error) {
		return nil, errors.New("server unreachable")
	}, col.handler(), fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, "ws-1")

	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return len(col.degraded) == 1
	}, time.Second, time.Millisecond)

	col.mu.Lock()
	defer col.mu.Unlock()
	assert.Equal(t, 3, col.degraded[0])
}

func TestClient_StopsOnContextCancel(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(func(context.Context, string) (Conn, error) { return conn, nil },
		Handler{}, fastBackoff(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx, "ws-1"); close(done) }()

	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client did not stop on cancel")
	}
	assert.Equal(t, StateClosed, c.State())
}
