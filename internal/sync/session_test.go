package sync

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/capability"
	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/retry"
	"github.com/driftboard/driftboard/internal/stream"
)

type sessionBackend struct {
	mu       gosync.Mutex
	boards   map[string]model.Board
	fetches  map[string]int
	replaced []model.Board
	announce int
	leaves   int
	caps     []string
	capsGate chan struct{} // when non-nil, Capabilities blocks until closed
}

func newSessionBackend(boards ...model.Board) *sessionBackend {
	b := &sessionBackend{
		boards:  make(map[string]model.Board),
		fetches: make(map[string]int),
		caps:    capability.Known,
	}
	for _, bd := range boards {
		b.boards[bd.ID] = bd
	}
	return b
}

func (b *sessionBackend) FetchBoard(ctx context.Context, boardID string) (model.Board, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches[boardID]++
	bd, ok := b.boards[boardID]
	if !ok {
		return model.Board{}, derrors.ErrNotFound
	}
	return bd.Clone(), nil
}

func (b *sessionBackend) ReplaceBoard(ctx context.Context, bd model.Board, basis int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaced = append(b.replaced, bd.Clone())
	b.boards[bd.ID] = bd.Clone()
	return nil
}

func (b *sessionBackend) Announce(ctx context.Context, workspaceID, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.announce++
	return nil
}

func (b *sessionBackend) Leave(ctx context.Context, workspaceID, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves++
	return nil
}

func (b *sessionBackend) Capabilities(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	gate := b.capsGate
	caps := append([]string(nil), b.caps...)
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return caps, nil
}

func (b *sessionBackend) setBoard(bd model.Board) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boards[bd.ID] = bd.Clone()
}

func (b *sessionBackend) fetchCount(boardID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches[boardID]
}

func (b *sessionBackend) replacedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.replaced)
}

func (b *sessionBackend) leaveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leaves
}

// fakeStreamConn feeds scripted envelopes into the session's stream client.
type fakeStreamConn struct {
	msgs chan []byte
	done chan struct{}
	once gosync.Once
}

func newFakeStreamConn() *fakeStreamConn {
	return &fakeStreamConn{msgs: make(chan []byte, 8), done: make(chan struct{})}
}

func (c *fakeStreamConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.msgs:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeStreamConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeStreamConn) push(t *testing.T, env stream.Envelope) {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	c.msgs <- raw
}

func fastSessionConfig() SessionConfig {
	return SessionConfig{
		FeedCap:            10,
		NoticeDismissDelay: time.Minute,
		HeartbeatInterval:  50 * time.Millisecond,
		Retry:              retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Stream: stream.ClientConfig{
			Backoff:           retry.Config{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
			DegradedThreshold: 2,
		},
		CacheSize: 4,
	}
}

func sessionBoard(id string, stamp int64) model.Board {
	return model.Board{
		ID:          id,
		ProjectName: "Launch " + id,
		Columns: []model.Column{
			{ID: "todo", Title: "To Do", Cards: []model.Card{{ID: "c1", Title: "Ship it"}}},
		},
		LastUpdated: stamp,
	}
}

func TestSession_OpenAndGatedApply(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	require.Eventually(t, s.Gate().Loaded, time.Second, 5*time.Millisecond)

	got, err := s.Apply(context.Background(), capability.QuickComposer,
		board.AddCardOp("todo", model.Card{ID: "c2", Title: "Review"}))
	require.NoError(t, err)
	assert.Len(t, got.Columns[0].Cards, 2)
	assert.Greater(t, got.LastUpdated, int64(1000))
}

func TestSession_GateBlocksUngrantedCapability(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	backend.caps = []string{capability.QuickComposer}
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	require.Eventually(t, s.Gate().Loaded, time.Second, 5*time.Millisecond)

	before := s.View().Snapshot()
	_, err := s.Apply(context.Background(), capability.ManageColumns, board.AddColumnOp("done", "Done"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, derrors.ErrDenied))
	assert.Equal(t, before.LastUpdated, s.View().Snapshot().LastUpdated, "blocked mutation must not touch the board")
}

func TestSession_GateBlocksWhileLoading(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	backend.capsGate = make(chan struct{})
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	// The registry has not answered; the gate denies even programmatic calls.
	assert.False(t, s.Gate().Loaded())
	_, err := s.Apply(context.Background(), capability.QuickComposer,
		board.AddCardOp("todo", model.Card{ID: "c2", Title: "Too early"}))
	assert.True(t, stderrors.Is(err, derrors.ErrDenied))

	close(backend.capsGate)
	require.Eventually(t, s.Gate().Loaded, time.Second, 5*time.Millisecond)
	_, err = s.Apply(context.Background(), capability.QuickComposer,
		board.AddCardOp("todo", model.Card{ID: "c2", Title: "Now fine"}))
	assert.NoError(t, err)
}

func TestSession_PushInvalidationRefetchesActiveBoard(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	fresh := sessionBoard("b1", 2000)
	fresh.ProjectName = "Server Truth"
	backend.setBoard(fresh)

	env, err := stream.NewBoardUpdated("b1", 2000)
	require.NoError(t, err)
	conn.push(t, env)

	assert.Eventually(t, func() bool {
		return s.View().Snapshot().ProjectName == "Server Truth"
	}, time.Second, 5*time.Millisecond)
}

func TestSession_PushForInactiveBoardPoisonsCache(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000), sessionBoard("b2", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	require.NoError(t, s.SwitchBoard(context.Background(), "b2"))
	require.Equal(t, 1, backend.fetchCount("b2"))

	// b1 is cached, so switching back renders without a fetch.
	require.NoError(t, s.SwitchBoard(context.Background(), "b1"))
	assert.Equal(t, 1, backend.fetchCount("b1"))

	env, err := stream.NewBoardUpdated("b2", 2000)
	require.NoError(t, err)
	conn.push(t, env)

	// The invalidation lands against the cache, not the active view, so the
	// next switch to b2 must refetch.
	assert.Eventually(t, func() bool {
		if err := s.SwitchBoard(context.Background(), "b2"); err != nil {
			return false
		}
		return backend.fetchCount("b2") >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSession_SwitchBackAfterEditKeepsLatestSnapshot(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000), sessionBoard("b2", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	require.Eventually(t, s.Gate().Loaded, time.Second, 5*time.Millisecond)

	got, err := s.Apply(context.Background(), capability.QuickComposer,
		board.AddCardOp("todo", model.Card{ID: "c2", Title: "Review"}))
	require.NoError(t, err)
	edited := got.LastUpdated

	// The server echoes the persisted edit back. The view rightly drops the
	// stale stamp; the cached copy must not replay the pre-edit snapshot
	// either.
	require.Eventually(t, func() bool { return backend.replacedCount() == 1 }, time.Second, 5*time.Millisecond)
	env, err := stream.NewBoardUpdated("b1", edited)
	require.NoError(t, err)
	conn.push(t, env)

	require.NoError(t, s.SwitchBoard(context.Background(), "b2"))
	require.NoError(t, s.SwitchBoard(context.Background(), "b1"))

	snap := s.View().Snapshot()
	assert.Len(t, snap.Columns[0].Cards, 2)
	assert.Equal(t, edited, snap.LastUpdated, "stamps observed by one client never rewind")
}

func TestSession_SwitchBackAfterRemoteEditKeepsServerState(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000), sessionBoard("b2", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	fresh := sessionBoard("b1", 2000)
	fresh.ProjectName = "Server Truth"
	backend.setBoard(fresh)

	env, err := stream.NewBoardUpdated("b1", 2000)
	require.NoError(t, err)
	conn.push(t, env)

	require.Eventually(t, func() bool {
		return s.View().Snapshot().ProjectName == "Server Truth"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.SwitchBoard(context.Background(), "b2"))
	require.NoError(t, s.SwitchBoard(context.Background(), "b1"))

	snap := s.View().Snapshot()
	assert.Equal(t, "Server Truth", snap.ProjectName)
	assert.Equal(t, int64(2000), snap.LastUpdated)
}

func TestSession_StreamEventsFillFeeds(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	act, err := stream.NewActivity(model.ActivityEvent{ID: "a1", Verb: "card-moved", Subject: "c1"})
	require.NoError(t, err)
	conn.push(t, act)

	pres, err := stream.NewPresence([]model.PresenceUser{{UserID: "u1", DisplayName: "Ada"}})
	require.NoError(t, err)
	conn.push(t, pres)

	assert.Eventually(t, func() bool {
		return len(s.Feeds().Activity()) == 1 && len(s.Feeds().Presence()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_DegradedStreamRaisesNotice(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) {
		return nil, io.ErrUnexpectedEOF
	}

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))
	defer s.Close()

	assert.Eventually(t, func() bool {
		cur, ok := s.Feeds().Current()
		return ok && cur.Level == model.NoticeError
	}, time.Second, 5*time.Millisecond)
}

func TestSession_CloseSendsLeave(t *testing.T) {
	backend := newSessionBackend(sessionBoard("b1", 1000))
	conn := newFakeStreamConn()
	dial := func(ctx context.Context, workspaceID string) (stream.Conn, error) { return conn, nil }

	s := NewSession(backend, dial, fastSessionConfig(), zerolog.Nop())
	require.NoError(t, s.Open(context.Background(), "ws-1", "b1"))

	s.Close()
	assert.Equal(t, 1, backend.leaveCount())
}
