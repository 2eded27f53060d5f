package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/capability"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/presence"
	"github.com/driftboard/driftboard/internal/retry"
	"github.com/driftboard/driftboard/internal/stream"
)

// Backend is everything the session needs from the server side.
type Backend interface {
	Fetcher
	Persister
	presence.Announcer
	Capabilities(ctx context.Context) ([]string, error)
}

// SessionConfig tunes one workspace session.
type SessionConfig struct {
	FeedCap            int
	NoticeDismissDelay time.Duration
	HeartbeatInterval  time.Duration
	Retry              retry.Config
	Stream             stream.ClientConfig
	CacheSize          int
}

// DefaultSessionConfig returns the reference tuning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FeedCap:            50,
		NoticeDismissDelay: 5 * time.Second,
		HeartbeatInterval:  12 * time.Second,
		Retry:              retry.DefaultConfig(),
		Stream:             stream.DefaultClientConfig(),
		CacheSize:          8,
	}
}

// Session is one user's live connection to a workspace: the active board
// view, the feed logs, presence heartbeats, the capability gate and the
// single event stream. One stream per workspace; switching the active board
// never reconnects.
type Session struct {
	cfg     SessionConfig
	backend Backend
	dial    stream.DialFunc

	workspaceID string
	feeds       *Feeds
	cache       *Snapcache
	gate        *capability.Gate
	heartbeat   *presence.Heartbeat
	view        *BoardView

	streamCancel context.CancelFunc
	logger       zerolog.Logger
}

// NewSession creates an unopened session.
func NewSession(backend Backend, dial stream.DialFunc, cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.FeedCap == 0 {
		cfg = DefaultSessionConfig()
	}
	log := logger.With().Str("component", "session").Logger()
	return &Session{
		cfg:       cfg,
		backend:   backend,
		dial:      dial,
		feeds:     NewFeeds(cfg.FeedCap, cfg.NoticeDismissDelay, logger),
		cache:     NewSnapcache(cfg.CacheSize),
		gate:      capability.NewGate(logger),
		heartbeat: presence.NewHeartbeat(backend, cfg.HeartbeatInterval, logger),
		logger:    log,
	}
}

// Open enters a workspace and board: fetches the initial snapshot, opens
// the push stream, starts heartbeats and resolves capabilities.
func (s *Session) Open(ctx context.Context, workspaceID, boardID string) error {
	b, err := retryFetch(ctx, s.cfg.Retry, s.backend, boardID)
	if err != nil {
		return fmt.Errorf("open board %s: %w", boardID, err)
	}

	s.workspaceID = workspaceID
	s.view = NewBoardView(b, s.backend, s.backend, s.feeds, s.cfg.Retry, s.logger)
	s.cache.Put(b)

	streamCtx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel
	client := stream.NewClient(s.dial, s.handler(), s.cfg.Stream, s.logger)
	go client.Run(streamCtx, workspaceID)

	s.heartbeat.Start(workspaceID, boardID)

	// The gate stays in the loading state until the registry answers;
	// controls must not render a false negative meanwhile.
	go s.loadCapabilities(streamCtx)

	s.logger.Info().Str("workspace_id", workspaceID).Str("board_id", boardID).Msg("session open")
	return nil
}

func (s *Session) loadCapabilities(ctx context.Context) {
	var granted []string
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		ids, err := s.backend.Capabilities(ctx)
		if err != nil {
			return err
		}
		granted = ids
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("capability registry unavailable, gate stays loading")
		return
	}
	s.gate.SetGranted(granted)
}

// handler routes stream events into the session.
func (s *Session) handler() stream.Handler {
	return stream.Handler{
		BoardUpdated: func(boardID string, stamp int64) {
			// Any cached copy is now suspect, the active board's included:
			// a later switch back to it must refetch, not replay the entry
			// cached before this push.
			s.cache.MarkDirty(boardID)
			if s.view != nil && s.view.BoardID() == boardID {
				s.view.Invalidate(context.Background(), boardID, stamp)
			}
		},
		Activity:     s.feeds.AddActivity,
		Notification: s.feeds.AddNotification,
		Presence:     s.feeds.ReplacePresence,
		Degraded: func(failures int) {
			s.feeds.Notify(model.NoticeError,
				fmt.Sprintf("Realtime updates are degraded after %d failed reconnects. The board may be stale.", failures))
		},
	}
}

// Apply runs a capability-gated mutation on the active board. The gate
// blocks the mutation outright when the capability is missing or still
// loading, even for programmatic callers.
func (s *Session) Apply(ctx context.Context, capID string, mut board.Mutation) (model.Board, error) {
	var out model.Board
	err := s.gate.Guard(capID, func() error {
		out = s.view.Apply(ctx, mut)
		return nil
	})
	if err != nil {
		return model.Board{}, err
	}
	return out, nil
}

// SwitchBoard retargets the session to another board in the same
// workspace. A clean cached snapshot renders immediately; otherwise the
// board is fetched. The stream connection is untouched.
func (s *Session) SwitchBoard(ctx context.Context, boardID string) error {
	if s.view != nil {
		// Write the outgoing board's latest state back so a later switch
		// never rewinds to the snapshot cached at entry.
		s.cache.Refresh(s.view.Snapshot())
	}
	if b, ok := s.cache.Get(boardID); ok {
		s.view.SwitchBoard(ctx, b)
		s.heartbeat.SetBoard(boardID)
		return nil
	}

	b, err := retryFetch(ctx, s.cfg.Retry, s.backend, boardID)
	if err != nil {
		return fmt.Errorf("switch board %s: %w", boardID, err)
	}
	s.view.SwitchBoard(ctx, b)
	s.cache.Put(b)
	s.heartbeat.SetBoard(boardID)
	return nil
}

// Close leaves the workspace: best-effort presence leave, stream teardown,
// timer cleanup.
func (s *Session) Close() {
	s.heartbeat.Stop()
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	s.feeds.Stop()
	s.logger.Info().Str("workspace_id", s.workspaceID).Msg("session closed")
}

// Feeds exposes the bounded feed logs.
func (s *Session) Feeds() *Feeds { return s.feeds }

// Gate exposes the capability gate.
func (s *Session) Gate() *capability.Gate { return s.gate }

// View exposes the active board view.
func (s *Session) View() *BoardView { return s.view }
