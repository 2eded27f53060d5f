package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Announcer sends presence signals to the server.
type Announcer interface {
	Announce(ctx context.Context, workspaceID, boardID string) error
	Leave(ctx context.Context, workspaceID, boardID string) error
}

// Heartbeat announces liveness for the current workspace/board pair on a
// fixed interval. Announce failures are logged and never surface to the
// caller; the server-side TTL covers lost signals.
type Heartbeat struct {
	announcer Announcer
	interval  time.Duration
	logger    zerolog.Logger

	mu          sync.Mutex
	workspaceID string
	boardID     string
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHeartbeat creates a manager. The reference interval is 12s.
func NewHeartbeat(announcer Announcer, interval time.Duration, logger zerolog.Logger) *Heartbeat {
	return &Heartbeat{
		announcer: announcer,
		interval:  interval,
		logger:    logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Start announces immediately, then on every interval tick, until Stop.
// Starting into the same workspace just follows the board switch; a new
// workspace tears down the old loop (with its leave signal) first.
func (h *Heartbeat) Start(workspaceID, boardID string) {
	h.mu.Lock()
	if h.cancel != nil && h.workspaceID == workspaceID {
		h.boardID = boardID
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.Stop()

	h.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	h.workspaceID = workspaceID
	h.boardID = boardID
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.loop(ctx, done)
}

// SetBoard follows a board switch within the same workspace.
func (h *Heartbeat) SetBoard(boardID string) {
	h.mu.Lock()
	h.boardID = boardID
	h.mu.Unlock()
}

// Stop sends a best-effort leave signal, then cancels the interval timer
// and waits for the loop to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if h.cancel == nil {
		h.mu.Unlock()
		return
	}
	ws, board := h.workspaceID, h.boardID
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.done = nil
	h.mu.Unlock()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := h.announcer.Leave(leaveCtx, ws, board); err != nil {
		h.logger.Debug().Err(err).Msg("leave signal failed; TTL will age us out")
	}
	leaveCancel()

	cancel()
	<-done
}

func (h *Heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	h.announce(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.announce(ctx)
		}
	}
}

func (h *Heartbeat) announce(ctx context.Context) {
	h.mu.Lock()
	ws, board := h.workspaceID, h.boardID
	h.mu.Unlock()

	if err := h.announcer.Announce(ctx, ws, board); err != nil {
		h.logger.Debug().Err(err).Str("workspace_id", ws).Msg("heartbeat failed")
	}
}
