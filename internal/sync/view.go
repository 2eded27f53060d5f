package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/board"
	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/retry"
)

// Fetcher loads the authoritative snapshot of a board.
type Fetcher interface {
	FetchBoard(ctx context.Context, boardID string) (model.Board, error)
}

// Persister replaces the authoritative snapshot of a board. basis is the
// LastUpdated stamp the client's edit was built on; the server rejects the
// replace with a version conflict when the stored stamp no longer matches.
type Persister interface {
	ReplaceBoard(ctx context.Context, b model.Board, basis int64) error
}

// BoardView owns the local snapshot of the active board.
//
// Mutations apply synchronously to the in-memory snapshot (edits render
// instantly) and persist in the background. Persistence failures are never
// rolled back: they surface as a notification and the next successful push
// or refetch reconciles. An inbound invalidation always wins over local
// unconfirmed state.
type BoardView struct {
	mu        sync.Mutex
	boardID   string
	snapshot  model.Board
	confirmed int64  // last stamp the server is known to hold
	epoch     uint64 // bumped on board switch; stale refetches are discarded
	dirty     bool
	flushing  bool

	fetcher   Fetcher
	persister Persister
	feeds     *Feeds
	retryCfg  retry.Config
	logger    zerolog.Logger
	nowFn     func() time.Time

	// onSettle, when set, observes the outcome of each background persist
	// or refetch. Used by tests and the session's metrics hooks.
	onSettle func(op string, err error)
}

// NewBoardView creates a view seeded with a fetched snapshot.
func NewBoardView(b model.Board, fetcher Fetcher, persister Persister, feeds *Feeds, retryCfg retry.Config, logger zerolog.Logger) *BoardView {
	return &BoardView{
		boardID:   b.ID,
		snapshot:  b.Clone(),
		confirmed: b.LastUpdated,
		fetcher:   fetcher,
		persister: persister,
		feeds:     feeds,
		retryCfg:  retryCfg,
		logger:    logger.With().Str("component", "board_view").Logger(),
		nowFn:     time.Now,
	}
}

// SetSettleHook registers an observer for background outcomes.
func (v *BoardView) SetSettleHook(fn func(op string, err error)) {
	v.mu.Lock()
	v.onSettle = fn
	v.mu.Unlock()
}

// BoardID returns the id of the board this view holds.
func (v *BoardView) BoardID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.boardID
}

// Snapshot returns a copy of the local truth.
func (v *BoardView) Snapshot() model.Board {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot.Clone()
}

// Apply runs a mutation against the local snapshot and schedules
// persistence. The returned snapshot already reflects the edit. A mutation
// that does not change the board (unknown id, empty rename) is dropped
// without a persistence request.
func (v *BoardView) Apply(ctx context.Context, mut board.Mutation) model.Board {
	v.mu.Lock()
	next := mut.Apply(v.snapshot, v.nowFn())
	if next.LastUpdated == v.snapshot.LastUpdated {
		out := v.snapshot.Clone()
		v.mu.Unlock()
		v.logger.Debug().Str("op", mut.Op).Msg("mutation was a no-op")
		return out
	}
	v.snapshot = next
	v.dirty = true
	start := !v.flushing
	if start {
		v.flushing = true
	}
	out := next.Clone()
	v.mu.Unlock()

	v.logger.Debug().Str("op", mut.Op).Int64("stamp", out.LastUpdated).Msg("mutation applied")
	if start {
		// The flusher outlives the caller: an edit already rendered must
		// still reach the server after the originating request's ctx ends.
		go v.flush(context.WithoutCancel(ctx))
	}
	return out
}

// flush drains the dirty flag, sending the freshest snapshot each round.
// Persistence of individual mutations is deliberately coalesced: ordering
// on the wire carries no guarantee, reconciliation is refetch-based.
func (v *BoardView) flush(ctx context.Context) {
	for {
		v.mu.Lock()
		if !v.dirty {
			v.flushing = false
			v.mu.Unlock()
			return
		}
		v.dirty = false
		snap := v.snapshot.Clone()
		basis := v.confirmed
		epoch := v.epoch
		v.mu.Unlock()

		err := retry.Do(ctx, v.retryCfg, func(ctx context.Context) error {
			return v.persister.ReplaceBoard(ctx, snap, basis)
		})

		switch {
		case err == nil:
			v.mu.Lock()
			if v.epoch == epoch && v.confirmed < snap.LastUpdated {
				v.confirmed = snap.LastUpdated
			}
			v.mu.Unlock()
		case errors.Is(err, derrors.ErrVersionConflict):
			// Someone else replaced the board under us. The refetched
			// server copy wins; our unconfirmed edits are discarded.
			v.logger.Info().Str("board_id", snap.ID).Msg("replace conflicted, refetching")
			v.refetch(ctx, epoch, "conflict")
		default:
			v.logger.Warn().Err(err).Str("board_id", snap.ID).Msg("persist failed, keeping optimistic state")
			if v.feeds != nil {
				v.feeds.Notify(model.NoticeWarning, "Couldn't save your latest change. It will reconcile on the next refresh.")
			}
		}
		v.settle("persist", err)
	}
}

// Invalidate handles a board-updated push. Signals for other boards and
// stale or duplicate stamps are ignored; a fresh signal triggers an
// asynchronous refetch, never a payload merge.
func (v *BoardView) Invalidate(ctx context.Context, boardID string, stamp int64) {
	v.mu.Lock()
	if boardID != v.boardID {
		v.mu.Unlock()
		return
	}
	if stamp != 0 && stamp <= v.snapshot.LastUpdated {
		v.mu.Unlock()
		v.logger.Debug().Str("board_id", boardID).Int64("stamp", stamp).Msg("stale push ignored")
		v.settle("stale-push", nil)
		return
	}
	epoch := v.epoch
	v.mu.Unlock()

	go v.refetch(ctx, epoch, "push")
}

// Refresh refetches the active board synchronously (manual refresh).
func (v *BoardView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	epoch := v.epoch
	v.mu.Unlock()
	return v.refetchOnce(ctx, epoch, "manual")
}

func (v *BoardView) refetch(ctx context.Context, epoch uint64, trigger string) {
	if err := v.refetchOnce(ctx, epoch, trigger); err != nil {
		if v.feeds != nil {
			v.feeds.Notify(model.NoticeWarning, "Couldn't refresh the board. Showing the last known state.")
		}
	}
}

func (v *BoardView) refetchOnce(ctx context.Context, epoch uint64, trigger string) error {
	v.mu.Lock()
	boardID := v.boardID
	v.mu.Unlock()

	b, err := retryFetch(ctx, v.retryCfg, v.fetcher, boardID)
	if err != nil {
		v.logger.Warn().Err(err).Str("board_id", boardID).Str("trigger", trigger).Msg("refetch failed")
		v.settle("refetch", err)
		return err
	}

	v.mu.Lock()
	if v.epoch != epoch || v.boardID != b.ID {
		// The view moved on while we were in flight; this result no
		// longer corresponds to the active board.
		v.mu.Unlock()
		v.logger.Debug().Str("board_id", b.ID).Msg("stale refetch discarded")
		v.settle("refetch-discarded", nil)
		return nil
	}
	v.snapshot = b.Clone()
	v.confirmed = b.LastUpdated
	v.dirty = false
	v.mu.Unlock()

	v.logger.Debug().Str("board_id", b.ID).Str("trigger", trigger).Int64("stamp", b.LastUpdated).Msg("snapshot replaced from server")
	v.settle("refetch", nil)
	return nil
}

// SwitchBoard retargets the view to another board. Any in-flight refetch
// for the previous board is invalidated by the epoch bump and will be
// discarded when it lands.
func (v *BoardView) SwitchBoard(ctx context.Context, b model.Board) {
	v.mu.Lock()
	v.epoch++
	v.boardID = b.ID
	v.snapshot = b.Clone()
	v.confirmed = b.LastUpdated
	v.dirty = false
	v.mu.Unlock()
	v.logger.Info().Str("board_id", b.ID).Msg("switched board")
}

func (v *BoardView) settle(op string, err error) {
	v.mu.Lock()
	fn := v.onSettle
	v.mu.Unlock()
	if fn != nil {
		fn(op, err)
	}
}

func retryFetch(ctx context.Context, cfg retry.Config, f Fetcher, boardID string) (model.Board, error) {
	var out model.Board
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		b, err := f.FetchBoard(ctx, boardID)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}
