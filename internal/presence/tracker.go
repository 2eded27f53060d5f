// Package presence derives who is currently viewing a workspace from
// heartbeats. Presence is a projection: nothing here is durable, a record
// exists only as long as its TTL.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// PublishFunc receives the full presence snapshot for a workspace whenever
// it changes. Presence is never diffed; every publish replaces the prior
// list wholesale.
type PublishFunc func(workspaceID string, users []model.PresenceUser)

type entry struct {
	user        model.PresenceUser
	workspaceID string
}

// Tracker ages heartbeats into per-workspace presence snapshots.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]entry // userID → latest heartbeat
	ttl     time.Duration
	publish PublishFunc
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// NewTracker creates a tracker. Users whose last ping is older than ttl are
// swept; users past half the ttl are reported idle.
func NewTracker(ttl time.Duration, publish PublishFunc, logger zerolog.Logger) *Tracker {
	return &Tracker{
		entries: make(map[string]entry),
		ttl:     ttl,
		publish: publish,
		logger:  logger.With().Str("component", "presence_tracker").Logger(),
		nowFn:   time.Now,
	}
}

// Heartbeat records a liveness announcement for a user viewing a
// workspace, optionally scoped to one board.
func (t *Tracker) Heartbeat(workspaceID, boardID, userID, displayName string) {
	t.mu.Lock()
	t.entries[userID] = entry{
		workspaceID: workspaceID,
		user: model.PresenceUser{
			UserID:      userID,
			DisplayName: displayName,
			BoardID:     boardID,
			LastPing:    t.nowFn(),
		},
	}
	users := t.snapshotLocked(workspaceID)
	t.mu.Unlock()

	t.publish(workspaceID, users)
}

// Leave drops a user immediately. Best-effort on the client side; the TTL
// sweep is the authoritative path for crashed tabs.
func (t *Tracker) Leave(workspaceID, userID string) {
	t.mu.Lock()
	_, known := t.entries[userID]
	delete(t.entries, userID)
	users := t.snapshotLocked(workspaceID)
	t.mu.Unlock()

	if known {
		t.publish(workspaceID, users)
	}
}

// Count returns the number of tracked users across all workspaces.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns the current presence list for a workspace.
func (t *Tracker) Snapshot(workspaceID string) []model.PresenceUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(workspaceID)
}

// Run sweeps expired entries until ctx is cancelled. Workspaces that lost a
// user get a fresh snapshot published.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	cutoff := t.nowFn().Add(-t.ttl)
	touched := map[string][]model.PresenceUser{}
	for id, e := range t.entries {
		if e.user.LastPing.Before(cutoff) {
			delete(t.entries, id)
			touched[e.workspaceID] = nil
		}
	}
	for ws := range touched {
		touched[ws] = t.snapshotLocked(ws)
	}
	t.mu.Unlock()

	for ws, users := range touched {
		t.logger.Debug().Str("workspace_id", ws).Int("remaining", len(users)).Msg("presence swept")
		t.publish(ws, users)
	}
}

// snapshotLocked builds the ordered presence list for a workspace. Status
// is derived from ping age: recent pings are online, older ones idle.
func (t *Tracker) snapshotLocked(workspaceID string) []model.PresenceUser {
	now := t.nowFn()
	idleCutoff := now.Add(-t.ttl / 2)
	expireCutoff := now.Add(-t.ttl)

	users := make([]model.PresenceUser, 0, len(t.entries))
	for _, e := range t.entries {
		if e.workspaceID != workspaceID || e.user.LastPing.Before(expireCutoff) {
			continue
		}
		u := e.user
		if u.LastPing.Before(idleCutoff) {
			u.Status = model.PresenceIdle
		} else {
			u.Status = model.PresenceOnline
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}
