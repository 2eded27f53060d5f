// Package sync implements the client side of the collaboration engine: the
// optimistic board view, the bounded feed logs, the snapshot cache and the
// per-workspace session that wires them to the event stream.
package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// Feeds holds the bounded, prepend-only activity and notification logs plus
// the wholesale-replaced presence projection. Oldest entries drop silently
// once the cap is exceeded.
type Feeds struct {
	mu            sync.Mutex
	cap           int
	dismissDelay  time.Duration
	activity      []model.ActivityEvent
	notifications []model.NotificationEvent
	presence      []model.PresenceUser
	current       *model.NotificationEvent
	dismissTimer  *time.Timer
	logger        zerolog.Logger
}

// NewFeeds creates feed logs capped at capacity entries each. The most
// recent notification auto-dismisses after dismissDelay (reference: 5s)
// unless dismissed earlier.
func NewFeeds(capacity int, dismissDelay time.Duration, logger zerolog.Logger) *Feeds {
	if capacity < 1 {
		capacity = 50
	}
	return &Feeds{
		cap:          capacity,
		dismissDelay: dismissDelay,
		logger:       logger.With().Str("component", "feeds").Logger(),
	}
}

// AddActivity prepends an activity record.
func (f *Feeds) AddActivity(ev model.ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = prepend(f.activity, ev, f.cap)
}

// AddNotification prepends a notification and makes it the current toast.
func (f *Feeds) AddNotification(ev model.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = prepend(f.notifications, ev, f.cap)
	f.current = &ev
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
	}
	if f.dismissDelay > 0 {
		id := ev.ID
		f.dismissTimer = time.AfterFunc(f.dismissDelay, func() { f.dismissIf(id) })
	}
}

// Notify is a convenience for locally-generated notices (persist failures,
// degraded stream, capability denials).
func (f *Feeds) Notify(level model.NotificationLevel, message string) {
	f.AddNotification(model.NotificationEvent{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// Current returns the active toast, if any.
func (f *Feeds) Current() (model.NotificationEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return model.NotificationEvent{}, false
	}
	return *f.current, true
}

// Dismiss clears the active toast ahead of its timer.
func (f *Feeds) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
		f.dismissTimer = nil
	}
}

func (f *Feeds) dismissIf(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && f.current.ID == id {
		f.current = nil
	}
}

// Activity returns a copy of the activity log, newest first.
func (f *Feeds) Activity() []model.ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ActivityEvent(nil), f.activity...)
}

// Notifications returns a copy of the notification log, newest first.
func (f *Feeds) Notifications() []model.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.NotificationEvent(nil), f.notifications...)
}

// ReplacePresence swaps the presence projection wholesale. Presence is
// never merged: an empty snapshot empties the view.
func (f *Feeds) ReplacePresence(users []model.PresenceUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append([]model.PresenceUser(nil), users...)
}

// Presence returns the current presence projection.
func (f *Feeds) Presence() []model.PresenceUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PresenceUser(nil), f.presence...)
}

// Stop cancels the dismiss timer.
func (f *Feeds) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
		f.dismissTimer = nil
	}
}

func prepend[T any](list []T, ev T, cap int) []T {
	out := make([]T, 0, min(len(list)+1, cap))
	out = append(out, ev)
	for _, v := range list {
		if len(out) == cap {
			break
		}
		out = append(out, v)
	}
	return out
}
