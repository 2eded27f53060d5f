package stream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// Subscriber receives the events of one workspace subscription.
type Subscriber struct {
	hub         *Hub
	workspaceID string
	ch          chan Envelope
	once        sync.Once
}

// C is the subscriber's event channel. Closed when the subscription ends.
func (s *Subscriber) C() <-chan Envelope { return s.ch }

// Close ends the subscription.
func (s *Subscriber) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub fans push events out to every subscriber of a workspace. Publishing
// never blocks: a subscriber whose buffer is full loses the event, which is
// acceptable because board-updated is an invalidation signal and presence
// is a full snapshot on every tick; the next event supersedes the lost one.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{} // keyed by workspace ID
	buffer int
	logger zerolog.Logger
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger.With().Str("component", "stream_hub").Logger(),
	}
}

// Subscribe opens a subscription for one workspace. One stream per active
// workspace; board switches never resubscribe.
func (h *Hub) Subscribe(workspaceID string) *Subscriber {
	s := &Subscriber{
		hub:         h,
		workspaceID: workspaceID,
		ch:          make(chan Envelope, h.buffer),
	}
	h.mu.Lock()
	if h.subs[workspaceID] == nil {
		h.subs[workspaceID] = make(map[*Subscriber]struct{})
	}
	h.subs[workspaceID][s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[s.workspaceID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.workspaceID)
		}
	}
	h.mu.Unlock()
	close(s.ch)
}

// SubscriberCount returns the number of open subscriptions for a workspace.
func (h *Hub) SubscriberCount(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspaceID])
}

// Publish delivers an envelope to every subscriber of the workspace.
func (h *Hub) Publish(workspaceID string, ev Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[workspaceID] {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn().
				Str("workspace_id", workspaceID).
				Str("type", string(ev.Type)).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// PublishBoardUpdated broadcasts an invalidation signal for a board.
func (h *Hub) PublishBoardUpdated(workspaceID, boardID string, lastUpdated int64) {
	ev, err := NewBoardUpdated(boardID, lastUpdated)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode board-updated")
		return
	}
	h.Publish(workspaceID, ev)
}

// PublishActivity broadcasts an activity record.
func (h *Hub) PublishActivity(workspaceID string, rec model.ActivityEvent) {
	ev, err := NewActivity(rec)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode activity")
		return
	}
	h.Publish(workspaceID, ev)
}

// PublishNotification broadcasts a notification.
func (h *Hub) PublishNotification(workspaceID string, rec model.NotificationEvent) {
	ev, err := NewNotification(rec)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode notification")
		return
	}
	h.Publish(workspaceID, ev)
}

// PublishPresence broadcasts the full presence snapshot for a workspace.
func (h *Hub) PublishPresence(workspaceID string, users []model.PresenceUser) {
	ev, err := NewPresence(users)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode presence")
		return
	}
	h.Publish(workspaceID, ev)
}
