// Package stream carries the push channel between the server and every
// connected viewer of a workspace: typed event envelopes, the server-side
// fan-out hub, and the reconnecting client.
//
// A board-updated event is an invalidation signal only. It never carries
// board content; the refetch is authoritative.
package stream

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/driftboard/driftboard/internal/model"
)

// EventType identifies the kind of push event.
type EventType string

const (
	EventBoardUpdated EventType = "board-updated"
	EventActivity     EventType = "activity"
	EventNotification EventType = "notification"
	EventPresence     EventType = "presence"
)

// Envelope is the wire format of one push event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// BoardUpdatedPayload tells clients their cached copy of a board may be
// stale. LastUpdated lets them drop stale or duplicate signals.
type BoardUpdatedPayload struct {
	BoardID     string `json:"boardId"`
	LastUpdated int64  `json:"lastUpdated"`
}

// PresencePayload is the full presence snapshot for the workspace. Clients
// replace their presence list wholesale, never merge.
type PresencePayload struct {
	Users []model.PresenceUser `json:"users"`
}

func newEnvelope(evType EventType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      evType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewBoardUpdated builds a board-updated envelope.
func NewBoardUpdated(boardID string, lastUpdated int64) (Envelope, error) {
	return newEnvelope(EventBoardUpdated, BoardUpdatedPayload{BoardID: boardID, LastUpdated: lastUpdated})
}

// NewActivity builds an activity envelope.
func NewActivity(ev model.ActivityEvent) (Envelope, error) {
	return newEnvelope(EventActivity, ev)
}

// NewNotification builds a notification envelope.
func NewNotification(ev model.NotificationEvent) (Envelope, error) {
	return newEnvelope(EventNotification, ev)
}

// NewPresence builds a presence snapshot envelope.
func NewPresence(users []model.PresenceUser) (Envelope, error) {
	return newEnvelope(EventPresence, PresencePayload{Users: users})
}
