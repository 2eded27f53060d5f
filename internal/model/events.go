package model

import "time"

// PresenceStatus is the liveness state of a viewer.
type PresenceStatus string

const (
	PresenceOnline PresenceStatus = "online"
	PresenceIdle   PresenceStatus = "idle"
)

// PresenceUser is an ephemeral record of one viewer of a workspace/board.
// It is reconstructed entirely from heartbeats and never persisted.
type PresenceUser struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Status      PresenceStatus `json:"status"`
	BoardID     string         `json:"boardId,omitempty"`
	LastPing    time.Time      `json:"lastPing"`
}

// ActivityEvent is an immutable, append-only record of something that
// happened in a workspace.
type ActivityEvent struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	BoardID     string    `json:"boardId,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	Verb        string    `json:"verb"`
	Subject     string    `json:"subject,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotificationLevel classifies a notification for display.
type NotificationLevel string

const (
	NoticeInfo    NotificationLevel = "info"
	NoticeWarning NotificationLevel = "warning"
	NoticeError   NotificationLevel = "error"
)

// NotificationEvent is an immutable, timestamped user-facing notice.
type NotificationEvent struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspaceId,omitempty"`
	Level       NotificationLevel `json:"level"`
	Message     string            `json:"message"`
	Timestamp   time.Time         `json:"timestamp"`
}
