// Package store persists workspaces and board snapshots. Two
// implementations share one interface: an in-memory store for tests and
// ephemeral runs, and a SQLite store for durable deployments.
package store

import (
	"context"

	"github.com/driftboard/driftboard/internal/model"
)

// Store is the persistence surface the server runs on.
//
// ReplaceBoard is a whole-document compare-and-swap: basis must equal the
// stored board's LastUpdated or the call fails with ErrVersionConflict and
// nothing is written. Workspaces are archived, never deleted.
type Store interface {
	ListWorkspaces(ctx context.Context) ([]model.Workspace, error)
	GetWorkspace(ctx context.Context, workspaceID string) (model.Workspace, error)
	PutWorkspace(ctx context.Context, ws model.Workspace) error
	ArchiveWorkspace(ctx context.Context, workspaceID string) error

	GetBoard(ctx context.Context, boardID string) (model.Board, error)
	CreateBoard(ctx context.Context, b model.Board) error
	ReplaceBoard(ctx context.Context, b model.Board, basis int64) error

	AppendActivity(ctx context.Context, workspaceID string, ev model.ActivityEvent) error
	AppendNotification(ctx context.Context, workspaceID string, ev model.NotificationEvent) error
	ListActivity(ctx context.Context, workspaceID string, limit int) ([]model.ActivityEvent, error)

	Close() error
}
