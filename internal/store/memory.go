package store

import (
	"context"
	"sort"
	"sync"

	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
)

// feedLimit bounds the per-workspace activity and notification logs.
const feedLimit = 500

// Memory is the in-memory Store. All reads and writes work on deep clones
// so callers can never alias stored state.
type Memory struct {
	mu            sync.RWMutex
	workspaces    map[string]model.Workspace
	boards        map[string]model.Board
	activity      map[string][]model.ActivityEvent
	notifications map[string][]model.NotificationEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workspaces:    make(map[string]model.Workspace),
		boards:        make(map[string]model.Board),
		activity:      make(map[string][]model.ActivityEvent),
		notifications: make(map[string][]model.NotificationEvent),
	}
}

func (m *Memory) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, m.assembleLocked(ws))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetWorkspace(ctx context.Context, workspaceID string) (model.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return model.Workspace{}, derrors.ErrNotFound
	}
	return m.assembleLocked(ws), nil
}

// PutWorkspace stores workspace metadata. Boards travelling inside the
// workspace document are split out into the board table.
func (m *Memory) PutWorkspace(ctx context.Context, ws model.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := ws.Clone()
	for _, b := range cloned.Boards {
		b.WorkspaceID = cloned.ID
		m.boards[b.ID] = b
	}
	cloned.Boards = nil
	m.workspaces[cloned.ID] = cloned
	return nil
}

func (m *Memory) ArchiveWorkspace(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return derrors.ErrNotFound
	}
	ws.Archived = true
	m.workspaces[workspaceID] = ws
	return nil
}

func (m *Memory) GetBoard(ctx context.Context, boardID string) (model.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.boards[boardID]
	if !ok {
		return model.Board{}, derrors.ErrNotFound
	}
	return b.Clone(), nil
}

func (m *Memory) CreateBoard(ctx context.Context, b model.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.boards[b.ID]; exists {
		return derrors.ErrInvalidInput
	}
	if _, ok := m.workspaces[b.WorkspaceID]; !ok {
		return derrors.ErrNotFound
	}
	m.boards[b.ID] = b.Clone()
	return nil
}

// ReplaceBoard swaps the whole board document iff basis matches the stored
// stamp. A mismatch means another replace landed first; the caller refetches.
func (m *Memory) ReplaceBoard(ctx context.Context, b model.Board, basis int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.boards[b.ID]
	if !ok {
		return derrors.ErrNotFound
	}
	if stored.LastUpdated != basis {
		return derrors.ErrVersionConflict
	}
	next := b.Clone()
	next.WorkspaceID = stored.WorkspaceID
	m.boards[b.ID] = next
	return nil
}

func (m *Memory) AppendActivity(ctx context.Context, workspaceID string, ev model.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[workspaceID]; !ok {
		return derrors.ErrNotFound
	}
	m.activity[workspaceID] = capAppend(m.activity[workspaceID], ev)
	return nil
}

func (m *Memory) AppendNotification(ctx context.Context, workspaceID string, ev model.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[workspaceID]; !ok {
		return derrors.ErrNotFound
	}
	m.notifications[workspaceID] = capAppend(m.notifications[workspaceID], ev)
	return nil
}

// ListActivity returns activity newest first.
func (m *Memory) ListActivity(ctx context.Context, workspaceID string, limit int) ([]model.ActivityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.workspaces[workspaceID]; !ok {
		return nil, derrors.ErrNotFound
	}
	log := m.activity[workspaceID]
	out := make([]model.ActivityEvent, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, log[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// assembleLocked rebuilds the full workspace document: metadata plus its
// boards and recent feeds. Caller holds at least the read lock.
func (m *Memory) assembleLocked(ws model.Workspace) model.Workspace {
	out := ws.Clone()
	for _, b := range m.boards {
		if b.WorkspaceID == ws.ID {
			out.Boards = append(out.Boards, b.Clone())
		}
	}
	sort.Slice(out.Boards, func(i, j int) bool { return out.Boards[i].ID < out.Boards[j].ID })
	// Feeds travel newest first, matching ListActivity.
	out.Activity = reversed(m.activity[ws.ID])
	out.Notifications = reversed(m.notifications[ws.ID])
	return out
}

func reversed[T any](log []T) []T {
	out := make([]T, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
	}
	return out
}

func capAppend[T any](log []T, ev T) []T {
	log = append(log, ev)
	if len(log) > feedLimit {
		log = log[len(log)-feedLimit:]
	}
	return log
}
