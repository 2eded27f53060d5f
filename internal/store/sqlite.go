package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
)

// SQLite is the durable Store. Workspaces and boards are stored as JSON
// documents; the board row carries an indexed copy of the version stamp so
// the compare-and-swap runs inside a single UPDATE.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewSQLite opens (or creates) the database file and runs migrations.
func NewSQLite(dbPath string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("store initialized")
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspaces (
		id       TEXT PRIMARY KEY,
		doc      TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS boards (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		doc          TEXT NOT NULL,
		last_updated INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_boards_workspace ON boards(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_boards_updated ON boards(last_updated);

	CREATE TABLE IF NOT EXISTS activity (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		doc          TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_workspace ON activity(workspace_id, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		doc          TEXT NOT NULL,
		created_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_workspace ON notifications(workspace_id, created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (s *SQLite) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT doc, archived FROM workspaces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		var doc string
		var archived int
		if err := rows.Scan(&doc, &archived); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		ws, err := s.decodeWorkspace(ctx, doc, archived != 0)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *SQLite) GetWorkspace(ctx context.Context, workspaceID string) (model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWorkspaceLocked(ctx, workspaceID)
}

func (s *SQLite) getWorkspaceLocked(ctx context.Context, workspaceID string) (model.Workspace, error) {
	var doc string
	var archived int
	err := s.db.QueryRowContext(ctx, `SELECT doc, archived FROM workspaces WHERE id = ?`, workspaceID).Scan(&doc, &archived)
	if err == sql.ErrNoRows {
		return model.Workspace{}, derrors.ErrNotFound
	}
	if err != nil {
		return model.Workspace{}, fmt.Errorf("failed to get workspace: %w", err)
	}
	return s.decodeWorkspace(ctx, doc, archived != 0)
}

// decodeWorkspace rebuilds the full document: metadata plus its boards and
// recent feeds.
func (s *SQLite) decodeWorkspace(ctx context.Context, doc string, archived bool) (model.Workspace, error) {
	var ws model.Workspace
	if err := json.Unmarshal([]byte(doc), &ws); err != nil {
		return model.Workspace{}, fmt.Errorf("failed to decode workspace: %w", err)
	}
	ws.Archived = archived

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM boards WHERE workspace_id = ? ORDER BY id`, ws.ID)
	if err != nil {
		return model.Workspace{}, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bdoc string
		if err := rows.Scan(&bdoc); err != nil {
			return model.Workspace{}, fmt.Errorf("failed to scan board: %w", err)
		}
		var b model.Board
		if err := json.Unmarshal([]byte(bdoc), &b); err != nil {
			return model.Workspace{}, fmt.Errorf("failed to decode board: %w", err)
		}
		ws.Boards = append(ws.Boards, b)
	}
	if err := rows.Err(); err != nil {
		return model.Workspace{}, err
	}

	ws.Activity, err = s.listActivityLocked(ctx, ws.ID, 0)
	if err != nil {
		return model.Workspace{}, err
	}
	ws.Notifications, err = s.listNotificationsLocked(ctx, ws.ID)
	if err != nil {
		return model.Workspace{}, err
	}
	return ws, nil
}

func (s *SQLite) PutWorkspace(ctx context.Context, ws model.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	boards := ws.Boards
	meta := ws.Clone()
	meta.Boards = nil
	meta.Activity = nil
	meta.Notifications = nil

	doc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode workspace: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	archived := 0
	if ws.Archived {
		archived = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO workspaces (id, doc, archived) VALUES (?, ?, ?)`,
		ws.ID, string(doc), archived,
	); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}

	for _, b := range boards {
		b.WorkspaceID = ws.ID
		bdoc, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode board: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO boards (id, workspace_id, doc, last_updated) VALUES (?, ?, ?, ?)`,
			b.ID, ws.ID, string(bdoc), b.LastUpdated,
		); err != nil {
			return fmt.Errorf("failed to save board: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) ArchiveWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE workspaces SET archived = 1 WHERE id = ?`, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to archive workspace: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return derrors.ErrNotFound
	}
	return nil
}

func (s *SQLite) GetBoard(ctx context.Context, boardID string) (model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM boards WHERE id = ?`, boardID).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.Board{}, derrors.ErrNotFound
	}
	if err != nil {
		return model.Board{}, fmt.Errorf("failed to get board: %w", err)
	}

	var b model.Board
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return model.Board{}, fmt.Errorf("failed to decode board: %w", err)
	}
	return b, nil
}

func (s *SQLite) CreateBoard(ctx context.Context, b model.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE id = ?`, b.WorkspaceID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check workspace: %w", err)
	}
	if exists == 0 {
		return derrors.ErrNotFound
	}

	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO boards (id, workspace_id, doc, last_updated) VALUES (?, ?, ?, ?)`,
		b.ID, b.WorkspaceID, string(doc), b.LastUpdated,
	)
	if err != nil {
		return derrors.ErrInvalidInput
	}
	return nil
}

// ReplaceBoard swaps the whole document iff basis matches the indexed stamp.
// The guard runs inside the UPDATE itself so two racing replaces cannot both
// win.
func (s *SQLite) ReplaceBoard(ctx context.Context, b model.Board, basis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE boards SET doc = ?, last_updated = ? WHERE id = ? AND last_updated = ?`,
		string(doc), b.LastUpdated, b.ID, basis,
	)
	if err != nil {
		return fmt.Errorf("failed to replace board: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards WHERE id = ?`, b.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check board: %w", err)
		}
		if exists == 0 {
			return derrors.ErrNotFound
		}
		return derrors.ErrVersionConflict
	}
	return nil
}

func (s *SQLite) AppendActivity(ctx context.Context, workspaceID string, ev model.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity (id, workspace_id, doc, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID, workspaceID, string(doc), ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *SQLite) AppendNotification(ctx context.Context, workspaceID string, ev model.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, workspace_id, doc, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID, workspaceID, string(doc), ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

// ListActivity returns activity newest first.
func (s *SQLite) ListActivity(ctx context.Context, workspaceID string, limit int) ([]model.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listActivityLocked(ctx, workspaceID, limit)
}

func (s *SQLite) listActivityLocked(ctx context.Context, workspaceID string, limit int) ([]model.ActivityEvent, error) {
	query := `SELECT doc FROM activity WHERE workspace_id = ? ORDER BY created_at DESC`
	args := []interface{}{workspaceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityEvent
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		var ev model.ActivityEvent
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode activity: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) listNotificationsLocked(ctx context.Context, workspaceID string) ([]model.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM notifications WHERE workspace_id = ? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationEvent
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		var ev model.NotificationEvent
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
