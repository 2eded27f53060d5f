package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/assist"
	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/metrics"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/planner"
	"github.com/driftboard/driftboard/internal/presence"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/stream"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store        store.Store
	hub          *stream.Hub
	tracker      *presence.Tracker
	plans        *planner.Registry
	engine       *assist.Engine
	collector    *metrics.Metrics
	capabilities []string
	logger       zerolog.Logger
	startTime    time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	st store.Store,
	hub *stream.Hub,
	tracker *presence.Tracker,
	plans *planner.Registry,
	engine *assist.Engine,
	collector *metrics.Metrics,
	capabilities []string,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		store:        st,
		hub:          hub,
		tracker:      tracker,
		plans:        plans,
		engine:       engine,
		collector:    collector,
		capabilities: capabilities,
		logger:       logger.With().Str("component", "handlers").Logger(),
		startTime:    time.Now(),
	}
}

// ListWorkspaces handles GET /api/v1/workspaces.
func (h *Handlers) ListWorkspaces(c *fiber.Ctx) error {
	workspaces, err := h.store.ListWorkspaces(c.Context())
	if err != nil {
		return err
	}
	if workspaces == nil {
		workspaces = []model.Workspace{}
	}
	return c.JSON(WorkspaceListResponse{Workspaces: workspaces})
}

// GetWorkspace handles GET /api/v1/workspaces/:id.
func (h *Handlers) GetWorkspace(c *fiber.Ctx) error {
	id := c.Params("id")
	ws, err := h.store.GetWorkspace(c.Context(), id)
	if errors.Is(err, derrors.ErrNotFound) {
		return problemResponse(c, fiber.StatusNotFound,
			"workspace_not_found", "Not Found",
			"Workspace not found: "+id)
	}
	if err != nil {
		return err
	}
	return c.JSON(WorkspaceResponse{Workspace: ws})
}

// GetBoard handles GET /api/v1/boards/:id.
func (h *Handlers) GetBoard(c *fiber.Ctx) error {
	id := c.Params("id")
	b, err := h.store.GetBoard(c.Context(), id)
	if errors.Is(err, derrors.ErrNotFound) {
		return problemResponse(c, fiber.StatusNotFound,
			"board_not_found", "Not Found",
			"Board not found: "+id)
	}
	if err != nil {
		return err
	}
	return c.JSON(BoardResponse{Board: b})
}

// ReplaceBoard handles PUT /api/v1/boards/:id: whole-document replace with
// compare-and-swap on the basis stamp. A successful replace publishes a
// board-updated invalidation signal carrying only the id and new stamp.
func (h *Handlers) ReplaceBoard(c *fiber.Ctx) error {
	id := c.Params("id")
	var req ReplaceBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Board.ID != id {
		return problemResponse(c, fiber.StatusBadRequest,
			"board_id_mismatch", "Bad Request",
			"Board id in body does not match the path")
	}
	if req.Board.LastUpdated <= req.Basis {
		// A replace whose stamp does not advance past the basis would be
		// broadcast and then discarded by every other viewer as stale.
		return problemResponse(c, fiber.StatusUnprocessableEntity,
			"stale_stamp", "Unprocessable Entity",
			"Board stamp must advance past the basis")
	}
	if dup := duplicateID(req.Board); dup != "" {
		return problemResponse(c, fiber.StatusUnprocessableEntity,
			"duplicate_id", "Unprocessable Entity",
			"Id appears more than once on the board: "+dup)
	}

	req.Board.Recount()

	start := time.Now()
	err := h.store.ReplaceBoard(c.Context(), req.Board, req.Basis)
	if h.collector != nil {
		h.collector.ReplaceDuration.Observe(time.Since(start).Seconds())
	}
	switch {
	case errors.Is(err, derrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"board_not_found", "Not Found",
			"Board not found: "+id)
	case errors.Is(err, derrors.ErrVersionConflict):
		if h.collector != nil {
			h.collector.RecordMutation("replace", "conflict")
		}
		return problemResponse(c, fiber.StatusConflict,
			"version_conflict", "Conflict",
			"Board was replaced by another writer; refetch and retry")
	case err != nil:
		return err
	}

	if h.collector != nil {
		h.collector.RecordMutation("replace", "ok")
	}

	ws := h.workspaceOf(c, req.Board)
	h.hub.PublishBoardUpdated(ws, id, req.Board.LastUpdated)
	h.recordActivity(c, ws, id, "board-replaced", "")

	return c.JSON(BoardResponse{Board: req.Board})
}

// CreateBoard handles POST /api/v1/workspaces/:id/boards.
func (h *Handlers) CreateBoard(c *fiber.Ctx) error {
	workspaceID := c.Params("id")
	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if strings.TrimSpace(req.ProjectName) == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_project_name", "Bad Request",
			"Project name is required")
	}

	b := model.Board{
		ID:          req.ID,
		WorkspaceID: workspaceID,
		ProjectName: strings.TrimSpace(req.ProjectName),
		Accent:      req.Accent,
		Columns:     req.Columns,
		LastUpdated: time.Now().UnixMilli(),
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Columns == nil {
		b.Columns = []model.Column{}
	}
	b.Recount()

	err := h.store.CreateBoard(c.Context(), b)
	switch {
	case errors.Is(err, derrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"workspace_not_found", "Not Found",
			"Workspace not found: "+workspaceID)
	case errors.Is(err, derrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusConflict,
			"board_exists", "Conflict",
			"Board already exists: "+b.ID)
	case err != nil:
		return err
	}

	h.recordActivity(c, workspaceID, b.ID, "board-created", b.ProjectName)
	return c.Status(fiber.StatusCreated).JSON(BoardResponse{Board: b})
}

// Announce handles POST /api/v1/presence: a heartbeat.
func (h *Handlers) Announce(c *fiber.Ctx) error {
	var req PresenceRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.WorkspaceID == "" || req.UserID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_fields", "Bad Request",
			"workspaceId and userId are required")
	}

	h.tracker.Heartbeat(req.WorkspaceID, req.BoardID, req.UserID, req.DisplayName)
	if h.collector != nil {
		h.collector.PresenceUsers.Set(float64(h.tracker.Count()))
	}
	return c.JSON(PresenceResponse{Users: h.tracker.Snapshot(req.WorkspaceID)})
}

// Leave handles DELETE /api/v1/presence: a best-effort goodbye.
func (h *Handlers) Leave(c *fiber.Ctx) error {
	var req PresenceRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.WorkspaceID == "" || req.UserID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_fields", "Bad Request",
			"workspaceId and userId are required")
	}

	h.tracker.Leave(req.WorkspaceID, req.UserID)
	if h.collector != nil {
		h.collector.PresenceUsers.Set(float64(h.tracker.Count()))
	}
	return c.JSON(PresenceResponse{Users: h.tracker.Snapshot(req.WorkspaceID)})
}

// Capabilities handles GET /api/v1/capabilities.
func (h *Handlers) Capabilities(c *fiber.Ctx) error {
	caps := h.capabilities
	if caps == nil {
		caps = []string{}
	}
	return c.JSON(CapabilitiesResponse{Capabilities: caps})
}

// Assist handles POST /api/v1/workspaces/:id/assist.
func (h *Handlers) Assist(c *fiber.Ctx) error {
	var req AssistRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.BoardID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_board_id", "Bad Request",
			"boardId is required")
	}

	b, err := h.store.GetBoard(c.Context(), req.BoardID)
	if errors.Is(err, derrors.ErrNotFound) {
		return problemResponse(c, fiber.StatusNotFound,
			"board_not_found", "Not Found",
			"Board not found: "+req.BoardID)
	}
	if err != nil {
		return err
	}

	return c.JSON(h.engine.Analyze(b))
}

// StartRun handles POST /api/v1/boards/:id/cards/:cardID/runs.
func (h *Handlers) StartRun(c *fiber.Ctx) error {
	boardID, cardID := c.Params("id"), c.Params("cardID")
	var req StartRunRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.AgentID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_agent_id", "Bad Request",
			"agentId is required")
	}

	var run model.AutomationRun
	next, err := h.mutateBoard(c, boardID, func(b model.Board) (model.Board, bool) {
		nb, r, ok := assist.StartRun(b, cardID, req.AgentID, req.AgentName, time.Now())
		run = r
		return nb, ok
	})
	if err != nil {
		return h.runProblem(c, boardID, err)
	}
	h.appendActivity(c, assist.RunActivity(next, cardID, run, "run-started", time.Now()))
	return c.Status(fiber.StatusCreated).JSON(RunResponse{Run: run})
}

// AppendTelemetry handles POST /api/v1/boards/:id/cards/:cardID/runs/:runID/telemetry.
func (h *Handlers) AppendTelemetry(c *fiber.Ctx) error {
	boardID, cardID, runID := c.Params("id"), c.Params("cardID"), c.Params("runID")
	var req TelemetryRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	_, err := h.mutateBoard(c, boardID, func(b model.Board) (model.Board, bool) {
		return assist.AppendTelemetry(b, cardID, runID, req.Tool, time.Now())
	})
	if err != nil {
		return h.runProblem(c, boardID, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// FinishRun handles POST /api/v1/boards/:id/cards/:cardID/runs/:runID/finish.
func (h *Handlers) FinishRun(c *fiber.Ctx) error {
	boardID, cardID, runID := c.Params("id"), c.Params("cardID"), c.Params("runID")
	var req FinishRunRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Status != model.RunCompleted && req.Status != model.RunFailed {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_status", "Bad Request",
			"Status must be completed or failed")
	}

	next, err := h.mutateBoard(c, boardID, func(b model.Board) (model.Board, bool) {
		return assist.FinishRun(b, cardID, runID, req.Status, time.Now())
	})
	if err != nil {
		return h.runProblem(c, boardID, err)
	}
	if run, ok := runOn(next, cardID, runID); ok {
		h.appendActivity(c, assist.RunActivity(next, cardID, run, "run-finished", time.Now()))
	}
	return c.JSON(fiber.Map{"ok": true})
}

// GetPlan handles GET /api/v1/plans/:goalID.
func (h *Handlers) GetPlan(c *fiber.Ctx) error {
	goalID := c.Params("goalID")
	p, ok := h.plans.Get(goalID)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"plan_not_found", "Not Found",
			"Plan not found: "+goalID)
	}
	return c.JSON(PlanResponse{Plan: p})
}

// PutPlan handles PUT /api/v1/plans/:goalID: the workflow engine pushes
// plan updates in. A plan carrying a resume token re-arms the token store.
func (h *Handlers) PutPlan(c *fiber.Ctx) error {
	goalID := c.Params("goalID")
	var req PlanResponse
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Plan.GoalID == "" {
		req.Plan.GoalID = goalID
	}
	if req.Plan.GoalID != goalID {
		return problemResponse(c, fiber.StatusBadRequest,
			"goal_id_mismatch", "Bad Request",
			"Goal id in body does not match the path")
	}

	h.plans.Put(c.Context(), req.Plan)
	return c.JSON(fiber.Map{"ok": true})
}

// ResumePlan handles POST /api/v1/plans/:goalID/resume: verbatim token
// replay. A token redeems at most once.
func (h *Handlers) ResumePlan(c *fiber.Ctx) error {
	goalID := c.Params("goalID")
	var req ResumeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if len(req.Token) == 0 {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_token", "Bad Request",
			"Resume token is required")
	}

	p, err := h.plans.Resume(c.Context(), goalID, req.Token)
	switch {
	case errors.Is(err, planner.ErrTokenExpired):
		return problemResponse(c, fiber.StatusGone,
			"token_expired", "Gone",
			"Resume token expired; wait for a fresh plan update")
	case errors.Is(err, planner.ErrTokenNotFound):
		return problemResponse(c, fiber.StatusConflict,
			"token_rejected", "Conflict",
			"Resume token was already used or never issued")
	case err != nil:
		return err
	}

	return c.JSON(PlanResponse{Plan: p})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if _, err := h.store.ListWorkspaces(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// errRunTargetMissing marks a run transition whose card or run id is absent.
var errRunTargetMissing = errors.New("card or run not found")

// mutateBoard loads a board, applies a transform and writes it back with the
// loaded stamp as basis. Concurrent writers are serialized by the CAS: the
// loser gets a conflict and retries from a fresh read. Returns the stored
// result so callers can build their activity records from it.
func (h *Handlers) mutateBoard(c *fiber.Ctx, boardID string, fn func(model.Board) (model.Board, bool)) (model.Board, error) {
	b, err := h.store.GetBoard(c.Context(), boardID)
	if err != nil {
		return model.Board{}, err
	}

	next, ok := fn(b)
	if !ok {
		return model.Board{}, errRunTargetMissing
	}

	if err := h.store.ReplaceBoard(c.Context(), next, b.LastUpdated); err != nil {
		return model.Board{}, err
	}

	h.hub.PublishBoardUpdated(next.WorkspaceID, boardID, next.LastUpdated)
	return next, nil
}

// runProblem maps a mutateBoard failure onto a problem response.
func (h *Handlers) runProblem(c *fiber.Ctx, boardID string, err error) error {
	switch {
	case errors.Is(err, derrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"board_not_found", "Not Found",
			"Board not found: "+boardID)
	case errors.Is(err, errRunTargetMissing):
		return problemResponse(c, fiber.StatusNotFound,
			"card_or_run_not_found", "Not Found",
			"Card or run not found on board "+boardID)
	case errors.Is(err, derrors.ErrVersionConflict):
		return problemResponse(c, fiber.StatusConflict,
			"version_conflict", "Conflict",
			"Board changed while recording the run; retry")
	default:
		return err
	}
}

// runOn finds a run on a card after a transition landed.
func runOn(b model.Board, cardID, runID string) (model.AutomationRun, bool) {
	ci, gi := b.FindCard(cardID)
	if ci < 0 {
		return model.AutomationRun{}, false
	}
	for _, r := range b.Columns[ci].Cards[gi].Runs {
		if r.ID == runID {
			return r, true
		}
	}
	return model.AutomationRun{}, false
}

// duplicateID returns the first column or card id occurring more than once
// on the board. Card ids are unique across the whole board, not per column.
func duplicateID(b model.Board) string {
	cols := make(map[string]bool, len(b.Columns))
	cards := make(map[string]bool)
	for _, col := range b.Columns {
		if cols[col.ID] {
			return col.ID
		}
		cols[col.ID] = true
		for _, card := range col.Cards {
			if cards[card.ID] {
				return card.ID
			}
			cards[card.ID] = true
		}
	}
	return ""
}

// workspaceOf resolves the workspace a board belongs to, trusting the
// request body first and falling back to the stored document.
func (h *Handlers) workspaceOf(c *fiber.Ctx, b model.Board) string {
	if b.WorkspaceID != "" {
		return b.WorkspaceID
	}
	stored, err := h.store.GetBoard(c.Context(), b.ID)
	if err != nil {
		return ""
	}
	return stored.WorkspaceID
}

// recordActivity builds a user-action activity record, attributed to the
// caller, and appends it.
func (h *Handlers) recordActivity(c *fiber.Ctx, workspaceID, boardID, verb, subject string) {
	h.appendActivity(c, model.ActivityEvent{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		BoardID:     boardID,
		ActorID:     c.Get("X-Actor-ID"),
		Verb:        verb,
		Subject:     subject,
		Timestamp:   time.Now().UTC(),
	})
}

// appendActivity persists and broadcasts one activity record. Failures are
// logged, never surfaced: activity is advisory.
func (h *Handlers) appendActivity(c *fiber.Ctx, ev model.ActivityEvent) {
	if ev.WorkspaceID == "" {
		return
	}
	if err := h.store.AppendActivity(c.Context(), ev.WorkspaceID, ev); err != nil {
		h.logger.Warn().Err(err).Str("workspace_id", ev.WorkspaceID).Msg("failed to append activity")
	}
	h.hub.PublishActivity(ev.WorkspaceID, ev)
}
