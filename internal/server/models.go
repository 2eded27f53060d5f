package server

import (
	"github.com/driftboard/driftboard/internal/model"
)

// ProblemDetail is the RFC 7807 error body returned by every failure path.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WorkspaceListResponse wraps GET /api/v1/workspaces.
type WorkspaceListResponse struct {
	Workspaces []model.Workspace `json:"workspaces"`
}

// WorkspaceResponse wraps a single workspace.
type WorkspaceResponse struct {
	Workspace model.Workspace `json:"workspace"`
}

// BoardResponse wraps a single board snapshot.
type BoardResponse struct {
	Board model.Board `json:"board"`
}

// ReplaceBoardRequest is the whole-document replace. Basis is the
// LastUpdated stamp the client's edit was built on; a mismatch is rejected
// with 409.
type ReplaceBoardRequest struct {
	Board model.Board `json:"board"`
	Basis int64       `json:"basis"`
}

// CreateBoardRequest creates an empty or pre-seeded board in a workspace.
type CreateBoardRequest struct {
	ID          string         `json:"id"`
	ProjectName string         `json:"projectName"`
	Accent      string         `json:"accent,omitempty"`
	Columns     []model.Column `json:"columns,omitempty"`
}

// PresenceRequest announces or withdraws a viewer.
type PresenceRequest struct {
	WorkspaceID string `json:"workspaceId"`
	BoardID     string `json:"boardId,omitempty"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// PresenceResponse returns the post-change snapshot.
type PresenceResponse struct {
	Users []model.PresenceUser `json:"users"`
}

// CapabilitiesResponse lists the capability ids granted to the caller.
type CapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

// AssistRequest names the board to analyze.
type AssistRequest struct {
	BoardID string `json:"boardId"`
}

// StartRunRequest opens an automation run on a card.
type StartRunRequest struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName,omitempty"`
}

// RunResponse wraps one automation run.
type RunResponse struct {
	Run model.AutomationRun `json:"run"`
}

// TelemetryRequest appends one tool record to an in-flight run.
type TelemetryRequest struct {
	Tool model.ToolTelemetry `json:"tool"`
}

// FinishRunRequest moves a run to a terminal status.
type FinishRunRequest struct {
	Status model.RunStatus `json:"status"`
}

// PlanResponse wraps a planner plan. The resume token rides along base64
// encoded; it is opaque and replayed verbatim.
type PlanResponse struct {
	Plan model.PlannerPlan `json:"plan"`
}

// ResumeRequest replays a resume token for a paused plan.
type ResumeRequest struct {
	Token []byte `json:"token"`
}
