package model

import "time"

// PlanStatus tracks a planner plan or stage lifecycle.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanPaused    PlanStatus = "paused"
)

// PlanStage is one step of a multi-stage automation plan.
type PlanStage struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status PlanStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// PlannerPlan is a long-running, stage-based automation plan attached to a
// goal. ResumeToken is an opaque blob: it is never parsed by this core, only
// replayed verbatim to continue a paused workflow.
type PlannerPlan struct {
	GoalID      string      `json:"goalId"`
	WorkflowID  string      `json:"workflowId"`
	Status      PlanStatus  `json:"status"`
	Stages      []PlanStage `json:"stages"`
	ResumeToken []byte      `json:"resumeToken,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy of the plan, including the opaque token bytes.
func (p PlannerPlan) Clone() PlannerPlan {
	out := p
	out.Stages = append([]PlanStage(nil), p.Stages...)
	out.ResumeToken = append([]byte(nil), p.ResumeToken...)
	return out
}

// RunStatus tracks an automation run lifecycle.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ToolTelemetry is one per-tool execution record inside an automation run.
type ToolTelemetry struct {
	Name         string    `json:"name"`
	CapabilityID string    `json:"capabilityId,omitempty"`
	Status       RunStatus `json:"status"`
	Output       string    `json:"output,omitempty"`
	Error        string    `json:"error,omitempty"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// AutomationRun is one attempt by an agent at automated work on a card.
// History is append-only per card; the most recent run determines the
// card's visible automation badge.
type AutomationRun struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	AgentName string          `json:"agentName,omitempty"`
	Status    RunStatus       `json:"status"`
	Attempt   int             `json:"attempt"`
	Tools     []ToolTelemetry `json:"tools,omitempty"`
	StartedAt time.Time       `json:"startedAt"`
}

func cloneRuns(in []AutomationRun) []AutomationRun {
	if in == nil {
		return nil
	}
	out := make([]AutomationRun, len(in))
	for i, r := range in {
		cp := r
		cp.Tools = append([]ToolTelemetry(nil), r.Tools...)
		out[i] = cp
	}
	return out
}
