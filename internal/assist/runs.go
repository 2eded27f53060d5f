package assist

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftboard/driftboard/internal/model"
)

// StartRun appends a new queued-then-running automation run to the card's
// history. Returns the updated board, the run, and false when the card does
// not exist. History is append-only: earlier runs are never touched.
func StartRun(b model.Board, cardID, agentID, agentName string, now time.Time) (model.Board, model.AutomationRun, bool) {
	ci, gi := b.FindCard(cardID)
	if ci < 0 {
		return b, model.AutomationRun{}, false
	}

	out := b.Clone()
	card := &out.Columns[ci].Cards[gi]

	attempt := 1
	for _, r := range card.Runs {
		if r.AgentID == agentID {
			attempt++
		}
	}

	run := model.AutomationRun{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		AgentName: agentName,
		Status:    model.RunRunning,
		Attempt:   attempt,
		StartedAt: now.UTC(),
	}
	card.Runs = append(card.Runs, run)
	out.TouchUpdated(now)
	return out, run, true
}

// AppendTelemetry records one tool execution on an in-flight run. Unknown
// card or run ids are a no-op returning false.
func AppendTelemetry(b model.Board, cardID, runID string, tt model.ToolTelemetry, now time.Time) (model.Board, bool) {
	ci, gi := b.FindCard(cardID)
	if ci < 0 {
		return b, false
	}

	out := b.Clone()
	card := &out.Columns[ci].Cards[gi]
	for i := range card.Runs {
		if card.Runs[i].ID != runID {
			continue
		}
		if tt.RecordedAt.IsZero() {
			tt.RecordedAt = now.UTC()
		}
		card.Runs[i].Tools = append(card.Runs[i].Tools, tt)
		out.TouchUpdated(now)
		return out, true
	}
	return b, false
}

// FinishRun moves a run to a terminal status. The latest run drives the
// card's badge, so finishing the newest run changes what users see.
func FinishRun(b model.Board, cardID, runID string, status model.RunStatus, now time.Time) (model.Board, bool) {
	ci, gi := b.FindCard(cardID)
	if ci < 0 {
		return b, false
	}

	out := b.Clone()
	card := &out.Columns[ci].Cards[gi]
	for i := range card.Runs {
		if card.Runs[i].ID != runID {
			continue
		}
		card.Runs[i].Status = status
		out.TouchUpdated(now)
		return out, true
	}
	return b, false
}

// RunActivity builds the activity record for a run transition.
func RunActivity(b model.Board, cardID string, run model.AutomationRun, verb string, now time.Time) model.ActivityEvent {
	return model.ActivityEvent{
		ID:          uuid.New().String(),
		WorkspaceID: b.WorkspaceID,
		BoardID:     b.ID,
		ActorID:     run.AgentID,
		Verb:        verb,
		Subject:     cardID,
		Timestamp:   now.UTC(),
	}
}
