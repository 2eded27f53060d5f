// Package planner tracks long-running, stage-based automation plans and the
// resume handshake for paused workflows. Resume tokens are opaque blobs:
// the bridge stores and replays them, never inspects them.
package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// Submitter replays a resume token to the workflow engine.
type Submitter interface {
	SubmitResume(ctx context.Context, goalID string, token []byte) error
}

// Bridge tracks one PlannerPlan per goal with automation in flight.
//
// Resume is guarded twice: the specific plan must carry a token, and the
// bridge-wide busy flag must be clear. The busy flag is the single-flight
// gate keeping two resumes from racing the shared planner.
type Bridge struct {
	mu        sync.Mutex
	plans     map[string]model.PlannerPlan // goal ID → latest plan
	busy      bool
	submitter Submitter
	logger    zerolog.Logger
}

// NewBridge creates an empty bridge.
func NewBridge(submitter Submitter, logger zerolog.Logger) *Bridge {
	return &Bridge{
		plans:     make(map[string]model.PlannerPlan),
		submitter: submitter,
		logger:    logger.With().Str("component", "planner_bridge").Logger(),
	}
}

// UpdatePlan replaces the tracked plan for its goal. This is the only way a
// plan regains a resume token after a resume attempt.
func (b *Bridge) UpdatePlan(plan model.PlannerPlan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plans[plan.GoalID] = plan.Clone()
	b.logger.Debug().
		Str("goal_id", plan.GoalID).
		Str("status", string(plan.Status)).
		Bool("resumable", len(plan.ResumeToken) > 0).
		Msg("plan updated")
}

// Plan returns the tracked plan for a goal.
func (b *Bridge) Plan(goalID string) (model.PlannerPlan, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.plans[goalID]
	if !ok {
		return model.PlannerPlan{}, false
	}
	return p.Clone(), true
}

// Busy reports whether a resume is currently in flight.
func (b *Bridge) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

// CanResume reports whether the resume control for a goal should be enabled:
// the plan must hold a token and no other resume may be in flight.
func (b *Bridge) CanResume(goalID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canResumeLocked(goalID)
}

func (b *Bridge) canResumeLocked(goalID string) bool {
	if b.busy {
		return false
	}
	p, ok := b.plans[goalID]
	return ok && len(p.ResumeToken) > 0
}

// Resume replays the plan's token verbatim. The token is single-use from
// the bridge's perspective: it is consumed before submission, and the plan
// stays un-resumable until the next UpdatePlan delivers a fresh one.
func (b *Bridge) Resume(ctx context.Context, goalID string) error {
	b.mu.Lock()
	if !b.canResumeLocked(goalID) {
		b.mu.Unlock()
		return fmt.Errorf("plan %s is not resumable", goalID)
	}
	p := b.plans[goalID]
	token := p.ResumeToken
	p.ResumeToken = nil
	b.plans[goalID] = p
	b.busy = true
	b.mu.Unlock()

	err := b.submitter.SubmitResume(ctx, goalID, token)

	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn().Err(err).Str("goal_id", goalID).Msg("resume submission failed")
		return err
	}
	b.logger.Info().Str("goal_id", goalID).Msg("resume submitted")
	return nil
}
