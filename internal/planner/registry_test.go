package planner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/model"
)

func registryPausedPlan(goalID string, token []byte) model.PlannerPlan {
	return model.PlannerPlan{
		GoalID:      goalID,
		WorkflowID:  "wf-1",
		Status:      model.PlanPaused,
		Stages:      []model.PlanStage{{ID: "s1", Name: "triage", Status: model.PlanCompleted}},
		ResumeToken: token,
	}
}

func TestRegistry_PutGet(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ctx := context.Background()

	r.Put(ctx, registryPausedPlan("g1", []byte("tok")))

	p, ok := r.Get("g1")
	require.True(t, ok)
	assert.Equal(t, model.PlanPaused, p.Status)
	assert.Equal(t, []byte("tok"), p.ResumeToken)

	_, ok = r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistry_ResumeConsumesToken(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ctx := context.Background()
	r.Put(ctx, registryPausedPlan("g1", []byte("tok")))

	p, err := r.Resume(ctx, "g1", []byte("tok"))
	require.NoError(t, err)
	assert.Equal(t, model.PlanRunning, p.Status)
	assert.Empty(t, p.ResumeToken)

	// Second replay of the same bytes is rejected.
	_, err = r.Resume(ctx, "g1", []byte("tok"))
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRegistry_ResumeWrongToken(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ctx := context.Background()
	r.Put(ctx, registryPausedPlan("g1", []byte("tok")))

	_, err := r.Resume(ctx, "g1", []byte("forged"))
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// The real token still works after a failed forgery.
	_, err = r.Resume(ctx, "g1", []byte("tok"))
	assert.NoError(t, err)
}

func TestRegistry_FreshPlanRearmsToken(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ctx := context.Background()

	r.Put(ctx, registryPausedPlan("g1", []byte("one")))
	_, err := r.Resume(ctx, "g1", []byte("one"))
	require.NoError(t, err)

	// Only a new plan update arms a new token.
	_, err = r.Resume(ctx, "g1", []byte("two"))
	require.ErrorIs(t, err, ErrTokenNotFound)

	r.Put(ctx, registryPausedPlan("g1", []byte("two")))
	_, err = r.Resume(ctx, "g1", []byte("two"))
	assert.NoError(t, err)
}

func TestRegistry_PlanWithoutTokenLeavesGateClosed(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	ctx := context.Background()

	plan := registryPausedPlan("g1", nil)
	plan.Status = model.PlanRunning
	r.Put(ctx, plan)

	_, err := r.Resume(ctx, "g1", []byte("anything"))
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
