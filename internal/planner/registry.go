package planner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
)

// Registry is the server-side plan table. The workflow engine pushes plan
// updates in; clients fetch plans and replay resume tokens. Tokens live in
// the TokenStore so a replayed token redeems at most once.
type Registry struct {
	mu       sync.RWMutex
	plans    map[string]model.PlannerPlan
	tokens   *TokenStore
	tokenTTL time.Duration
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// NewRegistry creates a registry issuing resume tokens with the given TTL.
func NewRegistry(tokenTTL time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		plans:    make(map[string]model.PlannerPlan),
		tokens:   NewTokenStore(),
		tokenTTL: tokenTTL,
		logger:   logger.With().Str("component", "plan_registry").Logger(),
		nowFn:    time.Now,
	}
}

// Put stores a plan update. A plan arriving with a resume token re-arms the
// token store; a plan without one leaves any prior token to expire.
func (r *Registry) Put(ctx context.Context, p model.PlannerPlan) {
	r.mu.Lock()
	stored := p.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = r.nowFn().UTC()
	}
	r.plans[stored.GoalID] = stored
	r.mu.Unlock()

	if len(p.ResumeToken) > 0 {
		r.tokens.Issue(ctx, p.GoalID, p.ResumeToken, r.tokenTTL)
	}
	r.logger.Debug().Str("goal_id", p.GoalID).Str("status", string(p.Status)).Msg("plan stored")
}

// Get returns the plan for a goal.
func (r *Registry) Get(goalID string) (model.PlannerPlan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[goalID]
	if !ok {
		return model.PlannerPlan{}, false
	}
	return p.Clone(), true
}

// Resume redeems a replayed token and marks the plan running. The token is
// consumed whether or not the plan transition succeeds; only a fresh plan
// update can arm a new one.
func (r *Registry) Resume(ctx context.Context, goalID string, token []byte) (model.PlannerPlan, error) {
	if err := r.tokens.Redeem(ctx, goalID, token); err != nil {
		return model.PlannerPlan{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[goalID]
	if !ok {
		return model.PlannerPlan{}, ErrTokenNotFound
	}
	p.Status = model.PlanRunning
	p.ResumeToken = nil
	p.UpdatedAt = r.nowFn().UTC()
	r.plans[goalID] = p

	r.logger.Info().Str("goal_id", goalID).Msg("plan resumed")
	return p.Clone(), nil
}

// Sweep drops expired tokens. Run it periodically.
func (r *Registry) Sweep(ctx context.Context) int {
	return r.tokens.Cleanup(ctx)
}
