// Package capability resolves which mutation operations the current session
// may perform. Availability is an explicit tri-state so a control never
// flashes enabled before the registry answer arrives.
package capability

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	derrors "github.com/driftboard/driftboard/internal/errors"
)

// Well-known capability identifiers.
const (
	ManageColumns = "kanban.manageColumns"
	QuickComposer = "kanban.quickComposer"
	Metrics       = "kanban.metrics"
	Assist        = "kanban.assist"
)

// Known lists every capability id the gate understands.
var Known = []string{ManageColumns, QuickComposer, Metrics, Assist}

// State is the resolution state of one capability.
type State int

const (
	// Loading means the registry has not answered yet. Not a denial.
	Loading State = iota
	Available
	Unavailable
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "loading"
	}
}

// Decision is the gate's answer for one capability-gated control.
type Decision struct {
	State      State  `json:"state"`
	Capability string `json:"capability"`
	Reason     string `json:"reason,omitempty"`
}

// Allowed reports whether the gated mutation may fire.
func (d Decision) Allowed() bool { return d.State == Available }

// Gate holds the capability set granted to the session.
type Gate struct {
	mu      sync.RWMutex
	loaded  bool
	granted map[string]bool
	logger  zerolog.Logger
}

// NewGate creates a gate in the loading state.
func NewGate(logger zerolog.Logger) *Gate {
	return &Gate{
		granted: make(map[string]bool),
		logger:  logger.With().Str("component", "capability_gate").Logger(),
	}
}

// SetGranted replaces the granted set wholesale and leaves the loading
// state. Called when the registry responds, and again on any refresh.
func (g *Gate) SetGranted(ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted = make(map[string]bool, len(ids))
	for _, id := range ids {
		g.granted[id] = true
	}
	g.loaded = true
	g.logger.Debug().Int("granted", len(ids)).Msg("capability set updated")
}

// Loaded reports whether the registry has answered at least once.
func (g *Gate) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded
}

// Resolve computes the decision for one capability id. While the registry
// has not answered, the state is Loading, never a false negative.
func (g *Gate) Resolve(capID string) Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.loaded {
		return Decision{State: Loading, Capability: capID}
	}
	if g.granted[capID] {
		return Decision{State: Available, Capability: capID}
	}
	return Decision{
		State:      Unavailable,
		Capability: capID,
		Reason:     fmt.Sprintf("missing capability %q", capID),
	}
}

// Guard invokes fn only when the capability is available. A loading or
// unavailable gate returns an error and never calls fn, even when invoked
// programmatically.
func (g *Gate) Guard(capID string, fn func() error) error {
	d := g.Resolve(capID)
	if !d.Allowed() {
		g.logger.Debug().Str("capability", capID).Str("state", d.State.String()).Msg("mutation blocked by gate")
		return fmt.Errorf("%w: %s", derrors.ErrDenied, d.Capability)
	}
	return fn()
}
