package runstate

import (
	"sync"

	"github.com/sells-group/compass-cli/internal/model"
)

// Accumulator is the single serialization point for a run's state. Each
// Apply is atomic with respect to Snapshot and other Apply calls.
type Accumulator struct {
	mu    sync.Mutex
	state State
}

// NewAccumulator wraps an initial state.
func NewAccumulator(initial State) *Accumulator {
	return &Accumulator{state: initial.Clone()}
}

// Apply merges a delta into the accumulated state.
func (a *Accumulator) Apply(d Delta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Merge(a.state, d)
}

// Snapshot returns a deep copy of the current state.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Finalize performs the terminal status write. Running and pending resolve
// to completed; partial and error are kept. It returns the final state.
func (a *Accumulator) Finalize() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state.Status {
	case model.RunStatusRunning, model.RunStatusPending, "":
		a.state.Status = model.RunStatusCompleted
	case model.RunStatusComplete:
		a.state.Status = model.RunStatusCompleted
	}
	return a.state.Clone()
}
