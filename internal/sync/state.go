package sync

import (
	"sync"

	"calsync/internal/domain"
)

// Tracker publishes the engine's observable state. It replaces a global
// singleton state holder: the orchestrator owns one instance and observers
// subscribe for snapshots.
type Tracker struct {
	mu    sync.RWMutex
	state domain.SyncState
	subs  map[chan domain.SyncState]struct{}
}

// NewTracker -.
func NewTracker() *Tracker {
	return &Tracker{
		state: domain.SyncState{Status: domain.StatusIdle, Phase: domain.PhaseIdle},
		subs:  make(map[chan domain.SyncState]struct{}),
	}
}

// State returns the current snapshot.
func (t *Tracker) State() domain.SyncState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state
}

// Subscribe registers an observer. The returned cancel func must be called
// when the observer goes away. Slow observers miss intermediate snapshots
// rather than blocking the pipeline.
func (t *Tracker) Subscribe() (<-chan domain.SyncState, func()) {
	ch := make(chan domain.SyncState, 8)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (t *Tracker) publish(state domain.SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = state
	for ch := range t.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// Phase moves the run to the given phase.
func (t *Tracker) Phase(phase domain.SyncPhase, message string, progress float64) {
	t.publish(domain.SyncState{
		Status:   domain.StatusRunning,
		Phase:    phase,
		Progress: progress,
		Message:  message,
	})
}

// Finish records the terminal outcome. The most recent error message is
// retained for display even on partial success.
func (t *Tracker) Finish(result *domain.SyncResult) {
	state := domain.SyncState{
		Phase:    domain.PhaseDone,
		Progress: 1,
		Message:  "sync finished",
	}

	switch result.Status {
	case domain.RunSuccess:
		state.Status = domain.StatusSuccess
	case domain.RunPartialSuccess:
		state.Status = domain.StatusPartial
	default:
		state.Status = domain.StatusFailed
	}

	if last := result.LastError(); last != nil {
		state.Error = last.Error()
	}
	t.publish(state)
}
