package generation

import (
	"fmt"
	"sync"
)

// State is a stage of the generation pipeline.
type State string

const (
	StateReceived      State = "received"
	StateAdmitted      State = "admitted"
	StateSafetyChecked State = "safety_checked"
	StateCharged       State = "charged"
	StatePlanned       State = "planned"
	StateAssetAcquired State = "asset_acquired"
	StatePersisted     State = "persisted"
	StateSucceeded     State = "succeeded"
	StateRefunding     State = "refunding"
	StateFailed        State = "failed"
)

var transitions = map[State][]State{
	StateReceived:      {StateAdmitted, StateFailed},
	StateAdmitted:      {StateSafetyChecked, StateFailed},
	StateSafetyChecked: {StateCharged, StateFailed},
	StateCharged:       {StatePlanned, StateRefunding},
	StatePlanned:       {StateAssetAcquired, StateRefunding},
	StateAssetAcquired: {StatePersisted},
	StatePersisted:     {StateSucceeded},
	StateRefunding:     {StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Tracker follows one request through the pipeline. Once a charge is taken
// the only way out other than success is through refunding.
type Tracker struct {
	mu      sync.Mutex
	state   State
	charged bool
	history []State
	onMove  func(from, to State)
}

func NewTracker(onMove func(from, to State)) *Tracker {
	return &Tracker{state: StateReceived, history: []State{StateReceived}, onMove: onMove}
}

// Move advances to next, or returns an error if the pipeline skipped a
// stage.
func (t *Tracker) Move(next State) error {
	t.mu.Lock()
	from := t.state
	allowed := false
	for _, s := range transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		t.mu.Unlock()
		return fmt.Errorf("illegal generation transition %s -> %s", from, next)
	}
	t.state = next
	if next == StateCharged {
		t.charged = true
	}
	t.history = append(t.history, next)
	onMove := t.onMove
	t.mu.Unlock()

	if onMove != nil {
		onMove(from, next)
	}
	return nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Charged reports whether the request ever held a charge.
func (t *Tracker) Charged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.charged
}

// History returns every state visited, in order.
func (t *Tracker) History() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]State(nil), t.history...)
}
