package engine

import (
	"context"
	"fmt"
	"time"
)

// State is a delivery state machine state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateLocating
	StateDelivering
	StateVerifying
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "preparing", "locating", "delivering", "verifying", "done", "failed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s ends a delivery.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// EventType distinguishes observer events.
type EventType int

const (
	EventTransition EventType = iota
	EventAttempt
)

// Event is emitted to observers on every state change and every backend
// try.
type Event struct {
	Type      EventType
	RequestID string
	App       string
	From      State
	State     State
	At        time.Time

	// Set on EventAttempt.
	Backend  string
	Try      int
	Duration time.Duration
	Err      error
}

// Observer receives engine events. Calls are synchronous on the delivery
// goroutine, except the outcome of a busy rejection, which arrives on its
// own goroutine. Implementations must be safe for concurrent use.
type Observer interface {
	OnTransition(ctx context.Context, ev Event)
	OnOutcome(ctx context.Context, out Outcome)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Transition func(ctx context.Context, ev Event)
	Outcome    func(ctx context.Context, out Outcome)
}

func (o ObserverFuncs) OnTransition(ctx context.Context, ev Event) {
	if o.Transition != nil {
		o.Transition(ctx, ev)
	}
}

func (o ObserverFuncs) OnOutcome(ctx context.Context, out Outcome) {
	if o.Outcome != nil {
		o.Outcome(ctx, out)
	}
}
