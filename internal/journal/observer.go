package journal

import (
	"context"
	"sync"
	"time"

	"scrivener/internal/engine"
	"scrivener/internal/logging"
)

const writeTimeout = 2 * time.Second

// Observer records every engine outcome, with its attempts, in the
// journal. Write failures are logged and never affect delivery.
type Observer struct {
	j   *Journal
	log *logging.Logger

	mu      sync.Mutex
	pending map[string][]Attempt
}

// NewObserver returns an engine observer writing to j.
func NewObserver(j *Journal, log *logging.Logger) *Observer {
	if log == nil {
		log = logging.Discard()
	}
	return &Observer{j: j, log: log.WithComponent("journal"), pending: map[string][]Attempt{}}
}

func (o *Observer) OnTransition(_ context.Context, ev engine.Event) {
	if ev.Type != engine.EventAttempt {
		return
	}
	a := Attempt{Backend: ev.Backend, Try: ev.Try, OK: ev.Err == nil, Duration: ev.Duration}
	if ev.Err != nil {
		a.Error = ev.Err.Error()
	}

	o.mu.Lock()
	o.pending[ev.RequestID] = append(o.pending[ev.RequestID], a)
	o.mu.Unlock()
}

func (o *Observer) OnOutcome(ctx context.Context, out engine.Outcome) {
	o.mu.Lock()
	attempts := o.pending[out.RequestID]
	delete(o.pending, out.RequestID)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if _, err := o.j.Record(ctx, out, attempts); err != nil {
		o.log.WithContext(ctx).Warn("journal write failed", "error", err)
	}
}
