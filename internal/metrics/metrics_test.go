package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/engine"
)

func simulate(r *Recorder, out engine.Outcome, attempts ...engine.Event) {
	ctx := context.Background()
	r.OnTransition(ctx, engine.Event{Type: engine.EventTransition, From: engine.StateIdle, State: engine.StatePreparing})
	for _, a := range attempts {
		a.Type = engine.EventAttempt
		r.OnTransition(ctx, a)
	}
	r.OnTransition(ctx, engine.Event{Type: engine.EventTransition, From: engine.StateDelivering, State: out.State})
	r.OnOutcome(ctx, out)
}

func TestRecorderCountsDeliveries(t *testing.T) {
	r, err := New("", false)
	require.NoError(t, err)

	simulate(r, engine.Outcome{Success: true, State: engine.StateDone, Profile: "Notes", Strategy: "accessibility_tree", Length: 20, Duration: time.Second},
		engine.Event{Backend: "paste", Try: 1, Err: errors.New("clipboard")},
		engine.Event{Backend: "paste", Try: 2, Duration: 10 * time.Millisecond},
	)
	simulate(r, engine.Outcome{State: engine.StateFailed, Kind: engine.KindTargetNotRunning})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("Notes", "success", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("unresolved", "failure", "target_not_running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("paste", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("paste", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("preparing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.inFlight))
}

func TestRecorderBusyLeavesGauge(t *testing.T) {
	r, err := New("", false)
	require.NoError(t, err)
	ctx := context.Background()

	r.OnTransition(ctx, engine.Event{Type: engine.EventTransition, From: engine.StateIdle, State: engine.StatePreparing})
	r.OnOutcome(ctx, engine.Outcome{State: engine.StateFailed, Kind: engine.KindBusy, Target: "Notes"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("unresolved", "failure", "busy")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r, err := New("test", true)
	require.NoError(t, err)
	simulate(r, engine.Outcome{Success: true, State: engine.StateDone, Profile: "Slack", Strategy: "hybrid", Length: 5})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_deliveries_total{error_kind="none",profile="Slack",result="success"} 1`))
	assert.Contains(t, body, "test_delivery_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.OnTransition(context.Background(), engine.Event{})
		r.OnOutcome(context.Background(), engine.Outcome{})
	})
}
