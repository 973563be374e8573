package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/engine"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func outcome(id, app string, ok bool, started time.Time) engine.Outcome {
	out := engine.Outcome{
		RequestID:   id,
		Success:     ok,
		State:       engine.StateDone,
		Target:      app,
		App:         app,
		PID:         42,
		Profile:     app,
		Strategy:    "accessibility_tree",
		Backend:     "paste",
		Content:     "plain",
		Attempts:    1,
		Length:      12,
		Fingerprint: engine.Fingerprint("hello world!"),
		StartedAt:   started,
		Duration:    150 * time.Millisecond,
	}
	if !ok {
		out.State = engine.StateFailed
		out.Kind = engine.KindBackendExecutionFailed
		out.Backend = ""
		out.Attempts = 3
		out.Diagnostic = "every delivery backend failed: boom"
	}
	return out
}

func TestOpenMigrates(t *testing.T) {
	j := openTemp(t)
	v, err := j.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
	assert.NoError(t, j.Ping(context.Background()))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), outcome("a", "Notes", true, time.Now()), nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	e, err := j.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Notes", e.App)
}

func TestRecordAndQuery(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := j.Record(ctx, outcome("r1", "Notes", true, base), []Attempt{{Backend: "paste", Try: 1, OK: true, Duration: time.Millisecond}})
	require.NoError(t, err)
	_, err = j.Record(ctx, outcome("r2", "Safari", false, base.Add(time.Minute)), []Attempt{
		{Backend: "paste", Try: 1, Error: "clipboard"},
		{Backend: "script", Try: 1, Error: "denied"},
	})
	require.NoError(t, err)
	_, err = j.Record(ctx, outcome("r3", "Notes", true, base.Add(2*time.Minute)), nil)
	require.NoError(t, err)

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].RequestID)
	assert.Equal(t, "r2", recent[1].RequestID)
	assert.Equal(t, "backend_execution_failed", recent[1].ErrorKind)
	assert.Equal(t, 150*time.Millisecond, recent[1].Duration)
	assert.True(t, recent[0].StartedAt.Equal(base.Add(2*time.Minute)))

	notes, err := j.ByApp(ctx, "notes", 0)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	attempts, err := j.Attempts(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "script", attempts[1].Backend)
	assert.Equal(t, "denied", attempts[1].Error)

	missing, err := j.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordRejectsDuplicate(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	_, err := j.Record(ctx, outcome("dup", "Notes", true, time.Now()), nil)
	require.NoError(t, err)
	_, err = j.Record(ctx, outcome("dup", "Notes", true, time.Now()), nil)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	for i, ok := range []bool{true, true, false} {
		_, err := j.Record(ctx, outcome(string(rune('a'+i)), "Notes", ok, now), nil)
		require.NoError(t, err)
	}

	s, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.ByBackend["paste"])
	assert.Equal(t, 1, s.ByKind["backend_execution_failed"])
}

func TestPruneCascades(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, err := j.Record(ctx, outcome("old", "Notes", true, old), []Attempt{{Backend: "paste", Try: 1, OK: true}})
	require.NoError(t, err)
	_, err = j.Record(ctx, outcome("new", "Notes", true, time.Now()), nil)
	require.NoError(t, err)

	n, err := j.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	attempts, err := j.Attempts(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestObserverRecordsAttempts(t *testing.T) {
	j := openTemp(t)
	obs := NewObserver(j, nil)
	ctx := context.Background()

	obs.OnTransition(ctx, engine.Event{Type: engine.EventTransition, RequestID: "x", State: engine.StatePreparing})
	obs.OnTransition(ctx, engine.Event{Type: engine.EventAttempt, RequestID: "x", Backend: "paste", Try: 1, Err: errors.New("clipboard busy")})
	obs.OnTransition(ctx, engine.Event{Type: engine.EventAttempt, RequestID: "x", Backend: "paste", Try: 2})
	obs.OnOutcome(ctx, outcome("x", "Slack", true, time.Now()))

	attempts, err := j.Attempts(ctx, "x")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].OK)
	assert.Equal(t, "clipboard busy", attempts[0].Error)
	assert.True(t, attempts[1].OK)
	assert.Empty(t, obs.pending)
}

func TestObserverSurvivesCancelledContext(t *testing.T) {
	j := openTemp(t)
	obs := NewObserver(j, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs.OnOutcome(ctx, outcome("late", "Slack", false, time.Now()))

	e, err := j.Get(context.Background(), "late")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.Success)
}
