package focus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/axtree"
	"scrivener/internal/cursor"
	"scrivener/internal/platform/fake"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, busy func() bool) (*fake.Desktop, *cursor.Store, *Watcher, *clock) {
	t.Helper()
	d := fake.New()
	store, err := cursor.New(d, d, cursor.DefaultConfig(), nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Debounce = time.Second
	w := New(d, store, busy, cfg, nil)
	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	w.now = c.now
	return d, store, w, c
}

func TestCapturesAppLosingFocus(t *testing.T) {
	d, store, w, c := setup(t, nil)
	notes := d.AddApp(10, "Notes", "com.apple.Notes")
	slack := d.AddApp(20, "Slack", "com.tinyspeck.slackmacgap")
	d.SetCaret(10, axtree.Point{X: 300, Y: 220})
	ctx := context.Background()

	assert.Nil(t, w.Poll(ctx))
	c.advance(2 * time.Second)
	assert.Nil(t, w.Poll(ctx))

	d.SetFrontmost(slack)
	sw := w.Poll(ctx)
	require.NotNil(t, sw)
	assert.Equal(t, notes.ID(), sw.From.ID())
	assert.True(t, sw.Captured)

	e, ok := store.Lookup(notes)
	require.True(t, ok)
	assert.Equal(t, axtree.Point{X: 300, Y: 220}, e.Point)
	switches, captures := w.Stats()
	assert.Equal(t, int64(1), switches)
	assert.Equal(t, int64(1), captures)
	assert.Same(t, sw, w.Last())
}

func TestDebounceSkipsBriefFocus(t *testing.T) {
	d, store, w, c := setup(t, nil)
	d.AddApp(10, "Notes", "com.apple.Notes")
	slack := d.AddApp(20, "Slack", "")
	d.SetCaret(10, axtree.Point{X: 1, Y: 1})
	ctx := context.Background()

	w.Poll(ctx)
	c.advance(100 * time.Millisecond)
	d.SetFrontmost(slack)

	sw := w.Poll(ctx)
	require.NotNil(t, sw)
	assert.False(t, sw.Captured)
	assert.Zero(t, store.Len())
}

func TestIgnoredApplications(t *testing.T) {
	d, store, w, c := setup(t, nil)
	d.AddApp(10, "Finder", "com.apple.finder")
	notes := d.AddApp(20, "Notes", "com.apple.Notes")
	d.SetCaret(10, axtree.Point{X: 5, Y: 5})
	ctx := context.Background()

	w.Poll(ctx)
	c.advance(5 * time.Second)
	d.SetFrontmost(notes)

	sw := w.Poll(ctx)
	require.NotNil(t, sw)
	assert.False(t, sw.Captured)
	assert.Zero(t, store.Len())
}

func TestPausesWhileBusy(t *testing.T) {
	busy := false
	d, store, w, c := setup(t, func() bool { return busy })
	d.AddApp(10, "Notes", "com.apple.Notes")
	slack := d.AddApp(20, "Slack", "")
	d.SetCaret(10, axtree.Point{X: 1, Y: 1})
	ctx := context.Background()

	w.Poll(ctx)
	c.advance(5 * time.Second)

	busy = true
	d.SetFrontmost(slack)
	before := d.Calls(fake.OpFrontmost)
	assert.Nil(t, w.Poll(ctx))
	assert.Equal(t, before, d.Calls(fake.OpFrontmost), "frontmost must not be read during a delivery")

	busy = false
	assert.Nil(t, w.Poll(ctx), "first poll after a delivery rebases")
	assert.Zero(t, store.Len())
}

func TestFrontmostErrorIsQuiet(t *testing.T) {
	d, _, w, _ := setup(t, nil)
	d.AddApp(10, "Notes", "")
	d.FailNext(fake.OpFrontmost, 1)

	assert.Nil(t, w.Poll(context.Background()))
	assert.Nil(t, w.Poll(context.Background()))
	assert.Nil(t, w.Last())
}

func TestRunStopsOnCancel(t *testing.T) {
	d, _, w, _ := setup(t, nil)
	d.AddApp(10, "Notes", "")
	w.cfg.PollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, d.Calls(fake.OpFrontmost))
}
