// Package focus watches the foreground application and remembers the caret
// of the application that is losing focus, so a later delivery into it can
// land where the user left off.
package focus

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scrivener/internal/cursor"
	"scrivener/internal/logging"
	"scrivener/internal/platform"
)

// Config configures the watcher.
type Config struct {
	// PollInterval is how often the frontmost application is read.
	PollInterval time.Duration

	// Debounce is how long an application must hold focus before its
	// caret is worth remembering.
	Debounce time.Duration

	// Ignored lists application names or bundle IDs never captured.
	Ignored []string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 250 * time.Millisecond,
		Debounce:     500 * time.Millisecond,
		Ignored: []string{
			"com.apple.finder",
			"com.apple.Spotlight",
			"com.apple.dock",
			"com.apple.systempreferences",
			"gnome-shell",
			"plasmashell",
			"nautilus",
			"dolphin",
		},
	}
}

// Switch describes one observed focus change.
type Switch struct {
	From     platform.App
	To       platform.App
	At       time.Time
	Captured bool
}

// Watcher polls the frontmost application.
type Watcher struct {
	procs platform.Processes
	store *cursor.Store
	busy  func() bool
	cfg   Config
	log   *logging.Logger
	self  int
	now   func() time.Time

	mu      sync.Mutex
	current platform.App
	since   time.Time
	last    *Switch

	switches atomic.Int64
	captures atomic.Int64
}

// New returns a watcher. busy reports whether a delivery is in flight; the
// watcher stands still while it returns true so the engine's own
// activations are not mistaken for user switches.
func New(procs platform.Processes, store *cursor.Store, busy func() bool, cfg Config, log *logging.Logger) *Watcher {
	d := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if busy == nil {
		busy = func() bool { return false }
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Watcher{
		procs: procs,
		store: store,
		busy:  busy,
		cfg:   cfg,
		log:   log.WithComponent("focus"),
		self:  os.Getpid(),
		now:   time.Now,
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("focus watcher started", "interval", w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("focus watcher stopped", "switches", w.switches.Load(), "captures", w.captures.Load())
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll reads the frontmost application once and returns the switch it
// observed, if any.
func (w *Watcher) Poll(ctx context.Context) *Switch {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busy() {
		// Rebase after the delivery; the engine captured its own target.
		w.current = platform.App{}
		return nil
	}

	front, err := w.procs.Frontmost(ctx)
	if err != nil {
		w.log.Debug("frontmost unavailable", "error", err)
		return nil
	}
	if front.PID == w.self {
		return nil
	}

	now := w.now()
	if w.current.PID == 0 {
		w.current, w.since = front, now
		return nil
	}
	if front.ID() == w.current.ID() {
		return nil
	}

	sw := &Switch{From: w.current, To: front, At: now}
	if now.Sub(w.since) >= w.cfg.Debounce && !w.ignored(w.current) && w.procs.Alive(w.current) {
		if _, ok := w.store.Capture(ctx, w.current); ok {
			sw.Captured = true
			w.captures.Add(1)
		}
	}
	w.log.Debug("focus changed", "from", sw.From.Label(), "to", sw.To.Label(), "captured", sw.Captured)

	w.switches.Add(1)
	w.current, w.since = front, now
	w.last = sw
	return sw
}

// Last returns the most recent switch, or nil.
func (w *Watcher) Last() *Switch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Stats returns how many switches were seen and how many captured a caret.
func (w *Watcher) Stats() (switches, captures int64) {
	return w.switches.Load(), w.captures.Load()
}

func (w *Watcher) ignored(app platform.App) bool {
	for _, name := range w.cfg.Ignored {
		if strings.EqualFold(name, app.Name) || (app.BundleID != "" && strings.EqualFold(name, app.BundleID)) {
			return true
		}
	}
	return false
}
