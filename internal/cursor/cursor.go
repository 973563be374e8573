// Package cursor remembers where the caret was in each application so a
// later delivery can click back into the same spot.
//
// Entries live in process memory only. They are keyed by the stable part of
// the application identity and validated against the full identity, so an
// entry captured for one process is never applied to another.
package cursor

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"scrivener/internal/axtree"
	"scrivener/internal/logging"
	"scrivener/internal/platform"
)

const (
	DefaultCapacity = 64
	DefaultMaxAge   = 30 * time.Minute
)

// Entry is one remembered caret position.
type Entry struct {
	AppID      string       `json:"app_id"`
	Point      axtree.Point `json:"point"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Config configures a Store.
type Config struct {
	Capacity int
	// MaxAge expires entries; zero keeps them until overwritten.
	MaxAge time.Duration
}

// DefaultConfig returns the default store settings.
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, MaxAge: DefaultMaxAge}
}

// Store captures and restores caret positions.
type Store struct {
	ax    platform.Accessibility
	input platform.Input
	log   *logging.Logger

	mu      sync.Mutex
	entries *lru.Cache[string, Entry]
	maxAge  time.Duration
	now     func() time.Time
}

// New returns a store backed by an LRU of cfg.Capacity entries.
func New(ax platform.Accessibility, in platform.Input, cfg Config, log *logging.Logger) (*Store, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	cache, err := lru.New[string, Entry](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Store{
		ax:      ax,
		input:   in,
		log:     log.WithComponent("cursor"),
		entries: cache,
		maxAge:  cfg.MaxAge,
		now:     time.Now,
	}, nil
}

// Capture reads the caret position of app and stores it, replacing any
// previous entry for the application. It is best-effort.
func (s *Store) Capture(ctx context.Context, app platform.App) (*Entry, bool) {
	p, err := s.ax.Caret(ctx, app)
	if err != nil {
		s.log.Debug("caret unavailable", "app", app.Label(), "error", err)
		return nil, false
	}

	e := Entry{AppID: app.ID(), Point: p, CapturedAt: s.now()}
	s.mu.Lock()
	s.entries.Add(app.Key(), e)
	s.mu.Unlock()
	return &e, true
}

// Lookup returns the entry usable for app: same identity and not expired.
func (s *Store) Lookup(app platform.App) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Get(app.Key())
	if !ok {
		return nil, false
	}
	if e.AppID != app.ID() {
		// the application was relaunched
		s.entries.Remove(app.Key())
		return nil, false
	}
	if s.expired(e) {
		s.entries.Remove(app.Key())
		return nil, false
	}
	return &e, true
}

// Restore clicks the remembered point. It refuses entries captured for a
// different identity than app.
func (s *Store) Restore(ctx context.Context, e *Entry, app platform.App) bool {
	if e == nil || e.AppID != app.ID() {
		return false
	}
	if s.expired(*e) {
		return false
	}
	if err := s.input.Click(ctx, e.Point); err != nil {
		s.log.Debug("restore click failed", "app", app.Label(), "error", err)
		return false
	}
	return true
}

// Forget drops the entry for app.
func (s *Store) Forget(app platform.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(app.Key())
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// Entries returns a copy of the stored entries, most recent first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.entries.Keys()
	out := make([]Entry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if e, ok := s.entries.Peek(keys[i]); ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) expired(e Entry) bool {
	return s.maxAge > 0 && s.now().Sub(e.CapturedAt) > s.maxAge
}
