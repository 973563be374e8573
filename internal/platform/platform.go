// Package platform defines the operating-system facilities the delivery
// engine drives: process enumeration and activation, accessibility trees,
// synthetic input, script execution, the clipboard and display geometry.
//
// Each facility is a small interface. Native implementations live in
// build-tagged files; package fake provides an in-memory desktop for tests.
package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"scrivener/internal/axtree"
	"scrivener/internal/logging"
)

var (
	// ErrUnsupported is returned by facilities the current OS or session
	// cannot provide.
	ErrUnsupported = errors.New("platform: not supported")

	// ErrNotRunning is returned when no running application matches.
	ErrNotRunning = errors.New("platform: application not running")

	// ErrNoElement is returned when an element path no longer resolves.
	ErrNoElement = errors.New("platform: element not found")
)

// App identifies a running application. It is resolved fresh for every
// delivery and never cached beyond one call.
type App struct {
	PID      int    `json:"pid"`
	BundleID string `json:"bundle_id,omitempty"`
	Name     string `json:"name"`
}

// Key returns the stable part of the identity (bundle ID, else name),
// lower-cased.
func (a App) Key() string {
	if a.BundleID != "" {
		return strings.ToLower(a.BundleID)
	}
	return strings.ToLower(a.Name)
}

// ID returns the full identity including the process ID, so a relaunched
// application is a different identity.
func (a App) ID() string {
	return fmt.Sprintf("%s#%d", a.Key(), a.PID)
}

// Label is the human-readable name.
func (a App) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.BundleID
}

func (a App) String() string {
	return fmt.Sprintf("%s (pid %d)", a.Label(), a.PID)
}

// Key is a non-character key.
type Key int

const (
	KeyEnter Key = iota
	KeyTab
	KeyEscape
	KeyBackspace
)

func (k Key) String() string {
	switch k {
	case KeyEnter:
		return "enter"
	case KeyTab:
		return "tab"
	case KeyEscape:
		return "escape"
	case KeyBackspace:
		return "backspace"
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

// Script languages understood by the native Scripts implementations.
const (
	LangAppleScript = "applescript"
	LangJavaScript  = "javascript"
	LangShell       = "sh"
)

// Script is a program handed to the OS scripting host.
type Script struct {
	Language string
	Source   string
	Args     []string
}

// Processes enumerates and activates applications.
type Processes interface {
	List(ctx context.Context) ([]App, error)
	Frontmost(ctx context.Context) (App, error)
	Activate(ctx context.Context, app App) error
	Alive(app App) bool
}

// Accessibility reads accessibility trees and writes element values.
// Paths address elements relative to the root returned by Snapshot.
type Accessibility interface {
	Snapshot(ctx context.Context, app App, maxDepth int) (*axtree.Node, error)
	WindowFrame(ctx context.Context, app App) (*axtree.Rect, error)
	SetValue(ctx context.Context, app App, path []int, text string) error
	Caret(ctx context.Context, app App) (axtree.Point, error)
}

// Input synthesises keyboard and mouse events into the focused surface.
type Input interface {
	KeyRune(ctx context.Context, r rune) error
	KeyPress(ctx context.Context, k Key) error
	Click(ctx context.Context, p axtree.Point) error
	Paste(ctx context.Context) error
}

// Scripts runs programs through the OS scripting host.
type Scripts interface {
	Run(ctx context.Context, s Script) (string, error)
}

// Clipboard reads and writes plain text.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// Displays reports display geometry.
type Displays interface {
	Primary(ctx context.Context) (axtree.Rect, error)
}

// Probe is a named readiness check for one facility.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Desktop bundles one implementation of every facility.
type Desktop struct {
	Processes     Processes
	Accessibility Accessibility
	Input         Input
	Scripts       Scripts
	Clipboard     Clipboard
	Displays      Displays

	// ScriptLanguage is the language the script bridge renders for.
	ScriptLanguage string

	Probes []Probe
}

// Options configures the native desktop.
type Options struct {
	// CommandTimeout bounds every helper process.
	CommandTimeout time.Duration

	Xdotool   string
	Osascript string

	// Clipboard selects the Linux clipboard tool: "auto", "xclip", "xsel"
	// or "wl-copy".
	Clipboard string

	Logger *logging.Logger
}

// DefaultOptions returns options that look helpers up on PATH.
func DefaultOptions() Options {
	return Options{
		CommandTimeout: 10 * time.Second,
		Xdotool:        "xdotool",
		Osascript:      "osascript",
		Clipboard:      "auto",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.Xdotool == "" {
		o.Xdotool = d.Xdotool
	}
	if o.Osascript == "" {
		o.Osascript = d.Osascript
	}
	if o.Clipboard == "" {
		o.Clipboard = d.Clipboard
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

// Native returns the desktop for the running OS.
func Native(opts Options) (*Desktop, error) {
	return newNative(opts.withDefaults())
}

// Resolve finds the running application for query. Each name is tried in
// order: an exact case-insensitive match on name or bundle ID first, then a
// looser match (see fuzzy).
func Resolve(ctx context.Context, procs Processes, names ...string) (App, error) {
	apps, err := procs.List(ctx)
	if err != nil {
		return App{}, fmt.Errorf("list applications: %w", err)
	}

	for _, name := range names {
		q := strings.ToLower(strings.TrimSpace(name))
		if q == "" {
			continue
		}
		for _, a := range apps {
			if strings.EqualFold(a.Name, q) || strings.EqualFold(a.BundleID, q) {
				return a, nil
			}
		}
	}
	for _, name := range names {
		q := strings.ToLower(strings.TrimSpace(name))
		if q == "" {
			continue
		}
		for _, a := range apps {
			if fuzzy(a.Name, q) || fuzzy(a.BundleID, q) {
				return a, nil
			}
		}
	}

	return App{}, fmt.Errorf("%w: %s", ErrNotRunning, strings.Join(names, ", "))
}

// minWordMatch is the shortest process name accepted as a word of a longer
// query. Short names such as "sh" from /proc/<pid>/comm would otherwise
// capture unrelated queries.
const minWordMatch = 4

// fuzzy reports whether candidate is the application q names: q appears
// inside candidate, or candidate is a run of whole words of q.
func fuzzy(candidate, q string) bool {
	c := strings.ToLower(candidate)
	if c == "" {
		return false
	}
	if strings.Contains(c, q) {
		return true
	}
	return len(c) >= minWordMatch && containsWords(words(q), words(c))
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWords reports whether sub occurs as a contiguous run in ws.
func containsWords(ws, sub []string) bool {
	if len(sub) == 0 || len(sub) > len(ws) {
		return false
	}
	for i := 0; i+len(sub) <= len(ws); i++ {
		if slices.Equal(ws[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}
