// Package fake provides a scriptable in-memory desktop implementing every
// platform facility. It records what would have reached the screen so tests
// can assert on delivered text, clicks and activations.
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"scrivener/internal/axtree"
	"scrivener/internal/platform"
)

// ErrInjected is the error returned by facilities configured to fail.
var ErrInjected = errors.New("fake: injected failure")

// Op names used for failure injection and call counting.
const (
	OpList      = "list"
	OpFrontmost = "frontmost"
	OpActivate  = "activate"
	OpSnapshot  = "snapshot"
	OpFrame     = "frame"
	OpSetValue  = "set_value"
	OpCaret     = "caret"
	OpKey       = "key"
	OpClick     = "click"
	OpPaste     = "paste"
	OpScript    = "script"
	OpClipRead  = "clipboard_read"
	OpClipWrite = "clipboard_write"
	OpDisplay   = "display"
)

// Desktop is the fake. The zero value is not usable; call New.
type Desktop struct {
	mu sync.Mutex

	apps      []platform.App
	front     platform.App
	trees     map[int]*axtree.Node
	frames    map[int]axtree.Rect
	carets    map[int]axtree.Point
	screen    *axtree.Rect
	clipboard string

	failures map[string]int
	always   map[string]bool
	calls    map[string]int
	hooks    map[string]func(ctx context.Context) error

	// recorded effects
	typed      map[int]*strings.Builder
	keys       []platform.Key
	clicks     []axtree.Point
	pastes     []string
	scripts    []platform.Script
	activated  []platform.App
	values     []SetValueCall
	scriptText func(platform.Script) string
}

// SetValueCall records one accessibility write.
type SetValueCall struct {
	App  platform.App
	Path []int
	Text string
}

// New returns an empty desktop.
func New() *Desktop {
	return &Desktop{
		trees:    map[int]*axtree.Node{},
		frames:   map[int]axtree.Rect{},
		carets:   map[int]axtree.Point{},
		failures: map[string]int{},
		always:   map[string]bool{},
		calls:    map[string]int{},
		hooks:    map[string]func(context.Context) error{},
		typed:    map[int]*strings.Builder{},
	}
}

// Platform bundles d as a platform.Desktop.
func (d *Desktop) Platform() *platform.Desktop {
	return &platform.Desktop{
		Processes:      d,
		Accessibility:  d,
		Input:          d,
		Scripts:        d,
		Clipboard:      d,
		Displays:       d,
		ScriptLanguage: platform.LangShell,
		Probes: []platform.Probe{{
			Name:     "fake",
			Critical: true,
			Check:    func(context.Context) error { return d.fail(OpList) },
		}},
	}
}

// AddApp registers a running application and returns it.
func (d *Desktop) AddApp(pid int, name, bundleID string) platform.App {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := platform.App{PID: pid, Name: name, BundleID: bundleID}
	d.apps = append(d.apps, a)
	if d.front.PID == 0 {
		d.front = a
	}
	return a
}

// Quit removes the application with pid.
func (d *Desktop) Quit(pid int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.apps[:0]
	for _, a := range d.apps {
		if a.PID != pid {
			out = append(out, a)
		}
	}
	d.apps = out
	if d.front.PID == pid {
		d.front = platform.App{}
	}
}

// SetTree sets the snapshot returned for pid. Paths are assigned.
func (d *Desktop) SetTree(pid int, root *axtree.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	axtree.AssignPaths(root)
	d.trees[pid] = root
}

// SetWindow sets the window frame for pid.
func (d *Desktop) SetWindow(pid int, r axtree.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames[pid] = r
}

// SetCaret sets the caret position reported for pid.
func (d *Desktop) SetCaret(pid int, p axtree.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.carets[pid] = p
}

// SetScreen sets the primary display.
func (d *Desktop) SetScreen(r axtree.Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = &r
}

// SetFrontmost makes app the foreground application.
func (d *Desktop) SetFrontmost(app platform.App) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.front = app
}

// FailNext makes the next n calls of op fail with ErrInjected.
func (d *Desktop) FailNext(op string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] += n
}

// FailAlways makes every call of op fail.
func (d *Desktop) FailAlways(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.always[op] = true
}

// Hook runs fn at the start of every call of op. A non-nil error from fn
// becomes the call's result. Hooks run without the desktop lock held.
func (d *Desktop) Hook(op string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[op] = fn
}

// OnScript sets how script runs affect the typed text of the frontmost
// application. By default a script types nothing.
func (d *Desktop) OnScript(fn func(platform.Script) string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scriptText = fn
}

func (d *Desktop) enter(ctx context.Context, op string) error {
	d.mu.Lock()
	d.calls[op]++
	hook := d.hooks[op]
	d.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.fail(op)
}

func (d *Desktop) fail(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.always[op] {
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	if d.failures[op] > 0 {
		d.failures[op]--
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

// Calls returns how many times op was invoked.
func (d *Desktop) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Typed returns the text typed, pasted, scripted or set into pid.
func (d *Desktop) Typed(pid int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.typed[pid]; ok {
		return b.String()
	}
	return ""
}

// Clicks returns every click in order.
func (d *Desktop) Clicks() []axtree.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]axtree.Point(nil), d.clicks...)
}

// Keys returns every non-character key pressed.
func (d *Desktop) Keys() []platform.Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.Key(nil), d.keys...)
}

// Scripts returns every script run.
func (d *Desktop) Scripts() []platform.Script {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.Script(nil), d.scripts...)
}

// Activated returns every activated application.
func (d *Desktop) Activated() []platform.App {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.App(nil), d.activated...)
}

// Values returns every SetValue call.
func (d *Desktop) Values() []SetValueCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SetValueCall(nil), d.values...)
}

// Pastes returns the clipboard contents at every paste.
func (d *Desktop) Pastes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.pastes...)
}

// caller holds d.mu
func (d *Desktop) sink() *strings.Builder {
	b, ok := d.typed[d.front.PID]
	if !ok {
		b = &strings.Builder{}
		d.typed[d.front.PID] = b
	}
	return b
}

// ---------------------------------------------------------------------------
// platform.Processes
// ---------------------------------------------------------------------------

func (d *Desktop) List(ctx context.Context) ([]platform.App, error) {
	if err := d.enter(ctx, OpList); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.App(nil), d.apps...), nil
}

func (d *Desktop) Frontmost(ctx context.Context) (platform.App, error) {
	if err := d.enter(ctx, OpFrontmost); err != nil {
		return platform.App{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.front.PID == 0 {
		return platform.App{}, platform.ErrNotRunning
	}
	return d.front, nil
}

func (d *Desktop) Activate(ctx context.Context, app platform.App) error {
	if err := d.enter(ctx, OpActivate); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.apps {
		if a.PID == app.PID {
			d.front = a
			d.activated = append(d.activated, a)
			return nil
		}
	}
	return fmt.Errorf("%w: pid %d", platform.ErrNotRunning, app.PID)
}

func (d *Desktop) Alive(app platform.App) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.apps {
		if a.PID == app.PID {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// platform.Accessibility
// ---------------------------------------------------------------------------

func (d *Desktop) Snapshot(ctx context.Context, app platform.App, maxDepth int) (*axtree.Node, error) {
	if err := d.enter(ctx, OpSnapshot); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	root, ok := d.trees[app.PID]
	if !ok {
		return nil, platform.ErrNoElement
	}
	return prune(root, 0, maxDepth), nil
}

func prune(n *axtree.Node, depth, maxDepth int) *axtree.Node {
	c := *n
	c.Path = append([]int(nil), n.Path...)
	c.Children = nil
	if depth < maxDepth {
		for _, k := range n.Children {
			c.Children = append(c.Children, prune(k, depth+1, maxDepth))
		}
	}
	return &c
}

func (d *Desktop) WindowFrame(ctx context.Context, app platform.App) (*axtree.Rect, error) {
	if err := d.enter(ctx, OpFrame); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.frames[app.PID]
	if !ok {
		return nil, platform.ErrNoElement
	}
	return &r, nil
}

func (d *Desktop) SetValue(ctx context.Context, app platform.App, path []int, text string) error {
	if err := d.enter(ctx, OpSetValue); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	root, ok := d.trees[app.PID]
	if !ok || axtree.Find(root, path) == nil {
		return platform.ErrNoElement
	}
	d.values = append(d.values, SetValueCall{App: app, Path: append([]int(nil), path...), Text: text})
	b, ok := d.typed[app.PID]
	if !ok {
		b = &strings.Builder{}
		d.typed[app.PID] = b
	}
	b.WriteString(text)
	return nil
}

func (d *Desktop) Caret(ctx context.Context, app platform.App) (axtree.Point, error) {
	if err := d.enter(ctx, OpCaret); err != nil {
		return axtree.Point{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.carets[app.PID]
	if !ok {
		return axtree.Point{}, platform.ErrNoElement
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// platform.Input
// ---------------------------------------------------------------------------

func (d *Desktop) KeyRune(ctx context.Context, r rune) error {
	if err := d.enter(ctx, OpKey); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink().WriteRune(r)
	return nil
}

func (d *Desktop) KeyPress(ctx context.Context, k platform.Key) error {
	if err := d.enter(ctx, OpKey); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, k)
	switch k {
	case platform.KeyEnter:
		d.sink().WriteByte('\n')
	case platform.KeyTab:
		d.sink().WriteByte('\t')
	}
	return nil
}

func (d *Desktop) Click(ctx context.Context, p axtree.Point) error {
	if err := d.enter(ctx, OpClick); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, p)
	return nil
}

func (d *Desktop) Paste(ctx context.Context) error {
	if err := d.enter(ctx, OpPaste); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pastes = append(d.pastes, d.clipboard)
	d.sink().WriteString(d.clipboard)
	return nil
}

// ---------------------------------------------------------------------------
// platform.Scripts, Clipboard, Displays
// ---------------------------------------------------------------------------

func (d *Desktop) Run(ctx context.Context, s platform.Script) (string, error) {
	if err := d.enter(ctx, OpScript); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, s)
	if d.scriptText != nil {
		d.sink().WriteString(d.scriptText(s))
	}
	return "ok", nil
}

func (d *Desktop) ReadText(ctx context.Context) (string, error) {
	if err := d.enter(ctx, OpClipRead); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard, nil
}

func (d *Desktop) WriteText(ctx context.Context, text string) error {
	if err := d.enter(ctx, OpClipWrite); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
	return nil
}

func (d *Desktop) Primary(ctx context.Context) (axtree.Rect, error) {
	if err := d.enter(ctx, OpDisplay); err != nil {
		return axtree.Rect{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.screen == nil {
		return axtree.Rect{}, platform.ErrUnsupported
	}
	return *d.screen, nil
}
