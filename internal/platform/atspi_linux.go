//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"scrivener/internal/axtree"
	"scrivener/internal/logging"
)

// AT-SPI interfaces and well-known names.
const (
	a11yBusName      = "org.a11y.Bus"
	a11yBusPath      = "/org/a11y/bus"
	atspiRegistry    = "org.a11y.atspi.Registry"
	atspiRootPath    = "/org/a11y/atspi/accessible/root"
	ifaceAccessible  = "org.a11y.atspi.Accessible"
	ifaceComponent   = "org.a11y.atspi.Component"
	ifaceText        = "org.a11y.atspi.Text"
	ifaceEditable    = "org.a11y.atspi.EditableText"
	coordTypeScreen  = uint32(0)
	maxChildren      = 256
	maxValuePreview  = 64
	maxFocusSearched = 4000
)

// AtspiStateType bit positions.
const (
	stateActive    = 1
	stateEditable  = 7
	stateFocusable = 11
	stateFocused   = 12
)

type accessibleRef struct {
	Name string
	Path dbus.ObjectPath
}

type extents struct {
	X, Y, W, H int32
}

type stateSet []uint32

func (s stateSet) has(bit int) bool {
	w := bit / 32
	return w < len(s) && s[w]&(1<<(uint(bit)%32)) != 0
}

// atspi implements Accessibility over the accessibility D-Bus.
type atspi struct {
	mu   sync.Mutex
	conn *dbus.Conn
	x    *xdo
	log  *logging.Logger
}

func newATSPI(x *xdo, log *logging.Logger) *atspi {
	return &atspi{x: x, log: log}
}

// bus connects to the dedicated accessibility bus, whose address is
// published by org.a11y.Bus on the session bus.
func (a *atspi) bus() (*dbus.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil && a.conn.Connected() {
		return a.conn, nil
	}

	session, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	var addr string
	if err := session.Object(a11yBusName, a11yBusPath).Call(a11yBusName+".GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("get a11y bus address: %w", err)
	}
	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connect a11y bus: %w", err)
	}
	a.conn = conn
	return conn, nil
}

func (a *atspi) ping(ctx context.Context) error {
	conn, err := a.bus()
	if err != nil {
		return err
	}
	var children []accessibleRef
	return conn.Object(atspiRegistry, atspiRootPath).
		CallWithContext(ctx, ifaceAccessible+".GetChildren", 0).Store(&children)
}

func (a *atspi) children(ctx context.Context, conn *dbus.Conn, ref accessibleRef) ([]accessibleRef, error) {
	var out []accessibleRef
	err := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, ifaceAccessible+".GetChildren", 0).Store(&out)
	return out, err
}

// window returns the active top-level window of app, or its first one.
func (a *atspi) window(ctx context.Context, conn *dbus.Conn, app App) (accessibleRef, error) {
	apps, err := a.children(ctx, conn, accessibleRef{Name: atspiRegistry, Path: atspiRootPath})
	if err != nil {
		return accessibleRef{}, fmt.Errorf("list accessible applications: %w", err)
	}

	for _, ref := range apps {
		var pid uint32
		err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.GetConnectionUnixProcessID", 0, ref.Name).Store(&pid)
		if err != nil || int(pid) != app.PID {
			continue
		}
		wins, err := a.children(ctx, conn, ref)
		if err != nil {
			return accessibleRef{}, err
		}
		if len(wins) == 0 {
			break
		}
		for _, w := range wins {
			if a.states(ctx, conn, w).has(stateActive) {
				return w, nil
			}
		}
		return wins[0], nil
	}
	return accessibleRef{}, fmt.Errorf("%w: %s exposes no accessible window", ErrNoElement, app)
}

func (a *atspi) states(ctx context.Context, conn *dbus.Conn, ref accessibleRef) stateSet {
	var s []uint32
	if err := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, ifaceAccessible+".GetState", 0).Store(&s); err != nil {
		return nil
	}
	return s
}

func (a *atspi) extents(ctx context.Context, conn *dbus.Conn, ref accessibleRef) (*axtree.Rect, bool) {
	var e extents
	err := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, ifaceComponent+".GetExtents", 0, coordTypeScreen).Store(&e)
	if err != nil || e.W <= 0 || e.H <= 0 {
		return nil, false
	}
	return &axtree.Rect{X: float64(e.X), Y: float64(e.Y), Width: float64(e.W), Height: float64(e.H)}, true
}

func (a *atspi) textPreview(ctx context.Context, conn *dbus.Conn, ref accessibleRef) string {
	obj := conn.Object(ref.Name, ref.Path)
	v, err := obj.GetProperty(ifaceText + ".CharacterCount")
	if err != nil {
		return ""
	}
	count, ok := v.Value().(int32)
	if !ok || count <= 0 {
		return ""
	}
	var text string
	if err := obj.CallWithContext(ctx, ifaceText+".GetText", 0, int32(0), min(count, maxValuePreview)).Store(&text); err != nil {
		return ""
	}
	return text
}

func (a *atspi) node(ctx context.Context, conn *dbus.Conn, ref accessibleRef, path []int, depth, maxDepth int) *axtree.Node {
	var role string
	_ = conn.Object(ref.Name, ref.Path).CallWithContext(ctx, ifaceAccessible+".GetRoleName", 0).Store(&role)

	st := a.states(ctx, conn, ref)
	n := &axtree.Node{
		Role:      axtree.NormalizeRole(role),
		Focusable: st.has(stateFocusable),
		Focused:   st.has(stateFocused),
		Editable:  st.has(stateEditable),
		Path:      append([]int(nil), path...),
	}
	if r, ok := a.extents(ctx, conn, ref); ok {
		n.Frame = r
	}
	if axtree.IsTextRole(n.Role) || n.Editable {
		n.Value = a.textPreview(ctx, conn, ref)
	}

	if depth >= maxDepth || ctx.Err() != nil {
		return n
	}
	kids, err := a.children(ctx, conn, ref)
	if err != nil {
		return n
	}
	if len(kids) > maxChildren {
		kids = kids[:maxChildren]
	}
	for i, k := range kids {
		n.Children = append(n.Children, a.node(ctx, conn, k, append(path, i), depth+1, maxDepth))
	}
	return n
}

func (a *atspi) Snapshot(ctx context.Context, app App, maxDepth int) (*axtree.Node, error) {
	conn, err := a.bus()
	if err != nil {
		return nil, err
	}
	win, err := a.window(ctx, conn, app)
	if err != nil {
		return nil, err
	}
	root := a.node(ctx, conn, win, nil, 0, maxDepth)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.log.Debug("snapshot", "app", app.Label(), "nodes", axtree.Count(root))
	return root, nil
}

func (a *atspi) WindowFrame(ctx context.Context, app App) (*axtree.Rect, error) {
	if r, err := a.x.windowFrame(ctx, app); err == nil {
		return r, nil
	}
	conn, err := a.bus()
	if err != nil {
		return nil, err
	}
	win, err := a.window(ctx, conn, app)
	if err != nil {
		return nil, err
	}
	r, ok := a.extents(ctx, conn, win)
	if !ok {
		return nil, fmt.Errorf("%w: window has no extents", ErrNoElement)
	}
	return r, nil
}

func (a *atspi) resolve(ctx context.Context, conn *dbus.Conn, app App, path []int) (accessibleRef, error) {
	ref, err := a.window(ctx, conn, app)
	if err != nil {
		return accessibleRef{}, err
	}
	for _, i := range path {
		var next accessibleRef
		err := conn.Object(ref.Name, ref.Path).CallWithContext(ctx, ifaceAccessible+".GetChildAtIndex", 0, int32(i)).Store(&next)
		if err != nil {
			return accessibleRef{}, fmt.Errorf("%w: child %d: %v", ErrNoElement, i, err)
		}
		ref = next
	}
	return ref, nil
}

// SetValue inserts text at the element's caret through EditableText.
func (a *atspi) SetValue(ctx context.Context, app App, path []int, text string) error {
	conn, err := a.bus()
	if err != nil {
		return err
	}
	ref, err := a.resolve(ctx, conn, app, path)
	if err != nil {
		return err
	}
	obj := conn.Object(ref.Name, ref.Path)

	pos := int32(-1)
	if v, err := obj.GetProperty(ifaceText + ".CaretOffset"); err == nil {
		if p, ok := v.Value().(int32); ok {
			pos = p
		}
	}
	if pos < 0 {
		if v, err := obj.GetProperty(ifaceText + ".CharacterCount"); err == nil {
			if c, ok := v.Value().(int32); ok {
				pos = c
			}
		}
	}
	if pos < 0 {
		pos = 0
	}

	var ok bool
	length := int32(len([]rune(text)))
	if err := obj.CallWithContext(ctx, ifaceEditable+".InsertText", 0, pos, text, length).Store(&ok); err != nil {
		return fmt.Errorf("insert text: %w", err)
	}
	if !ok {
		return errors.New("insert text: element refused the edit")
	}
	return nil
}

// Caret returns the screen position of the caret in the focused element.
func (a *atspi) Caret(ctx context.Context, app App) (axtree.Point, error) {
	conn, err := a.bus()
	if err != nil {
		return axtree.Point{}, err
	}
	win, err := a.window(ctx, conn, app)
	if err != nil {
		return axtree.Point{}, err
	}

	focused, ok := a.findFocused(ctx, conn, win)
	if !ok {
		return axtree.Point{}, fmt.Errorf("%w: no focused element", ErrNoElement)
	}
	obj := conn.Object(focused.Name, focused.Path)

	if v, err := obj.GetProperty(ifaceText + ".CaretOffset"); err == nil {
		if off, ok := v.Value().(int32); ok && off >= 0 {
			var e extents
			err := obj.CallWithContext(ctx, ifaceText+".GetCharacterExtents", 0, off, coordTypeScreen).Store(&e)
			if err == nil && e.H > 0 {
				return axtree.Point{X: float64(e.X) + 1, Y: float64(e.Y) + float64(e.H)/2}, nil
			}
		}
	}

	r, ok := a.extents(ctx, conn, focused)
	if !ok {
		return axtree.Point{}, fmt.Errorf("%w: focused element has no extents", ErrNoElement)
	}
	return r.Center(), nil
}

func (a *atspi) findFocused(ctx context.Context, conn *dbus.Conn, root accessibleRef) (accessibleRef, bool) {
	queue := []accessibleRef{root}
	for seen := 0; len(queue) > 0 && seen < maxFocusSearched; seen++ {
		if ctx.Err() != nil {
			return accessibleRef{}, false
		}
		ref := queue[0]
		queue = queue[1:]
		if a.states(ctx, conn, ref).has(stateFocused) {
			return ref, true
		}
		kids, err := a.children(ctx, conn, ref)
		if err != nil {
			continue
		}
		if len(kids) > maxChildren {
			kids = kids[:maxChildren]
		}
		queue = append(queue, kids...)
	}
	return accessibleRef{}, false
}
