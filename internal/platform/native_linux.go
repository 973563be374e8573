//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"scrivener/internal/axtree"
)

// ============================================================================
// Linux desktop
// ============================================================================
//
// X11 (or XWayland) is driven through xdotool: activation, geometry,
// keystrokes and clicks. Processes come from /proc. The accessibility tree
// is read over the AT-SPI D-Bus (atspi_linux.go). The script bridge runs
// POSIX shell programs made of xdotool invocations.
//
// ============================================================================

func newNative(opts Options) (*Desktop, error) {
	r := runner{timeout: opts.CommandTimeout}
	x := &xdo{run: r, bin: opts.Xdotool, procRoot: "/proc"}
	clip := newLinuxClipboard(r, opts.Clipboard)
	ax := newATSPI(x, opts.Logger.WithComponent("atspi"))

	return &Desktop{
		Processes:      x,
		Accessibility:  ax,
		Input:          x,
		Scripts:        shellScripts{run: r},
		Clipboard:      clip,
		Displays:       x,
		ScriptLanguage: LangShell,
		Probes: []Probe{
			{
				Name:     "display",
				Critical: true,
				Check: func(context.Context) error {
					if detectDisplayServer() == "wayland" {
						return errors.New("pure Wayland session: synthetic input needs X11 or XWayland")
					}
					if detectDisplayServer() == "unknown" {
						return errors.New("no DISPLAY set")
					}
					return nil
				},
			},
			binaryProbe("xdotool", opts.Xdotool, true),
			anyBinaryProbe("clipboard", false, "xclip", "xsel", "wl-copy"),
			{Name: "atspi", Critical: false, Check: ax.ping},
		},
	}, nil
}

// detectDisplayServer reports "x11", "wayland" or "unknown".
func detectDisplayServer() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if os.Getenv("DISPLAY") != "" {
			return "x11"
		}
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

// xdo implements Processes, Input and Displays.
type xdo struct {
	run      runner
	bin      string
	procRoot string
}

func (x *xdo) procApp(pid int) (App, bool) {
	dir := filepath.Join(x.procRoot, strconv.Itoa(pid))
	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return App{}, false
	}
	exe, err := os.Readlink(filepath.Join(dir, "exe"))
	if err != nil {
		// kernel threads and other users' processes
		return App{}, false
	}
	return App{
		PID:      pid,
		Name:     strings.TrimSpace(string(comm)),
		BundleID: filepath.Base(strings.TrimSuffix(exe, " (deleted)")),
	}, true
}

// List enumerates the current user's processes, lowest PID first.
func (x *xdo) List(ctx context.Context) ([]App, error) {
	entries, err := os.ReadDir(x.procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", x.procRoot, err)
	}

	uid := uint32(os.Getuid())
	var apps []App
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Uid != uid {
			continue
		}
		if app, ok := x.procApp(pid); ok {
			apps = append(apps, app)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].PID < apps[j].PID })
	return apps, nil
}

func (x *xdo) Frontmost(ctx context.Context) (App, error) {
	out, err := x.run.output(ctx, x.bin, "getactivewindow", "getwindowpid")
	if err != nil {
		return App{}, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return App{}, fmt.Errorf("parse window pid %q: %w", strings.TrimSpace(out), err)
	}
	app, ok := x.procApp(pid)
	if !ok {
		return App{}, fmt.Errorf("%w: pid %d", ErrNotRunning, pid)
	}
	return app, nil
}

// window returns the first visible window owned by app.
func (x *xdo) window(ctx context.Context, app App) (string, error) {
	out, err := x.run.output(ctx, x.bin, "search", "--onlyvisible", "--pid", strconv.Itoa(app.PID))
	if err != nil {
		// xdotool search exits 1 with no output when nothing matches
		if strings.TrimSpace(out) == "" {
			return "", fmt.Errorf("%w: no visible window for %s", ErrNoElement, app)
		}
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no visible window for %s", ErrNoElement, app)
	}
	return fields[0], nil
}

func (x *xdo) Activate(ctx context.Context, app App) error {
	wid, err := x.window(ctx, app)
	if err != nil {
		return err
	}
	_, err = x.run.output(ctx, x.bin, "windowactivate", "--sync", wid)
	return err
}

func (x *xdo) Alive(app App) bool {
	return processAlive(app.PID)
}

// windowFrame parses `xdotool getwindowgeometry --shell`.
func (x *xdo) windowFrame(ctx context.Context, app App) (*axtree.Rect, error) {
	wid, err := x.window(ctx, app)
	if err != nil {
		return nil, err
	}
	out, err := x.run.output(ctx, x.bin, "getwindowgeometry", "--shell", wid)
	if err != nil {
		return nil, err
	}
	vals := map[string]float64{}
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			vals[k] = f
		}
	}
	r := &axtree.Rect{X: vals["X"], Y: vals["Y"], Width: vals["WIDTH"], Height: vals["HEIGHT"]}
	if r.Empty() {
		return nil, fmt.Errorf("window %s reports empty geometry", wid)
	}
	return r, nil
}

func (x *xdo) KeyRune(ctx context.Context, r rune) error {
	// Text goes through stdin so it never shows up in the process table.
	_, err := x.run.run(ctx, command{
		Name:  x.bin,
		Args:  []string{"type", "--delay", "0", "--file", "-"},
		Stdin: string(r),
	})
	return err
}

var xdoKeys = map[Key]string{
	KeyEnter:     "Return",
	KeyTab:       "Tab",
	KeyEscape:    "Escape",
	KeyBackspace: "BackSpace",
}

func (x *xdo) KeyPress(ctx context.Context, k Key) error {
	name, ok := xdoKeys[k]
	if !ok {
		return fmt.Errorf("%w: key %s", ErrUnsupported, k)
	}
	_, err := x.run.output(ctx, x.bin, "key", "--clearmodifiers", name)
	return err
}

func (x *xdo) Click(ctx context.Context, p axtree.Point) error {
	_, err := x.run.output(ctx, x.bin,
		"mousemove", "--sync", strconv.Itoa(int(p.X)), strconv.Itoa(int(p.Y)),
		"click", "1")
	return err
}

func (x *xdo) Paste(ctx context.Context) error {
	_, err := x.run.output(ctx, x.bin, "key", "--clearmodifiers", "ctrl+v")
	return err
}

func (x *xdo) Primary(ctx context.Context) (axtree.Rect, error) {
	out, err := x.run.output(ctx, x.bin, "getdisplaygeometry")
	if err != nil {
		return axtree.Rect{}, err
	}
	f := strings.Fields(out)
	if len(f) != 2 {
		return axtree.Rect{}, fmt.Errorf("parse display geometry %q", strings.TrimSpace(out))
	}
	w, errW := strconv.ParseFloat(f[0], 64)
	h, errH := strconv.ParseFloat(f[1], 64)
	if errW != nil || errH != nil {
		return axtree.Rect{}, fmt.Errorf("parse display geometry %q", strings.TrimSpace(out))
	}
	return axtree.Rect{Width: w, Height: h}, nil
}

// shellScripts runs LangShell programs with `sh -s`. A script runs until
// ctx is done, however long that is.
type shellScripts struct {
	run runner
}

func (s shellScripts) Run(ctx context.Context, sc Script) (string, error) {
	if sc.Language != LangShell {
		return "", fmt.Errorf("%w: script language %q", ErrUnsupported, sc.Language)
	}
	args := append([]string{"-s", "--"}, sc.Args...)
	out, err := s.run.run(ctx, command{Name: "sh", Args: args, Stdin: sc.Source, Unbounded: true})
	return strings.TrimSpace(out), err
}
