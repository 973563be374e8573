//go:build darwin

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"scrivener/internal/axtree"
)

// ============================================================================
// macOS desktop
// ============================================================================
//
// Processes, accessibility snapshots and element writes go through
// osascript running JXA against System Events. Keystrokes, clicks, display
// bounds and caret position use Quartz and the AX C API (input_darwin.go).
// The script bridge runs AppleScript.
//
// ============================================================================

func newNative(opts Options) (*Desktop, error) {
	r := runner{timeout: opts.CommandTimeout}
	osa := &osascript{run: r, bin: opts.Osascript}
	q := quartz{}

	return &Desktop{
		Processes:      osa,
		Accessibility:  osa,
		Input:          q,
		Scripts:        osa,
		Clipboard:      pasteboard{run: r},
		Displays:       q,
		ScriptLanguage: LangAppleScript,
		Probes: []Probe{
			{Name: "accessibility_permission", Critical: true, Check: accessibilityTrusted},
			binaryProbe("osascript", opts.Osascript, true),
			binaryProbe("pbcopy", "pbcopy", false),
			{Name: "system_events", Critical: false, Check: func(ctx context.Context) error {
				_, err := osa.Frontmost(ctx)
				return err
			}},
		},
	}, nil
}

type osascript struct {
	run runner
	bin string
}

// Run implements Scripts. The program is fed on stdin so argv stays short
// and free of delivered text. Only ctx bounds it.
func (o *osascript) Run(ctx context.Context, s Script) (string, error) {
	lang := "AppleScript"
	switch s.Language {
	case LangAppleScript:
	case LangJavaScript:
		lang = "JavaScript"
	default:
		return "", fmt.Errorf("%w: script language %q", ErrUnsupported, s.Language)
	}
	args := append([]string{"-l", lang, "-"}, s.Args...)
	out, err := o.run.run(ctx, command{Name: o.bin, Args: args, Stdin: s.Source, Unbounded: true})
	return strings.TrimSpace(out), err
}

func (o *osascript) jxa(ctx context.Context, src string, env []string, args ...string) (string, error) {
	out, err := o.run.run(ctx, command{
		Name:  o.bin,
		Args:  append([]string{"-l", "JavaScript", "-"}, args...),
		Stdin: src,
		Env:   env,
	})
	return strings.TrimSpace(out), err
}

const jxaProcesses = `
function run(argv) {
  const se = Application('System Events');
  const onlyFront = argv[0] === 'front';
  const procs = onlyFront
    ? se.applicationProcesses.whose({frontmost: true})()
    : se.applicationProcesses.whose({backgroundOnly: false})();
  return JSON.stringify(procs.map(p => {
    let bundle = '';
    try { bundle = p.bundleIdentifier() || ''; } catch (e) {}
    return {pid: p.unixId(), bundle_id: bundle, name: p.name()};
  }));
}`

func (o *osascript) processes(ctx context.Context, which string) ([]App, error) {
	out, err := o.jxa(ctx, jxaProcesses, nil, which)
	if err != nil {
		return nil, err
	}
	var apps []App
	if err := json.Unmarshal([]byte(out), &apps); err != nil {
		return nil, fmt.Errorf("decode process list: %w", err)
	}
	return apps, nil
}

func (o *osascript) List(ctx context.Context) ([]App, error) {
	return o.processes(ctx, "all")
}

func (o *osascript) Frontmost(ctx context.Context) (App, error) {
	apps, err := o.processes(ctx, "front")
	if err != nil {
		return App{}, err
	}
	if len(apps) == 0 {
		return App{}, fmt.Errorf("%w: no frontmost application", ErrNotRunning)
	}
	return apps[0], nil
}

const jxaActivate = `
function run(argv) {
  const pid = parseInt(argv[0], 10);
  const procs = Application('System Events').processes.whose({unixId: pid});
  if (procs.length === 0) { throw new Error('no process ' + pid); }
  procs[0].frontmost = true;
  return 'ok';
}`

func (o *osascript) Activate(ctx context.Context, app App) error {
	_, err := o.jxa(ctx, jxaActivate, nil, strconv.Itoa(app.PID))
	return err
}

func (o *osascript) Alive(app App) bool {
	return processAlive(app.PID)
}

// jxaWindowPrelude resolves `win`, the focused window of process argv[0].
const jxaWindowPrelude = `
function attr(el, name) { try { return el.attributes.byName(name).value(); } catch (e) { return null; } }
function settable(el, name) { try { return el.attributes.byName(name).settable(); } catch (e) { return false; } }
function targetWindow(pid) {
  const procs = Application('System Events').processes.whose({unixId: pid});
  if (procs.length === 0) { return null; }
  const proc = procs[0];
  const fw = attr(proc, 'AXFocusedWindow');
  if (fw) { return fw; }
  const wins = proc.windows();
  return wins.length > 0 ? wins[0] : null;
}
`

const jxaSnapshot = jxaWindowPrelude + `
function run(argv) {
  const maxDepth = parseInt(argv[1], 10);
  const win = targetWindow(parseInt(argv[0], 10));
  if (win === null) { return 'null'; }
  function node(el, depth) {
    const n = {role: attr(el, 'AXRole') || ''};
    const pos = attr(el, 'AXPosition'), size = attr(el, 'AXSize');
    if (pos && size) { n.frame = {x: pos[0], y: pos[1], width: size[0], height: size[1]}; }
    n.focused = attr(el, 'AXFocused') === true;
    n.focusable = settable(el, 'AXFocused');
    n.editable = settable(el, 'AXValue');
    const v = attr(el, 'AXValue');
    if (typeof v === 'string' && v.length > 0) { n.value = v.slice(0, 64); }
    if (depth < maxDepth) {
      let kids = [];
      try { kids = el.uiElements(); } catch (e) {}
      if (kids.length > 0) { n.children = kids.slice(0, 256).map(k => node(k, depth + 1)); }
    }
    return n;
  }
  return JSON.stringify(node(win, 0));
}`

func normalizeTree(n *axtree.Node) {
	axtree.Walk(n, func(c *axtree.Node, _ int) bool {
		c.Role = axtree.NormalizeRole(c.Role)
		if c.Frame != nil && c.Frame.Empty() {
			c.Frame = nil
		}
		return true
	})
	axtree.AssignPaths(n)
}

func (o *osascript) Snapshot(ctx context.Context, app App, maxDepth int) (*axtree.Node, error) {
	out, err := o.jxa(ctx, jxaSnapshot, nil, strconv.Itoa(app.PID), strconv.Itoa(maxDepth))
	if err != nil {
		return nil, err
	}
	if out == "null" || out == "" {
		return nil, fmt.Errorf("%w: %s has no window", ErrNoElement, app)
	}
	var root axtree.Node
	if err := json.Unmarshal([]byte(out), &root); err != nil {
		return nil, fmt.Errorf("decode accessibility tree: %w", err)
	}
	normalizeTree(&root)
	return &root, nil
}

const jxaWindowFrame = jxaWindowPrelude + `
function run(argv) {
  const win = targetWindow(parseInt(argv[0], 10));
  if (win === null) { return 'null'; }
  const pos = attr(win, 'AXPosition'), size = attr(win, 'AXSize');
  if (!pos || !size) { return 'null'; }
  return JSON.stringify({x: pos[0], y: pos[1], width: size[0], height: size[1]});
}`

func (o *osascript) WindowFrame(ctx context.Context, app App) (*axtree.Rect, error) {
	out, err := o.jxa(ctx, jxaWindowFrame, nil, strconv.Itoa(app.PID))
	if err != nil {
		return nil, err
	}
	if out == "null" || out == "" {
		return nil, fmt.Errorf("%w: %s has no window", ErrNoElement, app)
	}
	var r axtree.Rect
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		return nil, fmt.Errorf("decode window frame: %w", err)
	}
	return &r, nil
}

// The text arrives through the environment, never argv.
const jxaSetValue = jxaWindowPrelude + `
ObjC.import('Foundation');
function run(argv) {
  const win = targetWindow(parseInt(argv[0], 10));
  if (win === null) { throw new Error('no window'); }
  const path = JSON.parse(argv[1]);
  const text = $.NSProcessInfo.processInfo.environment.objectForKey('SCRIVENER_VALUE').js;
  let el = win;
  for (const i of path) {
    const kids = el.uiElements();
    if (i >= kids.length) { throw new Error('element path no longer resolves'); }
    el = kids[i];
  }
  if (settable(el, 'AXSelectedText')) {
    el.attributes.byName('AXSelectedText').value = text;
    return 'selected_text';
  }
  el.attributes.byName('AXValue').value = text;
  return 'value';
}`

func (o *osascript) SetValue(ctx context.Context, app App, path []int, text string) error {
	p, err := json.Marshal(path)
	if err != nil {
		return err
	}
	if path == nil {
		p = []byte("[]")
	}
	_, err = o.jxa(ctx, jxaSetValue, []string{"SCRIVENER_VALUE=" + text}, strconv.Itoa(app.PID), string(p))
	return err
}

func (o *osascript) Caret(_ context.Context, app App) (axtree.Point, error) {
	return caretPoint(app.PID)
}

type pasteboard struct {
	run runner
}

func (p pasteboard) ReadText(ctx context.Context) (string, error) {
	return p.run.output(ctx, "pbpaste")
}

func (p pasteboard) WriteText(ctx context.Context, text string) error {
	_, err := p.run.run(ctx, command{Name: "pbcopy", Stdin: text})
	return err
}
