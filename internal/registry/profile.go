package registry

import (
	"fmt"
	"strings"
	"time"

	"scrivener/internal/axtree"
	"scrivener/internal/platform"
	"scrivener/internal/preprocess"
)

// Strategy is the delivery family a profile uses.
type Strategy int

const (
	// StrategyScriptBridge delivers through a generated per-app script.
	StrategyScriptBridge Strategy = iota
	// StrategyAccessibilityTree locates a surface in the accessibility tree
	// and delivers through synthetic input.
	StrategyAccessibilityTree
	// StrategyHybrid tries accessibility delivery, then the script bridge,
	// then raw typing.
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyScriptBridge:
		return "script_bridge"
	case StrategyAccessibilityTree:
		return "accessibility_tree"
	case StrategyHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is a capability flag on a profile.
type Action uint32

const (
	// ActionPaste allows clipboard paste delivery.
	ActionPaste Action = 1 << iota
	// ActionSetValue allows writing the located element's value directly.
	ActionSetValue
	// ActionClick clicks the located or estimated point before delivery.
	ActionClick
	// ActionCommitEnter makes scripts press Enter after the keystrokes.
	ActionCommitEnter
	// ActionCursorMemory restores a remembered caret point when available.
	ActionCursorMemory
)

var actionNames = []struct {
	a    Action
	name string
}{
	{ActionPaste, "paste"},
	{ActionSetValue, "set_value"},
	{ActionClick, "click"},
	{ActionCommitEnter, "commit_enter"},
	{ActionCursorMemory, "cursor_memory"},
}

// Has reports whether every flag in a2 is set in a.
func (a Action) Has(a2 Action) bool {
	return a&a2 == a2
}

// Names lists the set flags.
func (a Action) Names() []string {
	var out []string
	for _, n := range actionNames {
		if a.Has(n.a) {
			out = append(out, n.name)
		}
	}
	return out
}

func (a Action) String() string {
	names := a.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ScriptKind selects the script template family.
type ScriptKind string

const (
	ScriptGeneric       ScriptKind = "generic"
	ScriptBrowser       ScriptKind = "browser"
	ScriptWordProcessor ScriptKind = "wordprocessor"
	ScriptSpreadsheet   ScriptKind = "spreadsheet"
)

// Timing is the pacing a profile applies. Zero fields in an override mean
// "keep the built-in value".
type Timing struct {
	ActivationSettle time.Duration `json:"activation_settle"`
	ClickSettle      time.Duration `json:"click_settle"`
	ClipboardSettle  time.Duration `json:"clipboard_settle"`
	CharDelay        time.Duration `json:"char_delay"`
	LineDelay        time.Duration `json:"line_delay"`
	ScriptSettle     time.Duration `json:"script_settle"`
	StageTimeout     time.Duration `json:"stage_timeout"`
}

// DefaultTiming is the pacing used by the generic profile.
func DefaultTiming() Timing {
	return Timing{
		ActivationSettle: 300 * time.Millisecond,
		ClickSettle:      120 * time.Millisecond,
		ClipboardSettle:  50 * time.Millisecond,
		CharDelay:        8 * time.Millisecond,
		LineDelay:        60 * time.Millisecond,
		ScriptSettle:     250 * time.Millisecond,
		StageTimeout:     15 * time.Second,
	}
}

// Merge returns t with every non-zero field of o applied.
func (t Timing) Merge(o Timing) Timing {
	pick := func(cur, over time.Duration) time.Duration {
		if over > 0 {
			return over
		}
		return cur
	}
	return Timing{
		ActivationSettle: pick(t.ActivationSettle, o.ActivationSettle),
		ClickSettle:      pick(t.ClickSettle, o.ClickSettle),
		ClipboardSettle:  pick(t.ClipboardSettle, o.ClipboardSettle),
		CharDelay:        pick(t.CharDelay, o.CharDelay),
		LineDelay:        pick(t.LineDelay, o.LineDelay),
		ScriptSettle:     pick(t.ScriptSettle, o.ScriptSettle),
		StageTimeout:     pick(t.StageTimeout, o.StageTimeout),
	}
}

// TypingBudget estimates how long typing text takes at this pacing, and
// adds the stage timeout on top. The engine uses it as the deadline for
// character-by-character stages.
func (t Timing) TypingBudget(text string) time.Duration {
	var chars, lines int
	for _, r := range text {
		chars++
		if r == '\n' {
			lines++
		}
	}
	return t.StageTimeout + time.Duration(chars)*t.CharDelay + time.Duration(lines)*t.LineDelay
}

// Profile is an immutable per-application automation recipe.
type Profile struct {
	Name     string
	Aliases  []string
	Strategy Strategy
	Actions  Action
	Timing   Timing
	Roles    []string
	MaxDepth int
	Script   ScriptKind
	Content  preprocess.Kind
	Generic  bool
}

// Names returns the profile name followed by its aliases.
func (p Profile) Names() []string {
	return append([]string{p.Name}, p.Aliases...)
}

func (p Profile) clone() Profile {
	p.Aliases = append([]string(nil), p.Aliases...)
	p.Roles = append([]string(nil), p.Roles...)
	return p
}

// Target binds a resolved application to the profile chosen for it.
type Target struct {
	App     platform.App
	Profile Profile
}

// Strategy is shorthand for t.Profile.Strategy.
func (t Target) Strategy() Strategy {
	return t.Profile.Strategy
}

// Supports reports whether the profile allows action a.
func (t Target) Supports(a Action) bool {
	return t.Profile.Actions.Has(a)
}

// Defaults for the accessibility walk.
const (
	DefaultMaxDepth = 12
	DeepMaxDepth    = 20
)

func editorRoles() []string {
	return []string{axtree.RoleTextArea, axtree.RoleDocument, axtree.RoleTextField}
}

func browserRoles() []string {
	return []string{axtree.RoleTextArea, axtree.RoleTextField, axtree.RoleSearchField, axtree.RoleComboBox, axtree.RoleWebArea}
}
