// Package registry maps application identities to automation profiles.
//
// The table is read-only once constructed. Lookup matches case-insensitively
// by substring in either direction against a profile's name and aliases;
// the first profile in declaration order wins, so more specific entries are
// declared before entries whose names they contain.
package registry

import (
	"strings"
	"time"

	"scrivener/internal/axtree"
	"scrivener/internal/preprocess"
)

const ms = time.Millisecond

func builtins() []Profile {
	base := DefaultTiming()

	editor := base.Merge(Timing{ActivationSettle: 250 * ms, CharDelay: 2 * ms, LineDelay: 25 * ms})
	terminal := base.Merge(Timing{CharDelay: 3 * ms, LineDelay: 40 * ms})
	wordProcessor := base.Merge(Timing{ActivationSettle: 450 * ms, CharDelay: 12 * ms, LineDelay: 120 * ms, ScriptSettle: 400 * ms})
	spreadsheet := base.Merge(Timing{ActivationSettle: 450 * ms, CharDelay: 10 * ms, LineDelay: 150 * ms, ScriptSettle: 400 * ms})
	browser := base.Merge(Timing{ActivationSettle: 400 * ms, ClickSettle: 200 * ms, CharDelay: 6 * ms, LineDelay: 80 * ms, ScriptSettle: 350 * ms})
	notes := base.Merge(Timing{CharDelay: 5 * ms})
	chat := base.Merge(Timing{ActivationSettle: 350 * ms, CharDelay: 6 * ms, LineDelay: 90 * ms})

	return []Profile{
		// Visual Studio Code precedes Xcode: its process is named "Code".
		{
			Name: "Visual Studio Code", Aliases: []string{"vscode", "com.microsoft.vscode"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: editor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "Xcode", Aliases: []string{"com.apple.dt.xcode"},
			Strategy: StrategyAccessibilityTree, Actions: ActionClick | ActionCursorMemory,
			Timing: editor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "Cursor", Aliases: []string{"com.todesktop.230313mzl4w4u92"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: editor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "IntelliJ IDEA", Aliases: []string{"com.jetbrains.intellij", "idea"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste | ActionClick,
			Timing: editor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "Sublime Text", Aliases: []string{"sublime_text", "com.sublimetext.4"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: editor, Roles: editorRoles(), MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "iTerm", Aliases: []string{"iterm2", "com.googlecode.iterm2"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste,
			Timing: terminal, Roles: []string{axtree.RoleTextArea}, MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "Terminal", Aliases: []string{"com.apple.terminal", "gnome-terminal", "konsole"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste,
			Timing: terminal, Roles: []string{axtree.RoleTextArea}, MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindCode,
		},
		{
			Name: "Microsoft Word", Aliases: []string{"com.microsoft.word", "winword"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: wordProcessor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptWordProcessor, Content: preprocess.KindPlain,
		},
		{
			Name: "Pages", Aliases: []string{"com.apple.iwork.pages"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: wordProcessor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptWordProcessor, Content: preprocess.KindPlain,
		},
		{
			Name: "LibreOffice Writer", Aliases: []string{"libreoffice-writer", "org.libreoffice.writer"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick | ActionSetValue | ActionCursorMemory,
			Timing: wordProcessor, Roles: editorRoles(), MaxDepth: DeepMaxDepth, Script: ScriptWordProcessor, Content: preprocess.KindPlain,
		},
		{
			Name: "Microsoft Excel", Aliases: []string{"com.microsoft.excel"},
			Strategy: StrategyScriptBridge, Actions: ActionCommitEnter,
			Timing: spreadsheet, Roles: []string{axtree.RoleCell, axtree.RoleTable}, MaxDepth: DefaultMaxDepth, Script: ScriptSpreadsheet, Content: preprocess.KindTabularRow,
		},
		{
			Name: "Numbers", Aliases: []string{"com.apple.iwork.numbers"},
			Strategy: StrategyScriptBridge, Actions: ActionCommitEnter,
			Timing: spreadsheet, Roles: []string{axtree.RoleCell, axtree.RoleTable}, MaxDepth: DefaultMaxDepth, Script: ScriptSpreadsheet, Content: preprocess.KindTabularRow,
		},
		{
			Name: "LibreOffice Calc", Aliases: []string{"libreoffice-calc", "org.libreoffice.calc"},
			Strategy: StrategyScriptBridge, Actions: ActionCommitEnter,
			Timing: spreadsheet, Roles: []string{axtree.RoleCell, axtree.RoleTable}, MaxDepth: DefaultMaxDepth, Script: ScriptSpreadsheet, Content: preprocess.KindTabularRow,
		},
		{
			Name: "Google Chrome", Aliases: []string{"chrome", "chromium", "com.google.chrome"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: browser, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptBrowser, Content: preprocess.KindPlain,
		},
		{
			Name: "Safari", Aliases: []string{"com.apple.safari"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: browser, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptBrowser, Content: preprocess.KindPlain,
		},
		{
			Name: "Firefox", Aliases: []string{"org.mozilla.firefox"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: browser, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptBrowser, Content: preprocess.KindPlain,
		},
		{
			Name: "Microsoft Edge", Aliases: []string{"msedge", "com.microsoft.edgemac"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: browser, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptBrowser, Content: preprocess.KindPlain,
		},
		// "Arc" alone would match any name containing those letters.
		{
			Name: "Arc Browser", Aliases: []string{"company.thebrowser.browser"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: browser, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptBrowser, Content: preprocess.KindPlain,
		},
		{
			Name: "Notes", Aliases: []string{"com.apple.notes"},
			Strategy: StrategyAccessibilityTree, Actions: ActionSetValue | ActionPaste | ActionClick | ActionCursorMemory,
			Timing: notes, Roles: editorRoles(), MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindPlain,
		},
		{
			Name: "TextEdit", Aliases: []string{"com.apple.textedit"},
			Strategy: StrategyAccessibilityTree, Actions: ActionSetValue | ActionPaste | ActionClick | ActionCursorMemory,
			Timing: notes, Roles: editorRoles(), MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindPlain,
		},
		{
			Name: "Slack", Aliases: []string{"com.tinyspeck.slackmacgap"},
			Strategy: StrategyHybrid, Actions: ActionPaste | ActionClick,
			Timing: chat, Roles: browserRoles(), MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindPlain,
		},
		{
			Name: "Mail", Aliases: []string{"com.apple.mail"},
			Strategy: StrategyAccessibilityTree, Actions: ActionPaste | ActionClick | ActionCursorMemory,
			Timing: notes, Roles: []string{axtree.RoleTextArea, axtree.RoleWebArea}, MaxDepth: DeepMaxDepth, Script: ScriptGeneric, Content: preprocess.KindPlain,
		},
		{
			Name: "gedit", Aliases: []string{"org.gnome.gedit", "gnome-text-editor"},
			Strategy: StrategyAccessibilityTree, Actions: ActionSetValue | ActionPaste | ActionClick | ActionCursorMemory,
			Timing: notes, Roles: editorRoles(), MaxDepth: DefaultMaxDepth, Script: ScriptGeneric, Content: preprocess.KindPlain,
		},
	}
}

// GenericProfile is used for applications with no entry in the table:
// a script activates the application and types the text.
func GenericProfile() Profile {
	return Profile{
		Name:     "generic",
		Strategy: StrategyScriptBridge,
		Timing:   DefaultTiming(),
		Roles:    axtree.EditableRoles(),
		MaxDepth: DefaultMaxDepth,
		Script:   ScriptGeneric,
		Content:  preprocess.KindPlain,
		Generic:  true,
	}
}

// Registry is an immutable, ordered profile table.
type Registry struct {
	profiles []Profile
	generic  Profile
}

// New builds the built-in table, applying per-profile timing overrides
// keyed by profile name (case-insensitive). The key "generic" overrides the
// generic profile.
func New(overrides map[string]Timing) *Registry {
	byName := make(map[string]Timing, len(overrides))
	for k, v := range overrides {
		byName[strings.ToLower(strings.TrimSpace(k))] = v
	}

	profiles := builtins()
	for i := range profiles {
		if o, ok := byName[strings.ToLower(profiles[i].Name)]; ok {
			profiles[i].Timing = profiles[i].Timing.Merge(o)
		}
	}

	generic := GenericProfile()
	if o, ok := byName["generic"]; ok {
		generic.Timing = generic.Timing.Merge(o)
	}

	return &Registry{profiles: profiles, generic: generic}
}

// Default returns the built-in table without overrides.
func Default() *Registry {
	return New(nil)
}

// Match reports whether query matches entry: case-insensitive substring in
// either direction. Empty strings never match.
func Match(entry, query string) bool {
	e := strings.ToLower(strings.TrimSpace(entry))
	q := strings.ToLower(strings.TrimSpace(query))
	if e == "" || q == "" {
		return false
	}
	return strings.Contains(e, q) || strings.Contains(q, e)
}

// Lookup returns the first profile whose name or alias matches query.
func (r *Registry) Lookup(query string) (Profile, bool) {
	for _, p := range r.profiles {
		for _, name := range p.Names() {
			if Match(name, query) {
				return p.clone(), true
			}
		}
	}
	return Profile{}, false
}

// Resolve returns the matching profile, or the generic profile.
func (r *Registry) Resolve(query string) Profile {
	if p, ok := r.Lookup(query); ok {
		return p
	}
	return r.Generic()
}

// Generic returns the fallback profile.
func (r *Registry) Generic() Profile {
	return r.generic.clone()
}

// Profiles returns a copy of the table in declaration order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = p.clone()
	}
	return out
}

// Names returns every profile name in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = p.Name
	}
	return out
}
