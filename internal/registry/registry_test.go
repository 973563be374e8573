package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/preprocess"
)

func TestLookupDeclarationOrder(t *testing.T) {
	r := Default()

	tests := []struct {
		query string
		want  string
	}{
		{"Code", "Visual Studio Code"},
		{"Xcode", "Xcode"},
		{"com.apple.dt.Xcode", "Xcode"},
		{"iTerm2", "iTerm"},
		{"Terminal", "Terminal"},
		{"gnome-terminal-server", "Terminal"},
		{"LibreOffice Calc", "LibreOffice Calc"},
		{"chrome", "Google Chrome"},
		{"Arc", "Arc Browser"},
		{"textedit", "TextEdit"},
		{"GEDIT", "gedit"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p, ok := r.Lookup(tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestLookupMissFallsBackToGeneric(t *testing.T) {
	r := Default()

	_, ok := r.Lookup("Blender")
	assert.False(t, ok)

	_, ok = r.Lookup("   ")
	assert.False(t, ok)

	p := r.Resolve("Blender")
	assert.True(t, p.Generic)
	assert.Equal(t, StrategyScriptBridge, p.Strategy)
	assert.Equal(t, ScriptGeneric, p.Script)
	assert.Equal(t, Action(0), p.Actions)
}

func TestBuiltinProfiles(t *testing.T) {
	r := Default()

	xcode, _ := r.Lookup("Xcode")
	assert.Equal(t, StrategyAccessibilityTree, xcode.Strategy)
	assert.False(t, xcode.Actions.Has(ActionPaste))
	assert.Equal(t, preprocess.KindCode, xcode.Content)

	excel, _ := r.Lookup("Microsoft Excel")
	assert.Equal(t, StrategyScriptBridge, excel.Strategy)
	assert.True(t, excel.Actions.Has(ActionCommitEnter))
	assert.Equal(t, preprocess.KindTabularRow, excel.Content)

	chrome, _ := r.Lookup("Google Chrome")
	assert.Equal(t, StrategyHybrid, chrome.Strategy)
	assert.Equal(t, ScriptBrowser, chrome.Script)

	for _, p := range r.Profiles() {
		assert.GreaterOrEqual(t, p.MaxDepth, DefaultMaxDepth, p.Name)
		assert.LessOrEqual(t, p.MaxDepth, DeepMaxDepth, p.Name)
		assert.NotEmpty(t, p.Roles, p.Name)
		assert.Positive(t, p.Timing.StageTimeout, p.Name)
	}
}

func TestOverridesApplyAtConstruction(t *testing.T) {
	r := New(map[string]Timing{
		" textedit ": {CharDelay: 40 * time.Millisecond},
		"GENERIC":    {StageTimeout: time.Second},
	})

	p, _ := r.Lookup("TextEdit")
	assert.Equal(t, 40*time.Millisecond, p.Timing.CharDelay)
	assert.Equal(t, DefaultTiming().StageTimeout, p.Timing.StageTimeout)

	assert.Equal(t, time.Second, r.Generic().Timing.StageTimeout)

	untouched, _ := Default().Lookup("TextEdit")
	assert.Equal(t, 5*time.Millisecond, untouched.Timing.CharDelay)
}

func TestProfilesAreImmutable(t *testing.T) {
	r := Default()

	p, _ := r.Lookup("Safari")
	p.Roles[0] = "mutated"
	p.Aliases = append(p.Aliases, "mutated")
	p.Timing.CharDelay = time.Hour

	again, _ := r.Lookup("Safari")
	assert.NotEqual(t, "mutated", again.Roles[0])
	assert.NotContains(t, again.Aliases, "mutated")
	assert.NotEqual(t, time.Hour, again.Timing.CharDelay)

	all := r.Profiles()
	all[0].Name = "mutated"
	assert.Equal(t, "Visual Studio Code", r.Names()[0])
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("Google Chrome", "chrome"))
	assert.True(t, Match("chrome", "Google Chrome Helper"))
	assert.False(t, Match("", "x"))
	assert.False(t, Match("Safari", ""))
	assert.False(t, Match("Safari", "Firefox"))
}

func TestTimingBudget(t *testing.T) {
	tm := Timing{CharDelay: time.Millisecond, LineDelay: 10 * time.Millisecond, StageTimeout: time.Second}
	assert.Equal(t, time.Second+4*time.Millisecond+10*time.Millisecond, tm.TypingBudget("ab\nc"))

	merged := DefaultTiming().Merge(Timing{ClickSettle: time.Second})
	assert.Equal(t, time.Second, merged.ClickSettle)
	assert.Equal(t, DefaultTiming().CharDelay, merged.CharDelay)
}

func TestActionNames(t *testing.T) {
	a := ActionPaste | ActionClick
	assert.Equal(t, "paste|click", a.String())
	assert.Equal(t, "none", Action(0).String())
	assert.True(t, a.Has(ActionPaste))
	assert.False(t, a.Has(ActionPaste|ActionSetValue))
	assert.Equal(t, "hybrid", StrategyHybrid.String())
}
