package engine

import (
	"scrivener/internal/backend"
	"scrivener/internal/registry"
)

// Plan returns the ordered backend attempt table for t. Delivery stops at
// the first backend that succeeds.
//
//	script bridge       [script]
//	accessibility tree  [value?, paste?, type]
//	hybrid              [value?, paste?, script, type]
func Plan(t registry.Target) []string {
	var out []string
	accessible := func() {
		if t.Supports(registry.ActionSetValue) {
			out = append(out, backend.NameValue)
		}
		if t.Supports(registry.ActionPaste) {
			out = append(out, backend.NamePaste)
		}
	}

	switch t.Strategy() {
	case registry.StrategyScriptBridge:
		out = append(out, backend.NameScript)
	case registry.StrategyAccessibilityTree:
		accessible()
		out = append(out, backend.NameType)
	case registry.StrategyHybrid:
		accessible()
		out = append(out, backend.NameScript, backend.NameType)
	}
	return out
}

func contains(plan []string, name string) bool {
	for _, p := range plan {
		if p == name {
			return true
		}
	}
	return false
}
