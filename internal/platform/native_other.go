//go:build !darwin && !linux

package platform

import (
	"context"

	"scrivener/internal/axtree"
)

type unsupported struct{}

func newNative(Options) (*Desktop, error) {
	u := unsupported{}
	return &Desktop{
		Processes:      u,
		Accessibility:  u,
		Input:          u,
		Scripts:        u,
		Clipboard:      u,
		Displays:       u,
		ScriptLanguage: LangShell,
		Probes: []Probe{{
			Name:     "platform",
			Critical: true,
			Check:    func(context.Context) error { return ErrUnsupported },
		}},
	}, nil
}

func (unsupported) List(context.Context) ([]App, error) { return nil, ErrUnsupported }
func (unsupported) Frontmost(context.Context) (App, error) { return App{}, ErrUnsupported }
func (unsupported) Activate(context.Context, App) error { return ErrUnsupported }
func (unsupported) Alive(App) bool { return false }
func (unsupported) KeyRune(context.Context, rune) error { return ErrUnsupported }
func (unsupported) KeyPress(context.Context, Key) error { return ErrUnsupported }
func (unsupported) Click(context.Context, axtree.Point) error { return ErrUnsupported }
func (unsupported) Paste(context.Context) error { return ErrUnsupported }
func (unsupported) ReadText(context.Context) (string, error) { return "", ErrUnsupported }
func (unsupported) WriteText(context.Context, string) error { return ErrUnsupported }

func (unsupported) Run(context.Context, Script) (string, error) { return "", ErrUnsupported }

func (unsupported) Primary(context.Context) (axtree.Rect, error) {
	return axtree.Rect{}, ErrUnsupported
}

func (unsupported) Snapshot(context.Context, App, int) (*axtree.Node, error) {
	return nil, ErrUnsupported
}

func (unsupported) WindowFrame(context.Context, App) (*axtree.Rect, error) {
	return nil, ErrUnsupported
}

func (unsupported) SetValue(context.Context, App, []int, string) error { return ErrUnsupported }

func (unsupported) Caret(context.Context, App) (axtree.Point, error) {
	return axtree.Point{}, ErrUnsupported
}
