package backend

import (
	"context"
	"errors"
	"time"

	"scrivener/internal/platform"
)

// Type sends one key event pair per character. Newlines become Enter and
// tabs become Tab; carriage returns are dropped.
type Type struct {
	input platform.Input
	sleep func(context.Context, time.Duration) error
}

// NewType returns a typing backend.
func NewType(in platform.Input) *Type {
	return &Type{input: in, sleep: Sleep}
}

func (b *Type) Name() string { return NameType }

// Deliver types job.Text. Cancellation is checked between characters, so a
// deadline never splits a key pair.
func (b *Type) Deliver(ctx context.Context, job Job) error {
	timing := job.Target.Profile.Timing
	var delivered int

	for _, r := range job.Text {
		if err := ctx.Err(); err != nil {
			return &ExecutionError{Backend: NameType, Op: "type", Err: err, Delivered: delivered}
		}

		var err error
		pause := timing.CharDelay
		switch r {
		case '\r':
			continue
		case '\n':
			err = b.input.KeyPress(ctx, platform.KeyEnter)
			pause = timing.LineDelay
		case '\t':
			err = b.input.KeyPress(ctx, platform.KeyTab)
		default:
			err = b.input.KeyRune(ctx, r)
		}
		if err != nil {
			return &ExecutionError{Backend: NameType, Op: "type", Err: err, Delivered: delivered}
		}
		delivered++

		if err := b.sleep(ctx, pause); err != nil {
			return &ExecutionError{Backend: NameType, Op: "pace", Err: err, Delivered: delivered}
		}
	}
	return nil
}

// Paste writes the text to the clipboard and issues the paste chord once.
// The previous clipboard contents are not restored.
type Paste struct {
	clipboard platform.Clipboard
	input     platform.Input
	sleep     func(context.Context, time.Duration) error
}

// NewPaste returns a clipboard paste backend.
func NewPaste(cb platform.Clipboard, in platform.Input) *Paste {
	return &Paste{clipboard: cb, input: in, sleep: Sleep}
}

func (b *Paste) Name() string { return NamePaste }

func (b *Paste) Deliver(ctx context.Context, job Job) error {
	if err := b.clipboard.WriteText(ctx, job.Text); err != nil {
		return execErr(NamePaste, "write clipboard", err)
	}
	if err := b.sleep(ctx, job.Target.Profile.Timing.ClipboardSettle); err != nil {
		return execErr(NamePaste, "settle", err)
	}
	if err := b.input.Paste(ctx); err != nil {
		return &ExecutionError{Backend: NamePaste, Op: "paste", Err: err, Ambiguous: true}
	}
	return nil
}

// Value writes the text into the located element through the
// accessibility adapter.
type Value struct {
	ax platform.Accessibility
}

// NewValue returns an element value backend.
func NewValue(ax platform.Accessibility) *Value {
	return &Value{ax: ax}
}

func (b *Value) Name() string { return NameValue }

func (b *Value) Deliver(ctx context.Context, job Job) error {
	if job.Element == nil {
		return ErrNoSurface
	}
	if err := b.ax.SetValue(ctx, job.Target.App, job.Element.Path, job.Text); err != nil {
		if errors.Is(err, platform.ErrNoElement) {
			return errors.Join(ErrNoSurface, execErr(NameValue, "set value", err))
		}
		return execErr(NameValue, "set value", err)
	}
	return nil
}
