// Package backend contains the delivery mechanisms: synthetic typing,
// clipboard paste, accessibility value injection and the script bridge.
//
// Backends assume the target already has focus. They never activate or
// click anything themselves, with the exception of scripts, which carry
// their own activation.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scrivener/internal/axtree"
	"scrivener/internal/registry"
)

// Backend names.
const (
	NameType   = "type"
	NamePaste  = "paste"
	NameValue  = "value"
	NameScript = "script"
)

var (
	// ErrExecution marks every failure raised while a backend was driving
	// the target.
	ErrExecution = errors.New("backend execution failed")

	// ErrNoSurface means the backend needs a located element and none was
	// found.
	ErrNoSurface = errors.New("no editable surface located")
)

// Job is one delivery attempt.
type Job struct {
	Target  registry.Target
	Text    string
	Element *axtree.Node
}

// Backend delivers a job's text into the focused surface.
type Backend interface {
	Name() string
	Deliver(ctx context.Context, job Job) error
}

// ExecutionError wraps a facility error raised by a backend.
type ExecutionError struct {
	Backend string
	Op      string
	Err     error

	// Delivered is how many characters reached the target before the
	// failure. Retrying a partially delivered attempt would duplicate text.
	Delivered int

	// Ambiguous is set when the failed call may still have reached the
	// target, such as a paste chord that reported an error.
	Ambiguous bool

	// Interrupted is set when the backend was stopped while it may have
	// been sending keystrokes, such as a script killed at its deadline.
	// Like a partial delivery, no other backend may run after it.
	Interrupted bool
}

func (e *ExecutionError) Error() string {
	if e.Delivered > 0 {
		return fmt.Sprintf("%s backend: %s after %d characters: %v", e.Backend, e.Op, e.Delivered, e.Err)
	}
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches ErrExecution.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// Partial reports whether some text was delivered before the failure.
func (e *ExecutionError) Partial() bool { return e.Delivered > 0 }

// Halts reports whether the delivery must stop here: some text may be in
// the target already.
func (e *ExecutionError) Halts() bool { return e.Delivered > 0 || e.Interrupted }

// Retryable reports whether running the same backend again cannot
// duplicate text.
func (e *ExecutionError) Retryable() bool {
	return e.Delivered == 0 && !e.Ambiguous && !e.Interrupted
}

func execErr(backend, op string, err error) error {
	return &ExecutionError{Backend: backend, Op: op, Err: err}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
