package logging

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned by Guard when the guarded function panicked.
type PanicError struct {
	Op    string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Op, e.Value)
}

// Guard runs fn and converts a panic into a *PanicError. The panic and its
// stack are logged at error level on l when l is non-nil.
func Guard(l *Logger, op string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		pe := &PanicError{Op: op, Value: r, Stack: string(debug.Stack())}
		if l != nil {
			l.Error("recovered panic", "op", op, "panic", fmt.Sprint(r), "stack", pe.Stack)
		}
		err = pe
	}()
	return fn()
}
