package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed delivery.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTargetNotRunning
	KindNoEditableSurfaceFound
	KindBackendExecutionFailed
	KindPreprocessingProducedEmptyPayload
	KindBusy
)

var kindNames = map[ErrorKind]string{
	KindNone:                              "none",
	KindTargetNotRunning:                  "target_not_running",
	KindNoEditableSurfaceFound:            "no_editable_surface_found",
	KindBackendExecutionFailed:            "backend_execution_failed",
	KindPreprocessingProducedEmptyPayload: "preprocessing_produced_empty_payload",
	KindBusy:                              "busy",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) (ErrorKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("unknown error kind: %q", s)
}

var (
	ErrTargetNotRunning       = errors.New("target application is not running")
	ErrNoEditableSurfaceFound = errors.New("no editable surface found")
	ErrBackendExecution       = errors.New("every delivery backend failed")
	ErrEmptyPayload           = errors.New("preprocessing produced an empty payload")
	ErrBusy                   = errors.New("another delivery is in flight")
)

var kindErrors = []struct {
	err  error
	kind ErrorKind
}{
	{ErrBusy, KindBusy},
	{ErrEmptyPayload, KindPreprocessingProducedEmptyPayload},
	{ErrTargetNotRunning, KindTargetNotRunning},
	{ErrNoEditableSurfaceFound, KindNoEditableSurfaceFound},
	{ErrBackendExecution, KindBackendExecutionFailed},
}

// KindOf maps an error returned in an Outcome back to its kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindBackendExecutionFailed
}
