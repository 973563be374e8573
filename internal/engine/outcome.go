package engine

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"scrivener/internal/preprocess"
)

// Request is one delivery. Kind nil means "use the profile's content kind".
type Request struct {
	Payload string           `json:"payload"`
	Target  string           `json:"target"`
	Kind    *preprocess.Kind `json:"kind,omitempty"`
}

// Outcome is the result of a delivery. It never contains the payload.
type Outcome struct {
	RequestID string    `json:"request_id"`
	Success   bool      `json:"success"`
	State     State     `json:"state"`
	Kind      ErrorKind `json:"error_kind"`

	// Target is what the caller asked for; App is the resolved process
	// label, empty when resolution failed.
	Target   string `json:"target"`
	App      string `json:"app,omitempty"`
	PID      int    `json:"pid,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Content  string `json:"content,omitempty"`

	Attempts   int    `json:"attempts"`
	Diagnostic string `json:"diagnostic,omitempty"`

	// Length and Fingerprint describe the shaped text delivered.
	Length      int    `json:"length"`
	Fingerprint string `json:"fingerprint,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Err error `json:"-"`
}

// UserMessage is the text shown to a person. Platform diagnostics are
// never included.
func (o Outcome) UserMessage() string {
	name := o.App
	if name == "" {
		name = o.Target
	}
	if o.Success {
		return "delivered to " + name
	}
	if o.Kind == KindBusy {
		return "could not write into " + name + ": another delivery is in progress"
	}
	return "could not write into " + name
}

// Fingerprint returns a short stable digest of text.
func Fingerprint(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
