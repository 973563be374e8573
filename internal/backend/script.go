package backend

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"scrivener/internal/logging"
	"scrivener/internal/platform"
)

// maxDiagnostic bounds the platform text kept from a failed script.
const maxDiagnostic = 240

// Script delivers through a generated per-application script run by the OS
// scripting host. The script activates the target itself.
type Script struct {
	host platform.Scripts
	lang string
	log  *logging.Logger
}

// NewScript returns a script bridge rendering for lang.
func NewScript(host platform.Scripts, lang string, log *logging.Logger) *Script {
	if log == nil {
		log = logging.Discard()
	}
	return &Script{host: host, lang: lang, log: log.WithComponent("script")}
}

func (b *Script) Name() string { return NameScript }

// Run executes s and reports whether it succeeded together with a
// diagnostic. It never panics.
func (b *Script) Run(ctx context.Context, s platform.Script) (ok bool, diagnostic string) {
	out, err := b.run(ctx, s)
	if err != nil {
		return false, diagnose(err)
	}
	return true, truncate(out)
}

func (b *Script) run(ctx context.Context, s platform.Script) (string, error) {
	var out string
	err := logging.Guard(b.log, "script run", func() error {
		var err error
		out, err = b.host.Run(ctx, s)
		return err
	})
	return out, err
}

// Deliver renders the profile's template for job and runs it. A script
// stopped before it finished may have typed part of the text; that
// failure is reported as interrupted.
func (b *Script) Deliver(ctx context.Context, job Job) error {
	s, err := Render(b.lang, job.Target.Profile.Script, NewScriptData(job))
	if err != nil {
		return execErr(NameScript, "render", err)
	}

	_, err = b.run(ctx, s)
	if err == nil {
		return nil
	}
	stopped := interrupted(ctx, err)
	b.log.Debug("script failed", "app", job.Target.App.Label(),
		"template", string(job.Target.Profile.Script), "interrupted", stopped)
	return &ExecutionError{
		Backend:     NameScript,
		Op:          "run",
		Err:         &scriptError{diag: diagnose(err), err: err},
		Interrupted: stopped,
	}
}

// interrupted reports whether a script was stopped from outside rather
// than exiting on its own: a context deadline or cancellation, a signal,
// or a panic in the host.
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var pe *logging.PanicError
	if errors.As(err, &pe) {
		return true
	}
	var xe *exec.ExitError
	return errors.As(err, &xe) && xe.ExitCode() == -1
}

// scriptError carries the trimmed diagnostic of a failed run and the
// underlying error for errors.Is checks.
type scriptError struct {
	diag string
	err  error
}

func (e *scriptError) Error() string { return e.diag }

func (e *scriptError) Unwrap() error { return e.err }

func diagnose(err error) string {
	var ce *platform.CommandError
	if errors.As(err, &ce) && ce.Stderr != "" {
		return truncate(ce.Stderr)
	}
	return truncate(err.Error())
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDiagnostic {
		return s[:maxDiagnostic] + "..."
	}
	return s
}
