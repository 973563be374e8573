package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandError reports a failed helper process. Arguments, stdin and
// environment are not recorded: they may carry the text being delivered.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// command describes one helper invocation.
type command struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string

	// Detached commands do not have their output captured. Clipboard
	// owners such as xclip fork a child that keeps inherited pipes open.
	Detached bool

	// Unbounded commands ignore the runner timeout and stop only when ctx
	// is done. Delivery scripts type for as long as the caller's budget
	// allows.
	Unbounded bool
}

// runner executes helper binaries with a per-call timeout.
type runner struct {
	timeout time.Duration
}

func (r runner) run(ctx context.Context, c command) (string, error) {
	if r.timeout > 0 && !c.Unbounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = time.Second
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	if !c.Detached {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return stdout.String(), &CommandError{
			Command: c.Name,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.String(), nil
}

// output is run for the common case of a plain argv.
func (r runner) output(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(ctx, command{Name: name, Args: args})
}

func binaryProbe(name, bin string, critical bool) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(context.Context) error {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Errorf("%s not found on PATH", bin)
			}
			return nil
		},
	}
}

func anyBinaryProbe(name string, critical bool, bins ...string) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(context.Context) error {
			for _, b := range bins {
				if _, err := exec.LookPath(b); err == nil {
					return nil
				}
			}
			return errors.New("none of " + strings.Join(bins, ", ") + " found on PATH")
		},
	}
}
