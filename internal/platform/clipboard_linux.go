//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

type clipTool struct {
	name  string
	read  []string
	write []string
}

var clipTools = []clipTool{
	{"xclip", []string{"-selection", "clipboard", "-o"}, []string{"-selection", "clipboard", "-i"}},
	{"xsel", []string{"--clipboard", "--output"}, []string{"--clipboard", "--input"}},
	{"wl-copy", nil, nil},
}

// linuxClipboard tries xclip, then xsel, then wl-clipboard, or only the
// configured tool.
type linuxClipboard struct {
	run   runner
	tools []clipTool
}

func newLinuxClipboard(r runner, preferred string) *linuxClipboard {
	c := &linuxClipboard{run: r}
	for _, t := range clipTools {
		if preferred == "" || preferred == "auto" || preferred == t.name {
			c.tools = append(c.tools, t)
		}
	}
	if len(c.tools) == 0 {
		c.tools = clipTools
	}
	return c
}

func (c *linuxClipboard) ReadText(ctx context.Context) (string, error) {
	var errs []error
	for _, t := range c.tools {
		name, args := t.name, t.read
		if t.name == "wl-copy" {
			name, args = "wl-paste", []string{"--no-newline"}
		}
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		out, err := c.run.output(ctx, name, args...)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no clipboard tool installed", ErrUnsupported)
	}
	return "", errors.Join(errs...)
}

func (c *linuxClipboard) WriteText(ctx context.Context, text string) error {
	var errs []error
	for _, t := range c.tools {
		if _, err := exec.LookPath(t.name); err != nil {
			continue
		}
		_, err := c.run.run(ctx, command{Name: t.name, Args: t.write, Stdin: text, Detached: true})
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no clipboard tool installed", ErrUnsupported)
	}
	return errors.Join(errs...)
}
