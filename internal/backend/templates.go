package backend

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"scrivener/internal/platform"
	"scrivener/internal/registry"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("scripts").Funcs(template.FuncMap{
	"as": appleString,
	"sh": shellString,
}).ParseFS(templateFS, "templates/*.tmpl"))

// ScriptData is what a template renders from. The text itself is part of
// the program source and never of its arguments.
type ScriptData struct {
	AppName  string
	BundleID string
	PID      int

	// Lines is the text split on newlines.
	Lines []string
	// Rows is Lines split on tabs, for spreadsheet templates.
	Rows [][]string

	Settle      string
	LineDelay   string
	CharDelayMs int
	Commit      bool
}

// NewScriptData prepares job for rendering.
func NewScriptData(job Job) ScriptData {
	t := job.Target.Profile.Timing
	text := strings.ReplaceAll(job.Text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = strings.Split(l, "\t")
	}

	return ScriptData{
		AppName:     job.Target.App.Label(),
		BundleID:    job.Target.App.BundleID,
		PID:         job.Target.App.PID,
		Lines:       lines,
		Rows:        rows,
		Settle:      seconds(t.ScriptSettle),
		LineDelay:   seconds(t.LineDelay),
		CharDelayMs: int(t.CharDelay / time.Millisecond),
		Commit:      job.Target.Supports(registry.ActionCommitEnter),
	}
}

// Render produces the delivery script for kind in lang. Unknown kinds use
// the generic template.
func Render(lang string, kind registry.ScriptKind, data ScriptData) (platform.Script, error) {
	var ext string
	var args []string
	switch lang {
	case platform.LangAppleScript:
		ext = "applescript"
		args = []string{data.AppName}
	case platform.LangShell:
		ext = "sh"
		args = []string{strconv.Itoa(data.PID)}
	default:
		return platform.Script{}, fmt.Errorf("%w: script language %q", platform.ErrUnsupported, lang)
	}

	name := string(kind) + "." + ext + ".tmpl"
	if templates.Lookup(name) == nil {
		name = string(registry.ScriptGeneric) + "." + ext + ".tmpl"
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return platform.Script{}, fmt.Errorf("render %s: %w", name, err)
	}
	return platform.Script{Language: lang, Source: buf.String(), Args: args}, nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// appleString quotes s as an AppleScript string literal.
func appleString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// shellString quotes s as a single POSIX shell word.
func shellString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
