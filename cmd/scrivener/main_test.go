package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/engine"
	"scrivener/internal/journal"
	"scrivener/internal/server"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func tempConfig(t *testing.T, extra string) (path, journalPath string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "config.toml")
	journalPath = filepath.Join(dir, "journal.db")
	body := fmt.Sprintf("version = 1\n\n[journal]\npath = %q\n\n[server]\nsocket_path = %q\n%s",
		journalPath, filepath.Join(dir, "none.sock"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path, journalPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "scrivener dev"))
}

func TestShapeStripsFence(t *testing.T) {
	out, err := execute(t, "shape", "--kind", "code", "--text", "```go\nfmt.Println(1)\n```")
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(1)\n", out)
}

func TestShapeNothingLeft(t *testing.T) {
	out, err := execute(t, "shape", "--kind", "plain", "--text", "As an AI, I cannot do that.")
	assert.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "nothing left to deliver")
}

func TestLookupJSON(t *testing.T) {
	cfg, _ := tempConfig(t, "")
	out, err := execute(t, "lookup", "--config", cfg, "--json", "com.apple.dt.Xcode")
	require.NoError(t, err)

	var resp server.LookupResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "Xcode", resp.Profile.Name)
}

func TestConfigValidateReportsWarnings(t *testing.T) {
	cfg, _ := tempConfig(t, "\n[profiles.\"Notepad++\"]\nchar_delay_ms = 1\n")
	out, err := execute(t, "config", "validate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: profiles.Notepad++")
	assert.Contains(t, out, "configuration is valid")
}

func TestConfigValidateRejectsUnknownKey(t *testing.T) {
	cfg, _ := tempConfig(t, "\n[engine]\nstage_max_trys = 2\n")
	_, err := execute(t, "config", "validate", "--config", cfg)
	assert.Error(t, err)
}

func TestHistoryReadsJournalWithoutDaemon(t *testing.T) {
	cfg, jpath := tempConfig(t, "")
	j, err := journal.Open(jpath)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), engine.Outcome{
		RequestID: "r1",
		Success:   true,
		State:     engine.StateDone,
		Target:    "Slack",
		App:       "Slack",
		Backend:   "paste",
		StartedAt: time.Now(),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := execute(t, "history", "--config", cfg, "--json", "--limit", "5")
	require.NoError(t, err)

	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].RequestID)
}
