package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/engine"
	"scrivener/internal/logging"
	"scrivener/internal/platform/fake"
)

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`version = 1

[journal]
enabled = true
path = %q

[metrics]
enabled = true
namespace = "apptest"

[focus]
enabled = false
%s`, filepath.Join(dir, "journal.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func newApp(t *testing.T, extra string) (*App, *fake.Desktop, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, extra)
	d := fake.New()
	a, err := New(Options{ConfigPath: path, Version: "test", Desktop: d.Platform(), Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, d, path
}

func TestDeliveryIsJournaled(t *testing.T) {
	a, _, _ := newApp(t, "")
	ctx := context.Background()

	out := a.Deliver(ctx, engine.Request{Payload: "Ship the release notes today.", Target: "Blender"})
	require.Equal(t, engine.KindTargetNotRunning, out.Kind)

	entry, err := a.Journal().Get(ctx, out.RequestID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "target_not_running", entry.ErrorKind)
	assert.Equal(t, "Blender", entry.Target)
}

func TestHealthChecksRegistered(t *testing.T) {
	a, _, _ := newApp(t, "")
	names := a.Health().Names()
	assert.Contains(t, names, "engine")
	assert.Contains(t, names, "journal")
}

func TestServerExposesMetricsAndHistory(t *testing.T) {
	a, _, _ := newApp(t, "")
	a.Deliver(context.Background(), engine.Request{Payload: "Ship the release notes today.", Target: "Blender"})

	srv, err := a.Server()
	require.NoError(t, err)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `apptest_deliveries_total{error_kind="target_not_running",profile="generic",result="failure"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/deliveries", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"target":"Blender"`)
}

func TestWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	d := fake.New()
	a, err := New(Options{ConfigPath: path, Desktop: d.Platform(), Logger: logging.Discard(), WithoutJournal: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Journal())
	assert.NotContains(t, a.Health().Names(), "journal")
	assert.NoFileExists(t, filepath.Join(dir, "journal.db"))

	srv, err := a.Server()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/deliveries", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadSwapsProfiles(t *testing.T) {
	a, _, path := newApp(t, "")
	notes, ok := a.Engine().Registry().Lookup("Notes")
	require.True(t, ok)
	require.NotEqual(t, 7*time.Millisecond, notes.Timing.CharDelay)

	writeConfig(t, filepath.Dir(path), "\n[profiles.notes]\nchar_delay_ms = 7\n")
	require.NoError(t, a.loader.Reload())

	notes, ok = a.Engine().Registry().Lookup("Notes")
	require.True(t, ok)
	assert.Equal(t, 7*time.Millisecond, notes.Timing.CharDelay)
	assert.Equal(t, 7, a.Config().Profiles["notes"].CharDelayMs)
}

func TestPruneHonoursRetention(t *testing.T) {
	a, _, _ := newApp(t, "")
	ctx := context.Background()

	old := engine.Outcome{
		RequestID: "ancient",
		State:     engine.StateFailed,
		Kind:      engine.KindTargetNotRunning,
		Target:    "Notes",
		StartedAt: time.Now().AddDate(0, 0, -90),
	}
	_, err := a.Journal().Record(ctx, old, nil)
	require.NoError(t, err)
	fresh := a.Deliver(ctx, engine.Request{Payload: "Ship the release notes today.", Target: "Blender"})

	n, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := a.Journal().Get(ctx, "ancient")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := a.Journal().Get(ctx, fresh.RequestID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRunServesUntilCancelled(t *testing.T) {
	sockDir, err := os.MkdirTemp("", "scr")
	require.NoError(t, err)
	defer os.RemoveAll(sockDir)
	sock := filepath.Join(sockDir, "d.sock")

	a, _, _ := newApp(t, fmt.Sprintf("\n[server]\nsocket_path = %q\n", sock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, a.Health().IsReady())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, a.Health().IsReady())
	assert.NoFileExists(t, sock)
}
