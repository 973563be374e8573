package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/engine"
	"scrivener/internal/health"
	"scrivener/internal/journal"
	"scrivener/internal/platform/fake"
	"scrivener/internal/preprocess"
	"scrivener/internal/registry"
)

type stubEngine struct {
	mu   sync.Mutex
	reqs []engine.Request
	out  engine.Outcome
	busy bool
}

func (s *stubEngine) DeliverRequest(_ context.Context, req engine.Request) engine.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	out := s.out
	out.Target = req.Target
	return out
}

func (s *stubEngine) Registry() *registry.Registry { return registry.Default() }
func (s *stubEngine) Busy() bool                   { return s.busy }
func (s *stubEngine) State() engine.State          { return engine.StateIdle }

func (s *stubEngine) requests() []engine.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Request(nil), s.reqs...)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestDeliverStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		out  engine.Outcome
		code int
		kind string
	}{
		{"success", engine.Outcome{Success: true, State: engine.StateDone, App: "Slack", Backend: "paste"}, http.StatusOK, "none"},
		{"busy", engine.Outcome{State: engine.StateFailed, Kind: engine.KindBusy, Diagnostic: "busy"}, http.StatusConflict, "busy"},
		{"not running", engine.Outcome{State: engine.StateFailed, Kind: engine.KindTargetNotRunning, Diagnostic: "no process"}, http.StatusUnprocessableEntity, "target_not_running"},
		{"empty", engine.Outcome{State: engine.StateFailed, Kind: engine.KindPreprocessingProducedEmptyPayload}, http.StatusUnprocessableEntity, "preprocessing_produced_empty_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{out: tt.out}
			h := New(DefaultConfig(""), eng).Handler()

			rec := post(t, h, "/v1/deliveries", `{"payload":"hello there","target":"Slack"}`)
			assert.Equal(t, tt.code, rec.Code)
			resp := decode[DeliveryResponse](t, rec)
			assert.Equal(t, tt.kind, resp.ErrorKind)
			assert.Equal(t, tt.out.Success, resp.Success)
			assert.Empty(t, resp.Diagnostic)
			assert.Equal(t, engine.Outcome{Target: "Slack", App: tt.out.App, Success: tt.out.Success, Kind: tt.out.Kind}.UserMessage(), resp.Message)
		})
	}
}

func TestDeliverVerboseIncludesDiagnostic(t *testing.T) {
	eng := &stubEngine{out: engine.Outcome{State: engine.StateFailed, Kind: engine.KindBackendExecutionFailed, Diagnostic: "xdotool: exit status 1"}}
	h := New(DefaultConfig(""), eng).Handler()

	resp := decode[DeliveryResponse](t, post(t, h, "/v1/deliveries?verbose=true", `{"payload":"x y z","target":"gedit"}`))
	assert.Equal(t, "xdotool: exit status 1", resp.Diagnostic)
	assert.Equal(t, "could not write into gedit", resp.Message)
}

func TestDeliverPassesKind(t *testing.T) {
	eng := &stubEngine{out: engine.Outcome{Success: true}}
	h := New(DefaultConfig(""), eng).Handler()

	rec := post(t, h, "/v1/deliveries", `{"payload":"a\tb","target":"Numbers","kind":"tabular"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	reqs := eng.requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Kind)
	assert.Equal(t, preprocess.KindTabularRow, *reqs[0].Kind)
	assert.Equal(t, "Numbers", reqs[0].Target)
}

func TestDeliverRejectsBadRequests(t *testing.T) {
	eng := &stubEngine{}
	cfg := DefaultConfig("")
	cfg.MaxPayloadBytes = 64
	h := New(cfg, eng).Handler()

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/v1/deliveries", `{"payload":`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/v1/deliveries", `{"payload":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/v1/deliveries", `{"payload":"hi","target":"Notes","kind":"poem"}`).Code)

	big := fmt.Sprintf(`{"payload":%q,"target":"Notes"}`, strings.Repeat("a", 200))
	rec := post(t, h, "/v1/deliveries", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	assert.Empty(t, eng.requests())
}

func TestStatus(t *testing.T) {
	h := New(DefaultConfig(""), &stubEngine{busy: true}, WithVersion("1.2.3")).Handler()

	resp := decode[StatusResponse](t, get(t, h, "/v1/status"))
	assert.Equal(t, StatusResponse{Version: "1.2.3", State: "idle", Busy: true}, resp)
}

func TestRegistryEndpoints(t *testing.T) {
	h := New(DefaultConfig(""), &stubEngine{}).Handler()

	views := decode[[]ProfileView](t, get(t, h, "/v1/registry"))
	assert.Len(t, views, len(registry.Default().Profiles()))

	hit := decode[LookupResponse](t, get(t, h, "/v1/registry/com.apple.dt.Xcode"))
	assert.True(t, hit.Matched)
	assert.Equal(t, "Xcode", hit.Profile.Name)
	assert.Equal(t, "code", hit.Profile.Content)

	miss := decode[LookupResponse](t, get(t, h, "/v1/registry/Blender"))
	assert.False(t, miss.Matched)
	assert.True(t, miss.Profile.Generic)
	assert.Equal(t, int64(300), miss.Profile.Timing["activation_settle"])
}

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestHistoryEndpoints(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, app := range []string{"Slack", "Notes", "Slack"} {
		out := engine.Outcome{
			RequestID:  fmt.Sprintf("req-%d", i),
			Success:    i != 1,
			State:      engine.StateDone,
			Target:     app,
			App:        app,
			Backend:    "paste",
			Diagnostic: "secret detail",
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
		}
		if i == 1 {
			out.State = engine.StateFailed
			out.Kind = engine.KindBackendExecutionFailed
		}
		_, err := j.Record(ctx, out, []journal.Attempt{{Backend: "paste", Try: 1, OK: out.Success, Error: "osascript failed"}})
		require.NoError(t, err)
	}

	h := New(DefaultConfig(""), &stubEngine{}, WithHistory(j)).Handler()

	all := decode[[]journal.Entry](t, get(t, h, "/v1/deliveries?limit=2"))
	require.Len(t, all, 2)
	assert.Equal(t, "req-2", all[0].RequestID)
	assert.Empty(t, all[0].Diagnostic)

	slack := decode[[]journal.Entry](t, get(t, h, "/v1/deliveries?app=Slack&verbose=true"))
	require.Len(t, slack, 2)
	assert.Equal(t, "secret detail", slack[0].Diagnostic)

	detail := decode[DeliveryDetail](t, get(t, h, "/v1/deliveries/req-1"))
	assert.Equal(t, "backend_execution_failed", detail.Entry.ErrorKind)
	require.Len(t, detail.Attempts, 1)
	assert.Empty(t, detail.Attempts[0].Error)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/deliveries/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/deliveries?limit=-3").Code)

	stats := decode[journal.Stats](t, get(t, h, "/v1/stats"))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Failed)
}

func TestHistoryDisabled(t *testing.T) {
	h := New(DefaultConfig(""), &stubEngine{}).Handler()
	rec := get(t, h, "/v1/deliveries")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "delivery journal is disabled", decode[ErrorResponse](t, rec).Error)
}

func TestHealthAndMetricsMounted(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterFunc("engine", true, health.BusyCheck(func() bool { return false }))
	checker.SetReady(true)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "scrivener_up 1\n")
	})
	h := New(DefaultConfig(""), &stubEngine{}, WithHealth(checker), WithMetrics(metrics)).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/livez").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Contains(t, get(t, h, "/metrics").Body.String(), "scrivener_up 1")

	bare := New(DefaultConfig(""), &stubEngine{}).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, bare, "/healthz").Code)
}

func TestBusyOverHTTP(t *testing.T) {
	d := fake.New()
	d.AddApp(1, "TextEdit", "com.apple.TextEdit")
	eng, err := engine.New(d.Platform(), nil, engine.DefaultOptions())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	d.Hook(fake.OpActivate, func(context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})

	srv := httptest.NewServer(New(DefaultConfig(""), eng).Handler())
	defer srv.Close()

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/v1/deliveries", "application/json",
			bytes.NewReader([]byte(`{"payload":"The quarterly revenue grew 10%.","target":"TextEdit"}`)))
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	<-entered

	resp, err := http.Post(srv.URL+"/v1/deliveries", "application/json",
		bytes.NewReader([]byte(`{"payload":"Another note entirely.","target":"TextEdit"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body DeliveryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "busy", body.ErrorKind)
	assert.Equal(t, "could not write into TextEdit: another delivery is in progress", body.Message)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestServeOverSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "scr")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")

	d := fake.New()
	eng, err := engine.New(d.Platform(), nil, engine.DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(DefaultConfig(sock), eng, WithVersion("test")).Serve(ctx) }()

	client := NewClient(sock, 5*time.Second)
	require.Eventually(t, client.Available, 5*time.Second, 10*time.Millisecond)

	info, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", status.Version)

	resp, err := client.Deliver(ctx, DeliveryRequest{Payload: "Ship the release notes today.", Target: "Blender"}, true)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "target_not_running", resp.ErrorKind)
	assert.NotEmpty(t, resp.Diagnostic)

	_, err = client.History(ctx, "", 10, false)
	assert.ErrorContains(t, err, "delivery journal is disabled")

	second := New(DefaultConfig(sock), eng)
	assert.ErrorIs(t, second.Serve(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
	assert.NoFileExists(t, sock)

	_, err = client.Status(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestCleanupSocketRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	assert.Error(t, CleanupSocket(path))
	assert.FileExists(t, path)

	assert.NoError(t, CleanupSocket(filepath.Join(t.TempDir(), "missing")))
}
