// Package server exposes the delivery engine to local clients as a small
// JSON API on a unix socket.
//
// Only one delivery runs at a time. A delivery posted while another is in
// flight is answered with 409 Conflict straight away.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scrivener/internal/engine"
	"scrivener/internal/health"
	"scrivener/internal/journal"
	"scrivener/internal/logging"
	"scrivener/internal/preprocess"
	"scrivener/internal/registry"
)

// ErrAlreadyRunning is returned when another process owns the socket.
var ErrAlreadyRunning = errors.New("daemon is already running")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	shutdownTimeout     = 5 * time.Second
)

// Deliverer is the part of the engine the server drives.
type Deliverer interface {
	DeliverRequest(ctx context.Context, req engine.Request) engine.Outcome
	Registry() *registry.Registry
	Busy() bool
	State() engine.State
}

// History is the read side of the delivery journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	ByApp(ctx context.Context, app string, limit int) ([]journal.Entry, error)
	Get(ctx context.Context, requestID string) (*journal.Entry, error)
	Attempts(ctx context.Context, requestID string) ([]journal.Attempt, error)
	Stats(ctx context.Context) (*journal.Stats, error)
}

// Config configures the listener.
type Config struct {
	SocketPath      string
	Mode            os.FileMode
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxPayloadBytes int64
}

// DefaultConfig returns owner-only permissions and generous write
// timeouts; typing a long payload character by character takes a while.
func DefaultConfig(socketPath string) Config {
	return Config{
		SocketPath:      socketPath,
		Mode:            0600,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    2 * time.Minute,
		MaxPayloadBytes: 1 << 20,
	}
}

// Server serves the API.
type Server struct {
	cfg     Config
	engine  Deliverer
	history History
	health  *health.Checker
	metrics http.Handler
	log     *logging.Logger
	version string
	router  chi.Router
}

// Option configures optional collaborators.
type Option func(*Server)

// WithHistory enables the /v1/deliveries read endpoints.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithHealth mounts /livez, /readyz and /healthz.
func WithHealth(c *health.Checker) Option {
	return func(s *Server) { s.health = c }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the version reported by /v1/status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server for eng.
func New(cfg Config, eng Deliverer, opts ...Option) *Server {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultConfig("").MaxPayloadBytes
	}
	if cfg.Mode == 0 {
		cfg.Mode = 0600
	}
	s := &Server{cfg: cfg, engine: eng, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.WithComponent("server")
	s.router = s.routes()
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/deliveries", s.handleDeliver)
		r.Get("/deliveries", s.handleHistory)
		r.Get("/deliveries/{id}", s.handleDelivery)
		r.Get("/stats", s.handleStats)
		r.Get("/registry", s.handleProfiles)
		r.Get("/registry/{name}", s.handleProfile)
	})

	if s.health != nil {
		r.Method(http.MethodGet, "/livez", s.health.LivenessHandler())
		r.Method(http.MethodGet, "/readyz", s.health.ReadinessHandler())
		r.Method(http.MethodGet, "/healthz", s.health.HealthHandler())
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Serve listens on the configured socket until ctx is cancelled, then
// shuts down gracefully and removes the socket.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := listen(s.cfg.SocketPath, s.cfg.Mode)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", "socket", s.cfg.SocketPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if s.cfg.SocketPath != "" {
		if rmErr := CleanupSocket(s.cfg.SocketPath); rmErr != nil {
			s.log.Warn("socket cleanup failed", "error", rmErr)
		}
	}
	s.log.Info("stopped")
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// StatusResponse reports what the engine is doing.
type StatusResponse struct {
	Version string `json:"version"`
	State   string `json:"state"`
	Busy    bool   `json:"busy"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Version: s.version,
		State:   s.engine.State().String(),
		Busy:    s.engine.Busy(),
	})
}

// DeliveryRequest is the body of POST /v1/deliveries. Kind is optional
// and overrides the profile's content kind ("plain", "code", "tabular").
type DeliveryRequest struct {
	Payload string `json:"payload"`
	Target  string `json:"target"`
	Kind    string `json:"kind,omitempty"`
}

// DeliveryResponse is the outcome of a delivery. Diagnostic is filled
// only when the caller asks for verbose output.
type DeliveryResponse struct {
	RequestID   string `json:"request_id"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ErrorKind   string `json:"error_kind"`
	State       string `json:"state"`
	Target      string `json:"target"`
	App         string `json:"app,omitempty"`
	Profile     string `json:"profile,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
	Backend     string `json:"backend,omitempty"`
	Content     string `json:"content,omitempty"`
	Attempts    int    `json:"attempts"`
	Length      int    `json:"length"`
	Fingerprint string `json:"fingerprint,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Diagnostic  string `json:"diagnostic,omitempty"`
}

// NewDeliveryResponse converts an outcome for the wire.
func NewDeliveryResponse(out engine.Outcome, verbose bool) DeliveryResponse {
	resp := DeliveryResponse{
		RequestID:   out.RequestID,
		Success:     out.Success,
		Message:     out.UserMessage(),
		ErrorKind:   out.Kind.String(),
		State:       out.State.String(),
		Target:      out.Target,
		App:         out.App,
		Profile:     out.Profile,
		Strategy:    out.Strategy,
		Backend:     out.Backend,
		Content:     out.Content,
		Attempts:    out.Attempts,
		Length:      out.Length,
		Fingerprint: out.Fingerprint,
		DurationMs:  out.Duration.Milliseconds(),
	}
	if verbose {
		resp.Diagnostic = out.Diagnostic
	}
	return resp
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxPayloadBytes)

	var body DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	req := engine.Request{Payload: body.Payload, Target: body.Target}
	if body.Kind != "" {
		kind, err := preprocess.ParseKind(body.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Kind = &kind
	}

	out := s.engine.DeliverRequest(r.Context(), req)

	code := http.StatusOK
	switch {
	case out.Success:
	case out.Kind == engine.KindBusy:
		code = http.StatusConflict
	default:
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, NewDeliveryResponse(out, verbose(r)))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var entries []journal.Entry
	if app := r.URL.Query().Get("app"); app != "" {
		entries, err = s.history.ByApp(r.Context(), app, limit)
	} else {
		entries, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		s.log.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	if !verbose(r) {
		for i := range entries {
			entries[i].Diagnostic = ""
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DeliveryDetail is one journaled delivery with its backend attempts.
type DeliveryDetail struct {
	Entry    journal.Entry     `json:"entry"`
	Attempts []journal.Attempt `json:"attempts"`
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	id := chi.URLParam(r, "id")
	entry, err := s.history.Get(r.Context(), id)
	if err != nil {
		s.log.Error("history lookup failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "no delivery with id "+id)
		return
	}
	attempts, err := s.history.Attempts(r.Context(), id)
	if err != nil {
		s.log.Error("attempt lookup failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if attempts == nil {
		attempts = []journal.Attempt{}
	}
	if !verbose(r) {
		entry.Diagnostic = ""
		for i := range attempts {
			attempts[i].Error = ""
		}
	}
	writeJSON(w, http.StatusOK, DeliveryDetail{Entry: *entry, Attempts: attempts})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.log.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ProfileView is the wire form of a registry profile. Timings are in
// milliseconds.
type ProfileView struct {
	Name     string           `json:"name"`
	Aliases  []string         `json:"aliases,omitempty"`
	Strategy string           `json:"strategy"`
	Actions  []string         `json:"actions"`
	Roles    []string         `json:"roles,omitempty"`
	MaxDepth int              `json:"max_depth"`
	Script   string           `json:"script"`
	Content  string           `json:"content"`
	Generic  bool             `json:"generic"`
	Timing   map[string]int64 `json:"timing_ms"`
}

// NewProfileView converts p for the wire.
func NewProfileView(p registry.Profile) ProfileView {
	ms := func(d time.Duration) int64 { return d.Milliseconds() }
	actions := p.Actions.Names()
	if actions == nil {
		actions = []string{}
	}
	return ProfileView{
		Name:     p.Name,
		Aliases:  p.Aliases,
		Strategy: p.Strategy.String(),
		Actions:  actions,
		Roles:    p.Roles,
		MaxDepth: p.MaxDepth,
		Script:   string(p.Script),
		Content:  p.Content.String(),
		Generic:  p.Generic,
		Timing: map[string]int64{
			"activation_settle": ms(p.Timing.ActivationSettle),
			"click_settle":      ms(p.Timing.ClickSettle),
			"clipboard_settle":  ms(p.Timing.ClipboardSettle),
			"char_delay":        ms(p.Timing.CharDelay),
			"line_delay":        ms(p.Timing.LineDelay),
			"script_settle":     ms(p.Timing.ScriptSettle),
			"stage_timeout":     ms(p.Timing.StageTimeout),
		},
	}
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.engine.Registry().Profiles()
	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, NewProfileView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// LookupResponse answers GET /v1/registry/{name}. Matched is false when
// the generic profile was used.
type LookupResponse struct {
	Query   string      `json:"query"`
	Matched bool        `json:"matched"`
	Profile ProfileView `json:"profile"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reg := s.engine.Registry()
	p, ok := reg.Lookup(name)
	if !ok {
		p = reg.Generic()
	}
	writeJSON(w, http.StatusOK, LookupResponse{Query: name, Matched: ok, Profile: NewProfileView(p)})
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "delivery journal is disabled")
		return false
	}
	return true
}

func verbose(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("verbose"))
	return v
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	return min(n, maxHistoryLimit), nil
}

// ErrorResponse is the body of every non-2xx reply that is not a
// delivery outcome.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
