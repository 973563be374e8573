// Package engine runs deliveries: it shapes the payload, resolves and
// activates the target application, finds where to type and hands the text
// to one backend after another until one succeeds.
//
// One delivery runs at a time per Engine. A call made while another is in
// flight returns a Busy outcome immediately instead of queuing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"scrivener/internal/axtree"
	"scrivener/internal/backend"
	"scrivener/internal/cursor"
	"scrivener/internal/logging"
	"scrivener/internal/platform"
	"scrivener/internal/position"
	"scrivener/internal/preprocess"
	"scrivener/internal/registry"
)

// Options tunes retries and positioning.
type Options struct {
	// StageMaxTries bounds how often one backend (or activation) is tried
	// before moving on.
	StageMaxTries uint
	RetryInitial  time.Duration
	RetryMax      time.Duration

	Positioner position.Config
	Cursor     cursor.Config

	Logger    *logging.Logger
	Observers []Observer
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		StageMaxTries: 3,
		RetryInitial:  100 * time.Millisecond,
		RetryMax:      time.Second,
		Positioner:    position.DefaultConfig(),
		Cursor:        cursor.DefaultConfig(),
	}
}

// Engine is the delivery orchestrator.
type Engine struct {
	desk     *platform.Desktop
	registry atomic.Pointer[registry.Registry]
	cursor   *cursor.Store
	position *position.Positioner
	backends map[string]backend.Backend
	opts     Options
	log      *logging.Logger

	obsMu     sync.RWMutex
	observers []Observer
	// background tracks busy notifications delivered off the caller's
	// goroutine.
	background sync.WaitGroup

	sem   *semaphore.Weighted
	busy  atomic.Bool
	state atomic.Int32

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New builds an engine over desk. A nil registry uses the built-in table.
func New(desk *platform.Desktop, reg *registry.Registry, opts Options) (*Engine, error) {
	if desk == nil || desk.Processes == nil || desk.Accessibility == nil || desk.Input == nil ||
		desk.Scripts == nil || desk.Clipboard == nil || desk.Displays == nil {
		return nil, errors.New("engine: desktop is missing a facility")
	}
	if err := opts.Positioner.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.StageMaxTries == 0 {
		opts.StageMaxTries = DefaultOptions().StageMaxTries
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = DefaultOptions().RetryInitial
	}
	if opts.RetryMax < opts.RetryInitial {
		opts.RetryMax = opts.RetryInitial
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if reg == nil {
		reg = registry.Default()
	}

	log := opts.Logger.WithComponent("engine")
	store, err := cursor.New(desk.Accessibility, desk.Input, opts.Cursor, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("engine: cursor store: %w", err)
	}

	e := &Engine{
		desk:     desk,
		cursor:   store,
		position: position.New(opts.Positioner),
		backends: map[string]backend.Backend{
			backend.NameValue:  backend.NewValue(desk.Accessibility),
			backend.NamePaste:  backend.NewPaste(desk.Clipboard, desk.Input),
			backend.NameScript: backend.NewScript(desk.Scripts, desk.ScriptLanguage, opts.Logger),
			backend.NameType:   backend.NewType(desk.Input),
		},
		opts:      opts,
		log:       log,
		observers: append([]Observer(nil), opts.Observers...),
		sem:       semaphore.NewWeighted(1),
		now:       time.Now,
		sleep:     backend.Sleep,
	}
	e.registry.Store(reg)
	return e, nil
}

// Observe adds o to the observers notified of every delivery.
func (e *Engine) Observe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// Wait blocks until observers have been told about every rejected
// delivery. Call it before closing what the observers write to.
func (e *Engine) Wait() {
	e.background.Wait()
}

// Registry returns the profile table in use.
func (e *Engine) Registry() *registry.Registry {
	return e.registry.Load()
}

// SetRegistry swaps the profile table. A delivery in flight keeps the
// table it started with.
func (e *Engine) SetRegistry(reg *registry.Registry) {
	if reg != nil {
		e.registry.Store(reg)
	}
}

// Cursor returns the engine's cursor memory.
func (e *Engine) Cursor() *cursor.Store {
	return e.cursor
}

// Busy reports whether a delivery is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// State returns the state of the delivery in flight, or StateIdle.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Deliver shapes payload with the target profile's content kind and
// delivers it into targetApp.
func (e *Engine) Deliver(ctx context.Context, payload, targetApp string) Outcome {
	return e.DeliverRequest(ctx, Request{Payload: payload, Target: targetApp})
}

// DeliverRequest runs one delivery to completion. It never blocks on
// another delivery.
func (e *Engine) DeliverRequest(ctx context.Context, req Request) Outcome {
	r := &run{
		id:      uuid.NewString(),
		req:     req,
		started: e.now(),
	}
	r.out = Outcome{RequestID: r.id, Target: req.Target, StartedAt: r.started}
	r.log = e.log.WithRequestID(r.id)
	ctx = logging.ContextWithRequestID(ctx, r.id)

	if !e.sem.TryAcquire(1) {
		out := r.out
		out.State = StateFailed
		out.Kind = KindBusy
		out.Err = ErrBusy
		out.Diagnostic = ErrBusy.Error()
		r.log.Info("delivery rejected", "target", req.Target, "reason", "busy")
		// Observers may write to disk; a rejection must not wait for them.
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			e.notify(context.WithoutCancel(ctx), out)
		}()
		return out
	}
	e.busy.Store(true)
	defer func() {
		e.state.Store(int32(StateIdle))
		e.busy.Store(false)
		e.sem.Release(1)
	}()

	out := e.execute(ctx, r)
	e.notify(ctx, out)
	return out
}

// run is the per-delivery state.
type run struct {
	id      string
	req     Request
	started time.Time
	state   State
	out     Outcome
	log     *logging.Logger

	// missed is set when the locator ran and found nothing.
	missed bool
}

func (e *Engine) execute(ctx context.Context, r *run) Outcome {
	profile := e.Registry().Resolve(r.req.Target)
	kind := profile.Content
	if r.req.Kind != nil {
		kind = *r.req.Kind
	}
	r.out.Profile = profile.Name
	r.out.Strategy = profile.Strategy.String()
	r.out.Content = kind.String()

	e.transition(ctx, r, StatePreparing)

	text := preprocess.Shape(r.req.Payload, kind)
	if text == "" {
		return e.finish(ctx, r, ErrEmptyPayload)
	}
	r.out.Length = utf8.RuneCountInString(text)
	r.out.Fingerprint = Fingerprint(text)

	app, err := platform.Resolve(ctx, e.desk.Processes, candidates(r.req.Target, profile)...)
	if err != nil {
		return e.finish(ctx, r, fmt.Errorf("%w: %w", ErrTargetNotRunning, err))
	}
	r.out.App = app.Label()
	r.out.PID = app.PID
	target := registry.Target{App: app, Profile: profile}
	r.log.Info("delivering", "app", app.Label(), "pid", app.PID, "profile", profile.Name,
		"strategy", profile.Strategy.String(), "content", kind.String(), "length", r.out.Length)

	e.transition(ctx, r, StateLocating)
	plan := Plan(target)
	element, plan, err := e.locate(ctx, r, target, plan)
	if err != nil {
		return e.finish(ctx, r, fmt.Errorf("%w: %w", ErrBackendExecution, err))
	}

	e.transition(ctx, r, StateDelivering)
	name, err := e.deliver(ctx, r, target, plan, backend.Job{Target: target, Text: text, Element: element})
	if err != nil {
		return e.finish(ctx, r, err)
	}
	r.out.Backend = name

	// A backend returning nil is accepted as delivered; the text is not
	// read back.
	e.transition(ctx, r, StateVerifying)
	if target.Supports(registry.ActionCursorMemory) {
		e.cursor.Capture(ctx, app)
	}
	return e.finish(ctx, r, nil)
}

// candidates lists the names process resolution tries: the caller's
// query first, then the profile's own names.
func candidates(query string, p registry.Profile) []string {
	names := []string{query}
	if !p.Generic {
		names = append(names, p.Names()...)
	}
	return names
}

// locate activates the target and puts the caret in place. It returns the
// located element, if any, and the plan to use, which shrinks to the
// script bridge alone when activation fails and a script is planned.
func (e *Engine) locate(ctx context.Context, r *run, t registry.Target, plan []string) (*axtree.Node, []string, error) {
	timing := t.Profile.Timing

	err := e.retry(ctx, func() error {
		actx, cancel := context.WithTimeout(ctx, timing.StageTimeout)
		defer cancel()
		return e.desk.Processes.Activate(actx, t.App)
	})
	if err != nil {
		if !contains(plan, backend.NameScript) {
			return nil, plan, fmt.Errorf("activate %s: %w", t.App.Label(), err)
		}
		r.log.Warn("activation failed, falling back to script", "app", t.App.Label(), "error", err)
		return nil, []string{backend.NameScript}, nil
	}
	if err := e.sleep(ctx, timing.ActivationSettle); err != nil {
		return nil, plan, err
	}

	if t.Supports(registry.ActionCursorMemory) {
		if entry, ok := e.cursor.Lookup(t.App); ok && e.cursor.Restore(ctx, entry, t.App) {
			r.log.Debug("cursor restored", "point", entry.Point.String())
			return nil, plan, e.sleep(ctx, timing.ClickSettle)
		}
	}

	var element *axtree.Node
	if t.Supports(registry.ActionClick) || contains(plan, backend.NameValue) {
		element = e.findSurface(ctx, r, t)
		r.missed = element == nil
	}
	if t.Supports(registry.ActionClick) {
		if err := e.click(ctx, r, t, element); err != nil {
			return nil, plan, err
		}
	}
	return element, plan, nil
}

func (e *Engine) findSurface(ctx context.Context, r *run, t registry.Target) *axtree.Node {
	root, err := e.desk.Accessibility.Snapshot(ctx, t.App, t.Profile.MaxDepth)
	if err != nil {
		r.log.Debug("accessibility snapshot unavailable", "error", err)
		return nil
	}
	el := axtree.Locate(root, t.Profile.Roles, t.Profile.MaxDepth)
	if el != nil {
		r.log.Debug("surface located", "role", el.Role, "path", el.Path)
	}
	return el
}

// click puts focus on the surface. Failures degrade: a click that cannot
// be sent is logged and delivery continues into whatever has focus.
func (e *Engine) click(ctx context.Context, r *run, t registry.Target, element *axtree.Node) error {
	var window, screen *axtree.Rect
	if element == nil || !element.HasGeometry() {
		if w, err := e.desk.Accessibility.WindowFrame(ctx, t.App); err == nil {
			window = w
		}
		if s, err := e.desk.Displays.Primary(ctx); err == nil {
			screen = &s
		}
	}

	p, tier := e.position.PointFor(element, window, screen)
	if err := e.desk.Input.Click(ctx, p); err != nil {
		r.log.Warn("click failed", "tier", tier.String(), "error", err)
		return ctx.Err()
	}
	r.log.Debug("clicked", "tier", tier.String(), "point", p.String())
	return e.sleep(ctx, t.Profile.Timing.ClickSettle)
}

// deliver consumes the attempt table and returns the backend that
// succeeded.
func (e *Engine) deliver(ctx context.Context, r *run, t registry.Target, plan []string, job backend.Job) (string, error) {
	last := errors.New("no backend planned")

	for _, name := range plan {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}
		if name == backend.NameValue && job.Element == nil {
			last = backend.ErrNoSurface
			continue
		}

		budget := t.Profile.Timing.StageTimeout
		if name == backend.NameType || name == backend.NameScript {
			budget = t.Profile.Timing.TypingBudget(job.Text)
		}

		err := e.attempt(ctx, r, e.backends[name], job, budget)
		if err == nil {
			return name, nil
		}
		last = err
		r.log.Warn("backend failed", "backend", name, "error", err)

		var ee *backend.ExecutionError
		if errors.As(err, &ee) && ee.Halts() {
			// falling through would deliver the text a second time
			break
		}
	}

	if r.missed && t.Supports(registry.ActionSetValue) {
		return "", fmt.Errorf("%w: %w", ErrNoEditableSurfaceFound, last)
	}
	return "", fmt.Errorf("%w: %w", ErrBackendExecution, last)
}

func (e *Engine) attempt(ctx context.Context, r *run, b backend.Backend, job backend.Job, budget time.Duration) error {
	var try int
	return e.retry(ctx, func() error {
		try++
		r.out.Attempts++

		sctx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()
		start := e.now()
		err := b.Deliver(sctx, job)

		e.emit(ctx, Event{
			Type:      EventAttempt,
			RequestID: r.id,
			App:       r.out.App,
			From:      r.state,
			State:     r.state,
			At:        e.now(),
			Backend:   b.Name(),
			Try:       try,
			Duration:  e.now().Sub(start),
			Err:       err,
		})
		return err
	})
}

// retry runs op with stage-local retries. Errors that cannot succeed on a
// second try, or could duplicate text, stop immediately.
func (e *Engine) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.RetryInitial
	bo.MaxInterval = e.opts.RetryMax
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0.1

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(e.opts.StageMaxTries))

	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return pe.Unwrap()
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, backend.ErrNoSurface) ||
		errors.Is(err, platform.ErrUnsupported) ||
		errors.Is(err, platform.ErrNotRunning) {
		return false
	}
	var ee *backend.ExecutionError
	if errors.As(err, &ee) {
		return ee.Retryable()
	}
	return true
}

func (e *Engine) transition(ctx context.Context, r *run, to State) {
	from := r.state
	r.state = to
	e.state.Store(int32(to))
	r.log.Debug("transition", "from", from.String(), "to", to.String())
	e.emit(ctx, Event{Type: EventTransition, RequestID: r.id, App: r.out.App, From: from, State: to, At: e.now()})
}

func (e *Engine) finish(ctx context.Context, r *run, err error) Outcome {
	out := r.out
	out.Duration = e.now().Sub(r.started)
	if err == nil {
		out.Success = true
		out.State = StateDone
	} else {
		out.State = StateFailed
		out.Kind = KindOf(err)
		out.Err = err
		out.Diagnostic = err.Error()
	}
	r.out = out
	e.transition(ctx, r, out.State)

	if out.Success {
		r.log.Info("delivered", "app", out.App, "backend", out.Backend, "attempts", out.Attempts, "duration", out.Duration)
	} else {
		r.log.Warn("delivery failed", "target", out.Target, "kind", out.Kind.String(), "attempts", out.Attempts, "error", err)
	}
	return out
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	e.obsMu.RLock()
	obs := e.observers
	e.obsMu.RUnlock()
	for _, o := range obs {
		o.OnTransition(ctx, ev)
	}
}

func (e *Engine) notify(ctx context.Context, out Outcome) {
	e.obsMu.RLock()
	obs := e.observers
	e.obsMu.RUnlock()
	for _, o := range obs {
		o.OnOutcome(ctx, out)
	}
}
