// Package inmem is the engine.Engine that cmd/demo and the tests wire (the
// other implementation is engine/temporal): one goroutine per run, signals delivered over buffered Go channels, no replay/history.
// Grounded on runtime/agent/engine/inmem/engine.go, trimmed of activity
// and child-workflow support (see engine package doc).
package inmem

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/bagofwords/agentcore/engine"
	"github.com/bagofwords/agentcore/telemetry"
)

type eng struct {
	mu        sync.RWMutex
	workflows map[string]engine.WorkflowDefinition
	statuses  map[string]engine.RunStatus
}

// New returns an in-memory Engine suitable for tests and the demo CLI. Not
// durable: a process restart loses all in-flight runs.
func New() engine.Engine {
	return &eng{
		workflows: make(map[string]engine.WorkflowDefinition),
		statuses:  make(map[string]engine.RunStatus),
	}
}

func (e *eng) RegisterWorkflow(ctx context.Context, def engine.WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if def.Name == "" || def.Handler == nil {
		return errors.New("engine: invalid workflow definition")
	}
	if _, dup := e.workflows[def.Name]; dup {
		return fmt.Errorf("engine: workflow %q already registered", def.Name)
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *eng) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: workflow %q not registered", req.Workflow)
	}
	if req.ID == "" {
		return nil, errors.New("engine: workflow id is required")
	}

	wctx := &wfCtx{
		ctx:     ctx,
		id:      req.ID,
		runID:   req.ID,
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
		sigs:    make(map[string]*signalChan),
	}
	h := &handle{done: make(chan struct{}), wfCtx: wctx}

	e.mu.Lock()
	e.statuses[req.ID] = engine.RunStatusRunning
	e.mu.Unlock()

	go func() {
		defer close(h.done)
		res, err := def.Handler(wctx, req.Input)
		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()

		e.mu.Lock()
		switch {
		case errors.Is(err, context.Canceled):
			e.statuses[req.ID] = engine.RunStatusCanceled
		case err != nil:
			e.statuses[req.ID] = engine.RunStatusFailed
		default:
			e.statuses[req.ID] = engine.RunStatusCompleted
		}
		e.mu.Unlock()
	}()

	return h, nil
}

func (e *eng) QueryRunStatus(ctx context.Context, runID string) (engine.RunStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status, ok := e.statuses[runID]
	if !ok {
		return "", fmt.Errorf("engine: run %q not found", runID)
	}
	return status, nil
}

type handle struct {
	mu     sync.Mutex
	done   chan struct{}
	result any
	err    error
	wfCtx  *wfCtx
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		assignResult(result, h.result)
		return h.err
	}
}

func (h *handle) Signal(ctx context.Context, name string, payload any) error {
	ch := h.wfCtx.SignalChannel(name).(*signalChan)
	select {
	case ch.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errors.New("engine: workflow already completed")
	}
}

// Cancel is best-effort: the in-memory engine has no replay-safe
// cancellation primitive, so callers should use this repo's interrupt.Token
// broadcast instead, threaded through the loop's input rather than through
// the engine.
func (h *handle) Cancel(ctx context.Context) error { return nil }

type wfCtx struct {
	ctx     context.Context
	id      string
	runID   string
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	sigMu sync.Mutex
	sigs  map[string]*signalChan
}

func (w *wfCtx) Context() context.Context     { return w.ctx }
func (w *wfCtx) WorkflowID() string           { return w.id }
func (w *wfCtx) RunID() string                { return w.runID }
func (w *wfCtx) Logger() telemetry.Logger     { return w.logger }
func (w *wfCtx) Metrics() telemetry.Metrics   { return w.metrics }
func (w *wfCtx) Tracer() telemetry.Tracer     { return w.tracer }
func (w *wfCtx) Now() time.Time               { return time.Now() }

func (w *wfCtx) SignalChannel(name string) engine.SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	ch, ok := w.sigs[name]
	if !ok {
		ch = &signalChan{ch: make(chan any, 1)}
		w.sigs[name] = ch
	}
	return ch
}

type signalChan struct{ ch chan any }

func (s *signalChan) Receive(ctx context.Context, dest any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case v := <-s.ch:
		assignResult(dest, v)
		return nil
	}
}

func (s *signalChan) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		assignResult(dest, v)
		return true
	default:
		return false
	}
}

func assignResult(dst, src any) {
	if dst == nil || src == nil {
		return
	}
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return
	}
	sv := reflect.ValueOf(src)
	if sv.IsValid() && sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return
	}
	if dv.Elem().Kind() == reflect.Interface && sv.Type().Implements(dv.Elem().Type()) {
		dv.Elem().Set(sv)
	}
}

