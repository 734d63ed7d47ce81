package looprunner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bagofwords/agentcore/bus"
	"github.com/bagofwords/agentcore/contexthub"
	"github.com/bagofwords/agentcore/engine"
	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/planner"
	"github.com/bagofwords/agentcore/store"
	"github.com/bagofwords/agentcore/telemetry"
	"github.com/bagofwords/agentcore/tools"
	"github.com/bagofwords/agentcore/toolruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPlanner replays one Decision per Stream call, in order.
type scriptedPlanner struct {
	decisions []planner.Decision
	call      int
}

func (p *scriptedPlanner) Stream(ctx context.Context, in planner.Input) (<-chan planner.StreamEvent, error) {
	d := p.decisions[p.call]
	if p.call < len(p.decisions)-1 {
		p.call++
	}
	ch := make(chan planner.StreamEvent, 1)
	ch <- planner.StreamEvent{Kind: planner.KindFinal, Decision: d}
	close(ch)
	return ch, nil
}

// scriptedTool always returns one EventEnd frame built from an Observation.
type scriptedTool struct {
	obs      model.Observation
	output   json.RawMessage
	onRun    func(rc *toolruntime.RuntimeContext)
}

func (t *scriptedTool) RunStream(ctx context.Context, input json.RawMessage, rc *toolruntime.RuntimeContext) <-chan toolruntime.ToolEvent {
	if t.onRun != nil {
		t.onRun(rc)
	}
	ch := make(chan toolruntime.ToolEvent, 1)
	obs := t.obs
	ch <- toolruntime.ToolEvent{Kind: toolruntime.EventEnd, Output: t.output, Observation: &obs}
	close(ch)
	return ch
}

// testWfCtx is a minimal engine.WorkflowContext for driving Runner.Run
// without the in-memory engine's goroutine scaffolding.
type testWfCtx struct{ ctx context.Context }

func realWfCtx() engine.WorkflowContext { return testWfCtx{ctx: context.Background()} }

func (w testWfCtx) Context() context.Context                   { return w.ctx }
func (w testWfCtx) WorkflowID() string                          { return "test-wf" }
func (w testWfCtx) RunID() string                                { return "test-run" }
func (w testWfCtx) SignalChannel(string) engine.SignalChannel    { return nil }
func (w testWfCtx) Logger() telemetry.Logger                     { return telemetry.NoopLogger{} }
func (w testWfCtx) Metrics() telemetry.Metrics                   { return telemetry.NoopMetrics{} }
func (w testWfCtx) Tracer() telemetry.Tracer                     { return telemetry.NoopTracer{} }
func (w testWfCtx) Now() time.Time                               { return time.Now() }

func newBaseDeps(t *testing.T, reg *tools.Registry, pl planner.Adapter, lookup ToolLookup) (Deps, string) {
	t.Helper()
	st := store.NewInMemory()
	execID := "exec-1"
	require.NoError(t, st.CreateAgentExecution(context.Background(), model.AgentExecution{
		ID: execID, CompletionID: "c1", StartedAt: time.Now(), Status: model.ExecutionInProgress,
	}))
	hub := contexthub.NewHub()
	hub.PrimeStatic(contexthub.StaticSpec{Query: "hello"})
	return Deps{
		Bus:     bus.New(),
		Store:   st,
		Tools:   reg,
		Hub:     hub,
		Planner: pl,
		Lookup:  lookup,
	}, execID
}

func strp(s string) *string { return &s }

func TestRunStopsImmediatelyOnDirectAnswer(t *testing.T) {
	reg := tools.NewRegistry()
	pl := &scriptedPlanner{decisions: []planner.Decision{
		{PlanType: model.PlanTypeResearch, AnalysisComplete: true, FinalAnswer: strp("the answer")},
	}}
	deps, execID := newBaseDeps(t, reg, pl, func(string) (toolruntime.Tool, bool) { return nil, false })

	r := New(DefaultConfig(), deps)
	res, err := r.Run(realWfCtx(), Input{AgentExecutionID: execID, CompletionID: "c1", UserMessage: "hi", Sigkill: make(chan struct{})})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	require.NotNil(t, res.FinalAnswer)
	assert.Equal(t, "the answer", *res.FinalAnswer)
	assert.Equal(t, 1, res.LoopCount)
}

func TestRunExecutesToolThenFinishes(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Metadata{Name: "create_widget", Category: tools.CategoryAction, ObservationPolicy: tools.ObservationOnSuccess}))

	args := json.RawMessage(`{"x":1}`)
	pl := &scriptedPlanner{decisions: []planner.Decision{
		{PlanType: model.PlanTypeAction, Action: &planner.Action{Name: "create_widget", Arguments: args}},
		{PlanType: model.PlanTypeResearch, AnalysisComplete: true, FinalAnswer: strp("done")},
	}}
	widgetID := "w1"
	tool := &scriptedTool{obs: model.Observation{Summary: "created widget"}, onRun: func(rc *toolruntime.RuntimeContext) {
		rc.CurrentArtifact.WidgetID = &widgetID
	}}
	deps, execID := newBaseDeps(t, reg, pl, func(name string) (toolruntime.Tool, bool) {
		if name == "create_widget" {
			return tool, true
		}
		return nil, false
	})

	r := New(DefaultConfig(), deps)
	res, err := r.Run(realWfCtx(), Input{AgentExecutionID: execID, CompletionID: "c1", UserMessage: "build it", Sigkill: make(chan struct{})})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	require.NotNil(t, res.FinalAnswer)
	assert.Equal(t, "done", *res.FinalAnswer)

	toolExecs, err := deps.Store.ListToolExecutions(context.Background(), execID)
	require.NoError(t, err)
	require.Len(t, toolExecs, 1)
	assert.Equal(t, model.ToolExecutionSuccess, toolExecs[0].Status)
	assert.Equal(t, &widgetID, toolExecs[0].CreatedWidgetID)
}

func TestFailureBreakerStopsAfterMaxToolFailures(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Metadata{Name: "flaky", Category: tools.CategoryAction, ObservationPolicy: tools.ObservationOnTrigger}))

	args := json.RawMessage(`{}`)
	decision := planner.Decision{PlanType: model.PlanTypeAction, Action: &planner.Action{Name: "flaky", Arguments: args}}
	pl := &scriptedPlanner{decisions: []planner.Decision{decision}}
	tool := &scriptedTool{obs: model.Observation{Summary: "failed", Error: &model.ObservationError{Code: "execution_failure", Message: "boom"}}}
	deps, execID := newBaseDeps(t, reg, pl, func(name string) (toolruntime.Tool, bool) { return tool, true })

	cfg := DefaultConfig()
	cfg.StepLimit = 10
	r := New(cfg, deps)
	res, err := r.Run(realWfCtx(), Input{AgentExecutionID: execID, CompletionID: "c1", UserMessage: "retry forever", Sigkill: make(chan struct{})})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.Equal(t, cfg.MaxToolFailures, res.LoopCount)

	toolExecs, err := deps.Store.ListToolExecutions(context.Background(), execID)
	require.NoError(t, err)
	assert.Len(t, toolExecs, cfg.MaxToolFailures)
}

func TestSigkillStopsTheLoop(t *testing.T) {
	reg := tools.NewRegistry()
	pl := &scriptedPlanner{decisions: []planner.Decision{
		{PlanType: model.PlanTypeResearch, AnalysisComplete: true, FinalAnswer: strp("never reached")},
	}}
	deps, execID := newBaseDeps(t, reg, pl, func(string) (toolruntime.Tool, bool) { return nil, false })

	sig := make(chan struct{})
	close(sig)
	r := New(DefaultConfig(), deps)
	res, err := r.Run(realWfCtx(), Input{AgentExecutionID: execID, CompletionID: "c1", UserMessage: "hi", Sigkill: sig})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSigkill, res.Status)
	assert.Nil(t, res.FinalAnswer)
}

func TestStepLimitStopsAnUnresolvedLoop(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Metadata{Name: "probe", Category: tools.CategoryAction, ObservationPolicy: tools.ObservationOnSuccess}))
	// every iteration succeeds with different arguments, so neither
	// breaker fires and step_limit alone bounds the run.
	calls := 0
	pl := &countingPlanner{next: func(n int) planner.Decision {
		calls++
		args, _ := json.Marshal(map[string]int{"n": n})
		return planner.Decision{PlanType: model.PlanTypeAction, Action: &planner.Action{Name: "probe", Arguments: args}}
	}}
	tool := &scriptedTool{obs: model.Observation{Summary: "ok"}}
	deps, execID := newBaseDeps(t, reg, pl, func(string) (toolruntime.Tool, bool) { return tool, true })

	cfg := DefaultConfig()
	r := New(cfg, deps)
	res, err := r.Run(realWfCtx(), Input{AgentExecutionID: execID, CompletionID: "c1", UserMessage: "loop", Sigkill: make(chan struct{})})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.Equal(t, cfg.StepLimit, res.LoopCount)
	assert.Equal(t, cfg.StepLimit, calls)
}

// countingPlanner calls next(loop) for every Stream invocation, letting a
// test vary arguments per iteration to dodge the repeated-success breaker.
type countingPlanner struct {
	n    int
	next func(n int) planner.Decision
}

func (p *countingPlanner) Stream(ctx context.Context, in planner.Input) (<-chan planner.StreamEvent, error) {
	d := p.next(p.n)
	p.n++
	ch := make(chan planner.StreamEvent, 1)
	ch <- planner.StreamEvent{Kind: planner.KindFinal, Decision: d}
	close(ch)
	return ch, nil
}
