// Package looprunner is the agent loop (spec.md C9) — the heart of the
// system: plan -> act -> observe, wired across every other package. It is
// grounded in idiom on runtime/agent/runtime/workflow_loop.go's "small
// state-threading struct with named loop phases" shape, but it is NOT a
// copy of that file: the Temporal-replay-specific mechanics (activity
// options, child workflow trackers, deadlines keyed to workflow history)
// are dropped in favor of a plain goroutine + channel model matching
// engine/inmem; engine/temporal runs this same loop unchanged inside a
// single activity.
package looprunner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bagofwords/agentcore/block"
	"github.com/bagofwords/agentcore/bus"
	"github.com/bagofwords/agentcore/contexthub"
	"github.com/bagofwords/agentcore/engine"
	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/observation"
	"github.com/bagofwords/agentcore/planner"
	"github.com/bagofwords/agentcore/store"
	"github.com/bagofwords/agentcore/stream"
	"github.com/bagofwords/agentcore/streamer"
	"github.com/bagofwords/agentcore/tools"
	"github.com/bagofwords/agentcore/toolruntime"
	"github.com/google/uuid"
)

// Config carries the pseudostate constants spec.md §4.9 names.
type Config struct {
	StepLimit            int
	MaxInvalidRetries    int
	MaxToolFailures      int
	MaxRepeatedSuccesses int
}

// DefaultConfig matches spec.md §4.9's pseudostate exactly.
func DefaultConfig() Config {
	return Config{StepLimit: 10, MaxInvalidRetries: 2, MaxToolFailures: 3, MaxRepeatedSuccesses: 2}
}

// ToolLookup resolves a registered tool name to its runnable implementation.
type ToolLookup func(name string) (toolruntime.Tool, bool)

// Suggester drafts instruction suggestions for the post-analysis step
// (spec.md §4.9.1). Its absence (nil Deps.Suggester) simply skips the step.
type Suggester interface {
	Suggest(ctx context.Context, in planner.Input) ([]string, error)
}

// Deps wires looprunner to every other package it orchestrates.
type Deps struct {
	Bus        bus.Bus
	Store      store.Store
	Tools      *tools.Registry
	Hub        *contexthub.Hub
	Planner    planner.Adapter
	Lookup     ToolLookup
	Suggester  Suggester // optional
}

// Input is everything the loop needs for one AgentExecution run, beyond
// what Deps.Hub already holds primed.
type Input struct {
	AgentExecutionID string
	CompletionID     string
	ReportID         string
	OrganizationID   string
	UserID           string
	UserMessage      string
	Mode             string
	ExternalPlatform string
	DataSources map[string]any
	Sigkill     <-chan struct{}
	// FirstCompletionInReport, when true, triggers the report-title
	// synthesis named at the end of spec.md §4.9 (not implemented here:
	// title synthesis is an editorial/report concern this repo's C9
	// documents but does not own; see DESIGN.md).
	FirstCompletionInReport bool
}

// Result is the terminal outcome of one Run call.
type Result struct {
	Status      model.ExecutionStatus
	FinalAnswer *string
	LoopCount   int
}

// Runner drives the loop.
type Runner struct {
	Config Config
	Deps   Deps
}

// New constructs a Runner with cfg (use DefaultConfig() for spec defaults).
func New(cfg Config, deps Deps) *Runner {
	return &Runner{Config: cfg, Deps: deps}
}

type loop struct {
	r   *Runner
	in  Input
	ctx context.Context

	projector *block.Projector
	obs       *observation.Accumulator

	invalidRetryCount     int
	failedToolCount       map[string]int
	successfulActions     []string
	analysisComplete      bool
	finalAnswer           *string
	sigkilled             bool

	// suggestion-trigger bookkeeping (spec.md §4.9.1). Nothing sets
	// previousReportToolWasClarify (Input carries no report history), so it
	// stays false and only widgetSucceededWithErrors can trigger the post-step.
	previousReportToolWasClarify bool
	widgetSucceededWithErrors    bool
	createdWidgetThisRun         bool
}

// Run executes the plan -> act -> observe loop for in, driven by wfCtx for
// time and logging. It returns once analysis completes, a circuit breaker
// fires, step_limit iterations elapse, or sigkill is observed.
func (r *Runner) Run(wfCtx engine.WorkflowContext, in Input) (*Result, error) {
	l := &loop{
		r:               r,
		in:              in,
		ctx:             wfCtx.Context(),
		projector:       block.New(),
		obs:             observation.New(),
		failedToolCount: make(map[string]int),
	}
	return l.run(wfCtx)
}

func (l *loop) run(wfCtx engine.WorkflowContext) (*Result, error) {
	loopIndex := 0
	for ; loopIndex < l.r.Config.StepLimit; loopIndex++ {
		// Step 1: sigkill check.
		select {
		case <-l.in.Sigkill:
			l.sigkilled = true
		default:
		}
		if l.sigkilled {
			break
		}

		// Step 2: refresh warm context; save pre_tool snapshot (best-effort).
		view := l.r.Deps.Hub.BuildContext(contexthub.WarmSpec{
			LoopIndex:    loopIndex,
			Observations: l.obs.History(),
			SnippetTopK:  8,
		})
		l.saveSnapshot(model.SnapshotPreTool, view)

		// Step 3: build and validate PlannerInput. The catalog spans both
		// plan types; the planner itself chooses plan_type, and step 8
		// re-validates the chosen tool against that choice before it runs.
		catalog := mergeCatalogs(
			l.r.Deps.Tools.GetCatalogForPlanType(string(model.PlanTypeResearch)),
			l.r.Deps.Tools.GetCatalogForPlanType(string(model.PlanTypeAction)),
		)
		plannerInput := planner.Input{
			OrganizationID:   l.in.OrganizationID,
			UserID:           l.in.UserID,
			UserMessage:      l.in.UserMessage,
			Instructions:     view.Instructions,
			SchemasTopK:      view.SchemaCatalog,
			Resources:        view.Resources,
			PastObservations: l.obs.History(),
			ToolCatalog:      catalog,
			ExternalPlatform: l.in.ExternalPlatform,
			Mode:             l.in.Mode,
		}
		if last, ok := l.obs.Latest(); ok {
			plannerInput.LastObservation = &last
		}
		if err := plannerInput.Validate(); err != nil {
			obs := model.Observation{Summary: "input invalid", Error: &model.ObservationError{Code: "input_validation_error", Message: err.Error()}}
			l.obs.AddToolObservation(tools.ObservationOnTrigger, "", nil, obs)
			if l.invalidRetryCount >= l.r.Config.MaxInvalidRetries {
				break
			}
			l.invalidRetryCount++
			l.publish(stream.EventPlannerRetry, map[string]any{"reason": "input_validation_error"})
			continue
		}

		// Step 4: pin decision seq, pre-create skeleton decision + block.
		seq, err := l.r.Deps.Store.NextSeq(l.ctx, l.in.AgentExecutionID)
		if err != nil {
			return nil, fmt.Errorf("looprunner: next_seq: %w", err)
		}
		decisionID := newID()
		now := wfCtx.Now()
		txt := streamer.New(decisionID, func(d streamer.Delta) {
			l.publish(stream.EventBlockDeltaArtifact, d)
		}, streamer.DefaultWindow)

		// Step 5: stream from planner.
		ch, err := l.r.Deps.Planner.Stream(l.ctx, plannerInput)
		if err != nil {
			return nil, fmt.Errorf("looprunner: planner stream: %w", err)
		}
		var final *planner.Decision
	streamLoop:
		for evt := range ch {
			switch evt.Kind {
			case planner.KindPartial:
				d := evt.Decision
				decision := toModelDecision(decisionID, l.in.AgentExecutionID, seq, loopIndex, d)
				b := l.projector.UpsertForDecision(l.in.CompletionID, l.in.AgentExecutionID, decision, now)
				l.publish(stream.EventBlockUpsert, b)
				reasoning, content := derefStr(d.ReasoningMessage), derefStr(d.AssistantMessage)
				txt.Update(reasoning, content)
				if d.NonEmpty() {
					l.publish(stream.EventDecisionPartial, d)
				}
			case planner.KindFinal:
				d := evt.Decision
				if d.Error != nil {
					obs := model.Observation{Summary: "invalid planner output", Error: &model.ObservationError{Code: d.Error.Code, Message: d.Error.Message}}
					l.obs.AddToolObservation(tools.ObservationOnTrigger, "", nil, obs)
					if l.invalidRetryCount >= l.r.Config.MaxInvalidRetries {
						break streamLoop
					}
					l.invalidRetryCount++
					l.publish(stream.EventPlannerRetry, map[string]any{"reason": d.Error.Code})
					final = nil
					break streamLoop
				}
				decision := toModelDecision(decisionID, l.in.AgentExecutionID, seq, loopIndex, d)
				if err := l.r.Deps.Store.SavePlanDecision(l.ctx, decision); err != nil {
					return nil, fmt.Errorf("looprunner: save plan_decision: %w", err)
				}
				txt.Complete()
				b := l.projector.UpsertForDecision(l.in.CompletionID, l.in.AgentExecutionID, decision, wfCtx.Now())
				l.publish(stream.EventBlockUpsert, b)
				l.publish(stream.EventDecisionFinal, d)
				fd := d
				final = &fd
			}
		}
		if final == nil {
			continue
		}

		// Step 6: analysis complete -> post-step, then stop.
		if final.AnalysisComplete {
			l.analysisComplete = true
			l.finalAnswer = final.FinalAnswer
			l.runInstructionSuggestionPostStep(plannerInput)
			loopIndex++
			break
		}

		// Step 7: extract action.
		action := final.Action
		if final.PlanType == model.PlanTypeAction && action == nil {
			obs := model.Observation{Summary: "missing action", Error: &model.ObservationError{Code: "missing_action", Message: "action plan produced no tool call"}}
			l.obs.AddToolObservation(tools.ObservationOnTrigger, "", nil, obs)
			if l.invalidRetryCount >= l.r.Config.MaxInvalidRetries {
				break
			}
			l.invalidRetryCount++
			continue
		}
		if action == nil {
			continue
		}

		// Step 8: validate action against registry.
		if !l.r.Deps.Tools.ValidateToolForPlanType(action.Name, string(final.PlanType)) {
			obs := model.Observation{Summary: "tool not available", Error: &model.ObservationError{Code: "resolve_error", Message: fmt.Sprintf("tool %q not allowed for plan_type %q", action.Name, final.PlanType)}}
			l.obs.AddToolObservation(tools.ObservationOnTrigger, action.Name, action.Arguments, obs)
			continue
		}
		meta, _ := l.r.Deps.Tools.Lookup(action.Name)
		tool, ok := l.r.Deps.Lookup(action.Name)
		if !ok {
			obs := model.Observation{Summary: "tool not registered", Error: &model.ObservationError{Code: "resolve_error", Message: fmt.Sprintf("no implementation for tool %q", action.Name)}}
			l.obs.AddToolObservation(tools.ObservationOnTrigger, action.Name, action.Arguments, obs)
			continue
		}

		// Step 9: reset per-action artifact state for artifact-creating tools.
		artifact := &toolruntime.ArtifactState{}
		createsWidget := action.Name == "create_widget" || action.Name == "create_data" || action.Name == "create_and_execute_code"

		// Step 10: persist ToolExecution(started), emit tool.started, run tool.
		toolExecID := newID()
		decisionIDCopy := decisionID
		te := model.ToolExecution{
			ID: toolExecID, AgentExecutionID: l.in.AgentExecutionID, PlanDecisionID: &decisionIDCopy,
			ToolName: action.Name, Arguments: action.Arguments, Status: model.ToolExecutionInProgress,
			StartedAt: wfCtx.Now(), MaxRetries: meta.MaxRetries,
		}
		if err := l.r.Deps.Store.StartToolExecution(l.ctx, te); err != nil {
			return nil, fmt.Errorf("looprunner: start tool_execution: %w", err)
		}
		l.publish(stream.EventToolStarted, te)

		rc := &toolruntime.RuntimeContext{
			AgentExecutionID: l.in.AgentExecutionID,
			ReportID:         l.in.ReportID,
			OrganizationID:   l.in.OrganizationID,
			CurrentArtifact:  artifact,
			DataSources:      l.in.DataSources,
			Observations:     l.obs.History(),
			View:             &view,
			Sigkill:          l.in.Sigkill,
			Stages:           toolruntime.NewStageDispatcher(toolExecID),
		}

		// Step 11: forward tool.progress|partial|stdout.
		onEvent := func(evt toolruntime.ToolEvent) {
			switch evt.Kind {
			case toolruntime.EventProgress:
				l.publish(stream.EventToolProgress, map[string]any{"stage": evt.Stage, "data": evt.Data})
			case toolruntime.EventPartial:
				l.publish(stream.EventToolPartial, evt.Data)
			case toolruntime.EventStdout:
				l.publish(stream.EventToolStdout, evt.Data)
			}
		}

		timeout := toolruntime.DefaultTimeoutPolicy()
		if meta.TimeoutSeconds > 0 {
			timeout.HardTimeoutS = time.Duration(meta.TimeoutSeconds) * time.Second
		}
		retry := toolruntime.DefaultRetryPolicy()
		retry.Idempotent = meta.Idempotent
		if meta.MaxRetries > 0 {
			retry.MaxAttempts = meta.MaxRetries
		}
		runner := toolruntime.NewRunner(timeout, retry)

		// Step 12: run tool; extract observation/output; apply post-tool hooks.
		result := runner.Run(l.ctx, tool, action.Arguments, rc, onEvent)
		if createsWidget && rc.CurrentArtifact.WidgetID != nil {
			l.createdWidgetThisRun = true
		}
		if createsWidget && result.Observation.Error == nil && len(result.Output) > 0 {
			var out struct {
				Errors []any `json:"errors"`
			}
			if json.Unmarshal(result.Output, &out) == nil && len(out.Errors) > 0 {
				l.widgetSucceededWithErrors = true
			}
		}

		// Step 13: circuit breakers.
		sortedArgs, _ := sortedArgsJSON(action.Arguments)
		if result.Observation.Error != nil {
			l.failedToolCount[action.Name]++
			if l.failedToolCount[action.Name] >= l.r.Config.MaxToolFailures {
				l.analysisComplete = true
				terminal := fmt.Sprintf("stopping after repeated failures of %q", action.Name)
				l.finalAnswer = &terminal
			}
		} else {
			key := action.Name + ":" + sortedArgs
			l.successfulActions = append(l.successfulActions, key)
			if repeatsLastN(l.successfulActions, l.r.Config.MaxRepeatedSuccesses) {
				l.analysisComplete = true
				achieved := "goal achieved"
				l.finalAnswer = &achieved
			}
		}

		// Step 14: persist tool finish; post_tool snapshot; upsert tool
		// block; emit tool.finished.
		completedAt := wfCtx.Now()
		duration := completedAt.Sub(te.StartedAt).Milliseconds()
		te.Status = model.ToolExecutionSuccess
		te.Success = result.Observation.Error == nil
		if !te.Success {
			te.Status = model.ToolExecutionError
			te.ErrorMessage = &result.Observation.Error.Message
		}
		te.CompletedAt = &completedAt
		te.DurationMs = &duration
		te.ResultSummary = &result.Observation.Summary
		te.ResultJSON = result.Output
		te.CreatedWidgetID = rc.CurrentArtifact.WidgetID
		te.CreatedStepID = rc.CurrentArtifact.StepID
		te.AttemptNumber = result.Attempts
		if err := l.r.Deps.Store.FinishToolExecution(l.ctx, te); err != nil {
			return nil, fmt.Errorf("looprunner: finish tool_execution: %w", err)
		}
		postView := l.r.Deps.Hub.GetView()
		l.saveSnapshot(model.SnapshotPostTool, postView)
		if b, err := l.projector.UpsertForTool(te, completedAt); err == nil {
			l.publish(stream.EventBlockUpsert, b)
		}
		l.publish(stream.EventToolFinished, te)

		// Step 15: append to observation history unless suppressed.
		l.obs.AddToolObservation(meta.ObservationPolicy, action.Name, action.Arguments, result.Observation)

		if l.analysisComplete {
			l.runInstructionSuggestionPostStep(plannerInput)
			loopIndex++
			break
		}
	}

	status := model.ExecutionSuccess
	if l.sigkilled {
		status = model.ExecutionSigkill
		l.projector.MarkLatestStopped()
	}

	finalView := l.r.Deps.Hub.GetView()
	l.saveSnapshot(model.SnapshotFinal, finalView)
	if err := l.r.Deps.Store.FinalizeAgentExecution(l.ctx, l.in.AgentExecutionID, status, 0); err != nil {
		return nil, fmt.Errorf("looprunner: finalize agent_execution: %w", err)
	}
	l.publish(stream.EventCompletionFinished, map[string]any{"status": status})

	return &Result{Status: status, FinalAnswer: l.finalAnswer, LoopCount: loopIndex}, nil
}

// runInstructionSuggestionPostStep implements spec.md §4.9.1's trigger
// condition and, when a Suggester is wired, streams suggestion drafts.
func (l *loop) runInstructionSuggestionPostStep(in planner.Input) {
	triggered := (l.createdWidgetThisRun && l.previousReportToolWasClarify) || l.widgetSucceededWithErrors
	if !triggered || l.r.Deps.Suggester == nil {
		return
	}
	l.publish(stream.EventInstructionsSuggestStarted, nil)
	drafts, err := l.r.Deps.Suggester.Suggest(l.ctx, in)
	if err != nil {
		l.publish(stream.EventCompletionError, map[string]any{"error": err.Error()})
		return
	}
	for _, d := range drafts {
		l.publish(stream.EventInstructionsSuggestPartial, map[string]any{"draft": d})
	}
	l.publish(stream.EventInstructionsSuggestFinished, nil)
}

func (l *loop) saveSnapshot(kind model.SnapshotKind, view model.ContextView) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = l.r.Deps.Store.SaveContextSnapshot(l.ctx, model.ContextSnapshot{
		ID: newID(), AgentExecutionID: l.in.AgentExecutionID, Kind: kind, ContextView: raw, CreatedAt: time.Now(),
	})
}

func (l *loop) publish(eventType string, data any) {
	seq, err := l.r.Deps.Store.NextSeq(l.ctx, l.in.AgentExecutionID)
	if err != nil {
		seq = 0
	}
	_ = l.r.Deps.Bus.Publish(l.ctx, bus.Event{
		Type: eventType, CompletionID: l.in.CompletionID, AgentExecutionID: l.in.AgentExecutionID,
		Seq: seq, Data: data, At: time.Now(),
	})
}

func toModelDecision(id, agentExecutionID string, seq, loopIndex int, d planner.Decision) model.PlanDecision {
	pd := model.PlanDecision{
		ID: id, AgentExecutionID: agentExecutionID, Seq: seq, LoopIndex: loopIndex,
		PlanType: d.PlanType, AnalysisComplete: d.AnalysisComplete,
		Reasoning: d.ReasoningMessage, Assistant: d.AssistantMessage, FinalAnswer: d.FinalAnswer,
		Metrics: d.Metrics,
	}
	if d.Action != nil {
		name := d.Action.Name
		pd.ActionName = &name
		pd.ActionArgs = d.Action.Arguments
	}
	return pd
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// repeatsLastN reports whether the last n entries of actions are all equal
// (spec.md §4.9 step 13's success-repetition breaker).
func repeatsLastN(actions []string, n int) bool {
	if n <= 0 || len(actions) < n {
		return false
	}
	last := actions[len(actions)-n:]
	for _, a := range last {
		if a != last[0] {
			return false
		}
	}
	return true
}

// sortedArgsJSON canonicalizes a tool's arguments so argument-order
// differences don't defeat the repeated-success breaker's string match.
func sortedArgsJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]byte, 0, len(raw))
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return string(ordered), nil
}

func newID() string { return uuid.NewString() }

// mergeCatalogs dedupes by tool name, preserving first-seen order across
// lists (spec.md §4.2: a tool with Category "both" would otherwise appear
// in each plan type's catalog).
func mergeCatalogs(lists ...[]tools.Metadata) []tools.Metadata {
	seen := make(map[string]bool)
	out := make([]tools.Metadata, 0)
	for _, list := range lists {
		for _, m := range list {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, m)
		}
	}
	return out
}
