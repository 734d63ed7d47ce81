// Package toolruntime executes a single registered tool as a lazily
// consumed event stream under retry and timeout policies (spec.md C3),
// translating provider/tool errors into a normalized Observation. Grounded
// on the teacher's streaming-tool-call idiom in
// runtime/agent/runtime/agent_tools.go (goroutine-fed channel, not a
// buffered slice) and the error taxonomy in package toolerrors.
package toolruntime

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/toolerrors"
)

// EventKind tags a ToolEvent the way spec.md §4.3 names tool-stream frames.
type EventKind string

const (
	EventStart    EventKind = "tool.start"
	EventProgress EventKind = "tool.progress"
	EventPartial  EventKind = "tool.partial"
	EventStdout   EventKind = "tool.stdout"
	EventEnd      EventKind = "tool.end"
	EventError    EventKind = "tool.error"
)

// ToolEvent is one frame of a tool's run_stream output.
type ToolEvent struct {
	Kind  EventKind
	Stage string // progress-hook stage name, only set for EventProgress
	Data  any

	// Output and Observation are populated only on EventEnd.
	Output      json.RawMessage
	Observation *model.Observation

	// Err is populated on EventError.
	Err error
}

// RuntimeContext carries the typed capabilities a tool may use, replacing
// the "duck-typed runtime context dictionary" the DESIGN NOTES flag for
// re-architecture (spec.md §9). Tools request capabilities through these
// fields directly rather than through a loosely typed map.
type RuntimeContext struct {
	AgentExecutionID string
	ReportID         string
	OrganizationID   string

	// CurrentArtifact holds the per-action artifact state reset at the
	// start of every tool invocation that can create artifacts
	// (create_widget, create_data, create_and_execute_code), per
	// spec.md §4.9 step 9.
	CurrentArtifact *ArtifactState

	// DataSources is an opaque, never-introspected map of data source
	// name to client handle (spec.md §6).
	DataSources map[string]any

	// Observations is the read-only observation history built so far in
	// this run, for tools that need prior context (e.g. to resume a
	// partially built data model).
	Observations []model.Observation

	// View is the current ContextView, offered read-only to tools that
	// render previews against the live schema/resource catalog.
	View *model.ContextView

	// Sigkill signals cooperative cancellation; tools must check it (or
	// ctx.Done(), which the runner cancels in lockstep) at every I/O
	// boundary.
	Sigkill <-chan struct{}

	// Stages receives side-effect hook calls as a tool crosses one of the
	// progress stages named in spec.md §4.3. Handlers are looked up by
	// stage name and invoked idempotently per (tool_execution_id, stage).
	Stages *StageDispatcher
}

// ArtifactState threads the current_query/current_step/current_visualization
// handles described in spec.md §4.9 step 9 and §6's side-effect outputs.
type ArtifactState struct {
	QueryID          *string
	StepID           *string
	VisualizationID  *string
	WidgetID         *string
}

// Tool is the uniform tool contract: run_stream(input, runtime_ctx) from
// spec.md §4.3. Implementations must always terminate the returned channel
// with exactly one EventEnd or EventError frame; a stream that closes
// without either is itself a protocol violation the Runner treats as
// execution_failure.
type Tool interface {
	RunStream(ctx context.Context, input json.RawMessage, rc *RuntimeContext) <-chan ToolEvent
}

// TimeoutPolicy bounds a tool invocation's wall clock and silence windows
// (spec.md §4.3).
type TimeoutPolicy struct {
	StartTimeoutS time.Duration // no event received at all
	IdleTimeoutS  time.Duration // silence between events
	HardTimeoutS  time.Duration // wall clock from first invocation
}

// DefaultTimeoutPolicy mirrors reasonable tool defaults when metadata does
// not override them.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{StartTimeoutS: 10 * time.Second, IdleTimeoutS: 30 * time.Second, HardTimeoutS: 120 * time.Second}
}

// RetryPolicy implements spec.md §4.3's exponential backoff with jitter.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMs         int
	BackoffMultiplier float64
	JitterMs          int
	Idempotent        bool
}

// DefaultRetryPolicy is a conservative single-attempt policy; callers
// override MaxAttempts/Idempotent from tool metadata.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, BackoffMs: 200, BackoffMultiplier: 2.0, JitterMs: 100}
}

// backoff returns the delay before attempt N (1-indexed), per spec.md's
// formula: backoff_ms * backoff_multiplier^(attempt-1), plus uniform jitter
// in [0, jitter_ms).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := float64(p.BackoffMs)
	for i := 1; i < attempt; i++ {
		base *= p.BackoffMultiplier
	}
	jitter := 0
	if p.JitterMs > 0 {
		jitter = rand.Intn(p.JitterMs)
	}
	return time.Duration(base)*time.Millisecond + time.Duration(jitter)*time.Millisecond
}

// retryable reports whether a failed attempt may be retried: only if the
// tool is idempotent or the classified error kind is itself retryable
// (spec.md §4.3: "non-idempotent failures are not retried").
func (p RetryPolicy) retryable(err *toolerrors.ToolError) bool {
	if p.Idempotent {
		return true
	}
	return err != nil && err.Retryable
}

// Result is the terminal outcome of Runner.Run: either a successful
// Observation/Output pair or a normalized failure observation. Exactly one
// of Observation.Error or (Output != nil) is meaningful per spec.md §4.3.
type Result struct {
	Output      json.RawMessage
	Observation model.Observation
	Attempts    int
}

// Runner drives one Tool through TimeoutPolicy/RetryPolicy and forwards
// every non-terminal event to onEvent as it arrives, so callers (the agent
// loop) can relay tool.progress/partial/stdout through the event bus
// without buffering the whole stream.
type Runner struct {
	Timeout TimeoutPolicy
	Retry   RetryPolicy
}

// NewRunner constructs a Runner with the given policies.
func NewRunner(timeout TimeoutPolicy, retry RetryPolicy) *Runner {
	return &Runner{Timeout: timeout, Retry: retry}
}

// Run executes tool against input, retrying per r.Retry, and returns the
// final Result. onEvent is invoked for every frame except the terminal
// EventEnd/EventError (which Run consumes to build Result); it must not
// block for long, as it runs on the same goroutine that drains the tool's
// channel.
func (r *Runner) Run(ctx context.Context, tool Tool, input json.RawMessage, rc *RuntimeContext, onEvent func(ToolEvent)) Result {
	// The hard timeout spans every attempt and backoff, starting now.
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, durationOr(r.Timeout.HardTimeoutS, time.Hour))
	defer cancel()
	var lastErr *toolerrors.ToolError
	attempts := 0
	for attempt := 1; attempt <= max(1, r.Retry.MaxAttempts); attempt++ {
		attempts = attempt
		if attempt > 1 {
			select {
			case <-ctx.Done():
				if parent.Err() == nil {
					return Result{Observation: errorObservation(toolerrors.New(toolerrors.KindTimeout, "timeout")), Attempts: attempts - 1}
				}
				return r.cancelledResult(attempts)
			case <-rc.Sigkill:
				return r.cancelledResult(attempts)
			case <-time.After(r.Retry.backoff(attempt)):
			}
		}

		res, toolErr, retryThis := r.attempt(ctx, tool, input, rc, onEvent)
		if toolErr == nil {
			res.Attempts = attempts
			return res
		}
		lastErr = toolErr
		if !retryThis || !r.Retry.retryable(toolErr) || attempt == r.Retry.MaxAttempts {
			break
		}
	}
	return Result{Observation: errorObservation(lastErr), Attempts: attempts}
}

// attempt runs exactly one invocation of tool under the timeout policy.
func (r *Runner) attempt(ctx context.Context, tool Tool, input json.RawMessage, rc *RuntimeContext, onEvent func(ToolEvent)) (Result, *toolerrors.ToolError, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, durationOr(r.Timeout.HardTimeoutS, time.Hour))
	defer cancel()

	ch := tool.RunStream(attemptCtx, input, rc)
	idle := time.NewTimer(durationOr(r.Timeout.StartTimeoutS, time.Minute))
	defer idle.Stop()

	seenAny := false
	for {
		select {
		case <-rc.Sigkill:
			cancel()
			return Result{}, toolerrors.New(toolerrors.KindCancelled, "sigkill"), false
		case <-attemptCtx.Done():
			return Result{}, toolerrors.New(toolerrors.KindTimeout, "timeout"), true
		case <-idle.C:
			cancel()
			return Result{}, toolerrors.New(toolerrors.KindTimeout, "timeout"), true
		case evt, ok := <-ch:
			if !ok {
				if !seenAny {
					return Result{}, toolerrors.New(toolerrors.KindExecutionFailure, "tool stream closed with no events"), false
				}
				return Result{}, toolerrors.New(toolerrors.KindExecutionFailure, "missing tool.end"), false
			}
			seenAny = true
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(durationOr(r.Timeout.IdleTimeoutS, time.Minute))

			switch evt.Kind {
			case EventEnd:
				obs := model.Observation{}
				if evt.Observation != nil {
					obs = *evt.Observation
				}
				return Result{Output: evt.Output, Observation: obs}, nil, false
			case EventError:
				te := toolerrors.FromError(evt.Err)
				return Result{}, te, true
			case EventProgress:
				if rc.Stages != nil {
					rc.Stages.Dispatch(evt.Stage, evt.Data)
				}
				onEvent(evt)
			default:
				onEvent(evt)
			}
		}
	}
}

func (r *Runner) cancelledResult(attempts int) Result {
	return Result{Observation: errorObservation(toolerrors.New(toolerrors.KindCancelled, "sigkill")), Attempts: attempts}
}

func errorObservation(err *toolerrors.ToolError) model.Observation {
	if err == nil {
		err = toolerrors.New(toolerrors.KindExecutionFailure, "unknown tool failure")
	}
	return model.Observation{
		Summary: string(err.Kind),
		Error:   &model.ObservationError{Code: string(err.Kind), Message: err.Message},
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
