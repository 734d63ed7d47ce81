// Package engine abstracts the durable execution substrate the agent loop
// (C9, package looprunner) runs on (spec.md C13). Grounded on
// runtime/agent/engine/engine.go, trimmed of the activity-scheduling and
// child-workflow machinery that abstraction carries for Temporal: this
// repo's tool calls execute in-process within the same loop goroutine
// (toolruntime.Runner), not as separately scheduled activities, so
// ExecuteActivity/Future/ActivityDefinition have no caller here and are
// dropped rather than carried unused.
package engine

import (
	"context"
	"time"

	"github.com/bagofwords/agentcore/telemetry"
)

// RunStatus is the lifecycle status of a started workflow, queryable
// independent of the WorkflowHandle that started it.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Engine registers a workflow definition and starts executions of it.
// Implementations: engine/inmem (single-process, no durability) and
// engine/temporal (runs def.Handler inside a single Temporal activity behind
// a thin deterministic workflow function, so an execution survives worker
// restarts at activity granularity; see engine/temporal's package doc for
// why it can't offer the teacher's finer per-step durability).
type Engine interface {
	RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
	StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	QueryRunStatus(ctx context.Context, runID string) (RunStatus, error)
}

// WorkflowDefinition binds a workflow handler to a logical name.
type WorkflowDefinition struct {
	Name    string
	Handler WorkflowFunc
}

// WorkflowFunc is the agent loop entry point invoked by the engine.
type WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

// WorkflowContext exposes engine operations to the loop. Mirrors the
// teacher's WorkflowContext surface minus activity scheduling.
type WorkflowContext interface {
	Context() context.Context
	WorkflowID() string
	RunID() string
	SignalChannel(name string) SignalChannel
	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer
	Now() time.Time
}

// SignalChannel delivers out-of-band signals (sigkill, clarification
// answers) into a running workflow.
type SignalChannel interface {
	Receive(ctx context.Context, dest any) error
	ReceiveAsync(dest any) bool
}

// WorkflowStartRequest describes how to launch a workflow execution.
type WorkflowStartRequest struct {
	ID       string
	Workflow string
	Input    any
}

// WorkflowHandle lets callers interact with a running workflow.
type WorkflowHandle interface {
	Wait(ctx context.Context, result any) error
	Signal(ctx context.Context, name string, payload any) error
	Cancel(ctx context.Context) error
}
