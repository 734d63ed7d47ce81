package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/bagofwords/agentcore/engine"
	"github.com/bagofwords/agentcore/telemetry"
)

// activityWorkflowContext adapts a Temporal activity's real context.Context
// into engine.WorkflowContext. A genuine workflow.Context-backed
// implementation (as in runtime/agent/engine/temporal/workflow_context.go)
// isn't possible here because def.Handler runs as the activity body, not as
// deterministic workflow code; see runHandlerActivity's doc comment.
type activityWorkflowContext struct {
	ctx          context.Context
	workflowName string
	logger       telemetry.Logger
	metrics      telemetry.Metrics
	tracer       telemetry.Tracer
}

var _ engine.WorkflowContext = (*activityWorkflowContext)(nil)

func newActivityWorkflowContext(ctx context.Context, name string, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) *activityWorkflowContext {
	return &activityWorkflowContext{ctx: ctx, workflowName: name, logger: logger, metrics: metrics, tracer: tracer}
}

func (w *activityWorkflowContext) Context() context.Context { return w.ctx }

func (w *activityWorkflowContext) WorkflowID() string { return w.workflowName }

// RunID reads the activity's own Temporal run id, which is the run id of the
// thin wrapper workflow started by Engine.StartWorkflow.
func (w *activityWorkflowContext) RunID() string {
	return activity.GetInfo(w.ctx).WorkflowExecution.RunID
}

// SignalChannel only recognizes "sigkill": it reflects this activity's own
// ctx.Done(), which fires when runWorkflow cancels actCtx after observing
// the real Temporal sigkill signal on the wrapper workflow. Any other name
// returns a channel that never receives, since there is no mechanism here
// for arbitrary mid-run signals to reach the activity.
func (w *activityWorkflowContext) SignalChannel(name string) engine.SignalChannel {
	if name != sigkillSignalName {
		return &closedSignalChannel{}
	}
	return &ctxSignalChannel{ctx: w.ctx}
}

func (w *activityWorkflowContext) Logger() telemetry.Logger   { return w.logger }
func (w *activityWorkflowContext) Metrics() telemetry.Metrics { return w.metrics }
func (w *activityWorkflowContext) Tracer() telemetry.Tracer   { return w.tracer }
func (w *activityWorkflowContext) Now() time.Time             { return time.Now() }

// ctxSignalChannel surfaces a context.Context's cancellation as a
// SignalChannel receive.
type ctxSignalChannel struct{ ctx context.Context }

func (c *ctxSignalChannel) Receive(ctx context.Context, _ any) error {
	select {
	case <-c.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ctxSignalChannel) ReceiveAsync(_ any) bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// closedSignalChannel never receives; Receive blocks until ctx is canceled.
type closedSignalChannel struct{}

func (c *closedSignalChannel) Receive(ctx context.Context, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *closedSignalChannel) ReceiveAsync(_ any) bool { return false }
