package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/bagofwords/agentcore/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWorkflowRunsHandlerAndCompletes(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name: "echo",
		Handler: func(ctx engine.WorkflowContext, input any) (any, error) {
			return input, nil
		},
	}))

	h, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "r1", Workflow: "echo", Input: "hi"})
	require.NoError(t, err)

	var result string
	require.NoError(t, h.Wait(context.Background(), &result))
	assert.Equal(t, "hi", result)

	status, err := e.QueryRunStatus(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, engine.RunStatusCompleted, status)
}

func TestSignalDeliversToWaitingWorkflow(t *testing.T) {
	e := New()
	received := make(chan string, 1)
	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name: "waits",
		Handler: func(ctx engine.WorkflowContext, input any) (any, error) {
			var sig string
			if err := ctx.SignalChannel("go").Receive(ctx.Context(), &sig); err != nil {
				return nil, err
			}
			received <- sig
			return nil, nil
		},
	}))

	h, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "r2", Workflow: "waits"})
	require.NoError(t, err)
	require.NoError(t, h.Signal(context.Background(), "go", "proceed"))

	select {
	case v := <-received:
		assert.Equal(t, "proceed", v)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
	require.NoError(t, h.Wait(context.Background(), new(any)))
}

func TestStartWorkflowUnregisteredNameErrors(t *testing.T) {
	e := New()
	_, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "r3", Workflow: "missing"})
	assert.Error(t, err)
}
