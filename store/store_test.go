package store

import (
	"context"
	"testing"
	"time"

	"github.com/bagofwords/agentcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSeqIsMonotonic(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateAgentExecution(ctx, model.AgentExecution{ID: "e1", Status: model.ExecutionInProgress, StartedAt: time.Now()}))

	seq1, err := s.NextSeq(ctx, "e1")
	require.NoError(t, err)
	seq2, err := s.NextSeq(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, seq1)
	assert.Equal(t, 2, seq2)
}

func TestSavePlanDecisionUpsertsBySeq(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateAgentExecution(ctx, model.AgentExecution{ID: "e1", Status: model.ExecutionInProgress}))

	reasoning := "thinking"
	require.NoError(t, s.SavePlanDecision(ctx, model.PlanDecision{ID: "d1", AgentExecutionID: "e1", Seq: 1, Reasoning: &reasoning}))
	reasoning2 := "thinking more"
	require.NoError(t, s.SavePlanDecision(ctx, model.PlanDecision{ID: "d1", AgentExecutionID: "e1", Seq: 1, Reasoning: &reasoning2}))

	decisions, err := s.ListPlanDecisions(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "thinking more", *decisions[0].Reasoning)
}

func TestWritesRejectedAfterTerminalStatus(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateAgentExecution(ctx, model.AgentExecution{ID: "e1", Status: model.ExecutionInProgress}))
	require.NoError(t, s.FinalizeAgentExecution(ctx, "e1", model.ExecutionSuccess, 1200))

	err := s.SavePlanDecision(ctx, model.PlanDecision{ID: "d1", AgentExecutionID: "e1", Seq: 1})
	assert.ErrorIs(t, err, ErrTerminal)

	err = s.StartToolExecution(ctx, model.ToolExecution{ID: "t1", AgentExecutionID: "e1"})
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestFinishToolExecutionUpdatesExistingRow(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateAgentExecution(ctx, model.AgentExecution{ID: "e1", Status: model.ExecutionInProgress}))
	require.NoError(t, s.StartToolExecution(ctx, model.ToolExecution{ID: "t1", AgentExecutionID: "e1", Status: model.ToolExecutionInProgress}))

	now := time.Now()
	require.NoError(t, s.FinishToolExecution(ctx, model.ToolExecution{ID: "t1", AgentExecutionID: "e1", Status: model.ToolExecutionSuccess, CompletedAt: &now}))

	tools, err := s.ListToolExecutions(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, model.ToolExecutionSuccess, tools[0].Status)
}

func TestSaveContextSnapshotIsAppendOnly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.CreateAgentExecution(ctx, model.AgentExecution{ID: "e1", Status: model.ExecutionInProgress}))

	require.NoError(t, s.SaveContextSnapshot(ctx, model.ContextSnapshot{ID: "s1", AgentExecutionID: "e1", Kind: model.SnapshotInitial, CreatedAt: time.Now()}))
	require.NoError(t, s.SaveContextSnapshot(ctx, model.ContextSnapshot{ID: "s2", AgentExecutionID: "e1", Kind: model.SnapshotFinal, CreatedAt: time.Now()}))

	assert.Len(t, s.snapshots["e1"], 2)
}
