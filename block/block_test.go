package block

import (
	"testing"
	"time"

	"github.com/bagofwords/agentcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertForDecisionIsIdempotentPerLoopIndex(t *testing.T) {
	p := New()
	now := time.Now()
	decision := model.PlanDecision{ID: "d1", Seq: 3, LoopIndex: 0, PlanType: model.PlanTypeResearch}
	b1 := p.UpsertForDecision("c1", "e1", decision, now)
	decision.AnalysisComplete = true
	answer := "here is the answer"
	decision.FinalAnswer = &answer
	b2 := p.UpsertForDecision("c1", "e1", decision, now.Add(time.Second))

	assert.Same(t, b1, b2)
	assert.Equal(t, 30, b2.BlockIndex)
	assert.Equal(t, model.BlockCompleted, b2.Status)
	assert.Equal(t, "here is the answer", *b2.Content)
}

func TestUpsertForToolAnnotatesOwningDecisionBlock(t *testing.T) {
	p := New()
	now := time.Now()
	decision := model.PlanDecision{ID: "d1", Seq: 1, LoopIndex: 0, PlanType: model.PlanTypeAction}
	p.UpsertForDecision("c1", "e1", decision, now)

	tool := model.ToolExecution{ID: "t1", PlanDecisionID: ptr("d1"), ToolName: "create_widget", Status: model.ToolExecutionSuccess}
	b, err := p.UpsertForTool(tool, now)
	require.NoError(t, err)
	assert.Contains(t, b.Title, "→ create_widget")
	assert.Equal(t, model.BlockCompleted, b.Status)
}

func TestUpsertForToolErrorsWithoutOwningDecision(t *testing.T) {
	p := New()
	_, err := p.UpsertForTool(model.ToolExecution{ID: "t1", PlanDecisionID: ptr("missing")}, time.Now())
	assert.Error(t, err)
}

func TestRebuildCompletionIsPureAndStable(t *testing.T) {
	p := New()
	now := time.Now()
	a1 := "first"
	p.UpsertForDecision("c1", "e1", model.PlanDecision{ID: "d1", Seq: 1, LoopIndex: 0, Assistant: &a1}, now)
	a2 := "second"
	p.UpsertForDecision("c1", "e1", model.PlanDecision{ID: "d2", Seq: 2, LoopIndex: 1, Assistant: &a2}, now)

	body1, _ := p.RebuildCompletion()
	body2, _ := p.RebuildCompletion()
	assert.Equal(t, body1, body2)
	assert.Less(t, indexOf(body1, "first"), indexOf(body1, "second"))
}

func TestMarkErrorOnLatestAppendsOnce(t *testing.T) {
	p := New()
	now := time.Now()
	content := "partial output"
	p.UpsertForDecision("c1", "e1", model.PlanDecision{ID: "d1", Seq: 1, LoopIndex: 0, Assistant: &content}, now)
	p.MarkErrorOnLatest("tool failed")
	p.MarkErrorOnLatest("tool failed")
	b := p.byLoopIndex[0]
	assert.Equal(t, 1, countOccurrences(*b.Content, "Error: tool failed"))
}

func ptr(s string) *string { return &s }

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}
