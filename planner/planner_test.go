package planner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/bagofwords/agentcore/llmclient"
	"github.com/bagofwords/agentcore/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStreamer struct {
	chunks []llmclient.Chunk
	idx    int
}

func (s *scriptedStreamer) Recv() (llmclient.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return llmclient.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}
func (s *scriptedStreamer) Close() error { return nil }

type scriptedClient struct {
	streamer *scriptedStreamer
	err      error
}

func (c *scriptedClient) Complete(ctx context.Context, req *llmclient.Request) (*llmclient.Response, error) {
	return nil, errors.New("not implemented")
}
func (c *scriptedClient) Stream(ctx context.Context, req *llmclient.Request) (llmclient.Streamer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.streamer, nil
}

func basicInput() Input {
	return Input{UserMessage: "what columns does table x have?", ToolCatalog: []tools.Metadata{{Name: "answer_question", Category: tools.CategoryResearch}}}
}

func TestModelAdapterStreamsPartialsThenFinal(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"plan_type": "action", "analysis_complete": true, "final_answer": "table x has 3 columns",
	})
	streamer := &scriptedStreamer{chunks: []llmclient.Chunk{
		{Type: llmclient.ChunkTypeThinking, Thinking: "looking up schema"},
		{Type: llmclient.ChunkTypeToolCall, ToolCall: &llmclient.ToolCall{Name: decisionToolName, Payload: payload}},
	}}
	adapter := NewModelAdapter(&scriptedClient{streamer: streamer}, "test-model")

	ch, err := adapter.Stream(context.Background(), basicInput())
	require.NoError(t, err)

	var events []StreamEvent
	for e := range ch {
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, KindPartial, events[0].Kind)
	assert.Equal(t, "looking up schema", *events[0].Decision.ReasoningMessage)
	assert.Equal(t, KindFinal, events[1].Kind)
	assert.True(t, events[1].Decision.AnalysisComplete)
	assert.Equal(t, "table x has 3 columns", *events[1].Decision.FinalAnswer)
}

func TestModelAdapterInvalidPlanTypeIsValidationError(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"plan_type": "bogus", "analysis_complete": true})
	streamer := &scriptedStreamer{chunks: []llmclient.Chunk{
		{Type: llmclient.ChunkTypeToolCall, ToolCall: &llmclient.ToolCall{Name: decisionToolName, Payload: payload}},
	}}
	adapter := NewModelAdapter(&scriptedClient{streamer: streamer}, "test-model")
	ch, err := adapter.Stream(context.Background(), basicInput())
	require.NoError(t, err)

	var last StreamEvent
	for e := range ch {
		last = e
	}
	require.NotNil(t, last.Decision.Error)
	assert.Equal(t, "validation_error", last.Decision.Error.Code)
}

func TestValidateRejectsEmptyInputWithoutHistory(t *testing.T) {
	err := Input{ToolCatalog: []tools.Metadata{}}.Validate()
	assert.Error(t, err)
}
