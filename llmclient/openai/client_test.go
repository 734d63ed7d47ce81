package openai

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagofwords/agentcore/llmclient"
)

type stubChatClient struct {
	lastParams openai.ChatCompletionNewParams
	resp       *openai.ChatCompletion
	err        error
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *stubChatClient) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubChatClient) NewStreaming(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk] {
	s.lastParams = body
	if s.stream == nil {
		s.stream = ssestream.NewStream[openai.ChatCompletionChunk](&noopDecoder{}, nil)
	}
	return s.stream
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func TestCompleteTranslatesTextAndUsage(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "stop",
				Message:      openai.ChatCompletionMessage{Content: "world"},
			},
		},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 128})
	require.NoError(t, err)

	req := &llmclient.Request{
		Messages: []*llmclient.Message{
			{Role: llmclient.ConversationRoleUser, Parts: []llmclient.Part{llmclient.TextPart{Text: "hello"}}},
		},
	}
	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "world", resp.Content[0].Parts[0].(llmclient.TextPart).Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, "gpt-4o", stub.lastParams.Model)
}

func TestCompleteTranslatesToolCalls(t *testing.T) {
	stub := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: "tool_calls",
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ChatCompletionMessageToolCall{
						{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "create_widget", Arguments: `{"x":1}`}},
					},
				},
			},
		},
	}}
	cl, err := New(stub, Options{DefaultModel: "gpt-4o", MaxTokens: 64})
	require.NoError(t, err)

	req := &llmclient.Request{
		Messages: []*llmclient.Message{
			{Role: llmclient.ConversationRoleUser, Parts: []llmclient.Part{llmclient.TextPart{Text: "build it"}}},
		},
		Tools: []*llmclient.ToolDefinition{{Name: "create_widget", Description: "creates a widget"}},
	}
	resp, err := cl.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "create_widget", resp.ToolCalls[0].Name)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := New(&stubChatClient{}, Options{})
	assert.Error(t, err)
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	cl, err := New(&stubChatClient{}, Options{DefaultModel: "gpt-4o", MaxTokens: 64})
	require.NoError(t, err)
	_, err = cl.prepareRequest(&llmclient.Request{})
	assert.Error(t, err)
}
