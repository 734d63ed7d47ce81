// Package openai implements llmclient.Client on top of the OpenAI Chat
// Completions API using github.com/openai/openai-go. features/model/openai
// in the reference tree targets a different, unofficial OpenAI SDK; this
// adapter keeps that file's Options/Client/Complete/Stream shape but talks
// to the openai-go client actually declared in go.mod.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/bagofwords/agentcore/llmclient"
)

// ChatClient captures the subset of the SDK used by Client, satisfied by
// the real openai.ChatCompletionService so tests can substitute a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures the OpenAI adapter's model routing and defaults.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float64
}

// Client implements llmclient.Client against OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float64
}

var _ llmclient.Client = (*Client)(nil)

// New builds a Client from an already-constructed chat completions client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, opts)
}

// Complete issues a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *llmclient.Request) (*llmclient.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", llmclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	return translateResponse(resp)
}

// Stream invokes the streaming chat completions endpoint.
func (c *Client) Stream(ctx context.Context, req *llmclient.Request) (llmclient.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", llmclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat.completions.new stream: %w", err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req *llmclient.Request) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = param.NewOpt(t)
	}
	if req.ToolChoice != nil {
		params.ToolChoice = encodeToolChoice(req.ToolChoice)
	}
	return params, nil
}

func (c *Client) resolveModelID(req *llmclient.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case llmclient.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case llmclient.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func encodeMessages(msgs []*llmclient.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := textOf(m)
		switch m.Role {
		case llmclient.ConversationRoleSystem:
			if text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case llmclient.ConversationRoleUser:
			if toolResult := firstToolResult(m); toolResult != nil {
				out = append(out, openai.ToolMessage(stringifyContent(toolResult.Content), toolResult.ToolUseID))
				continue
			}
			if text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case llmclient.ConversationRoleAssistant:
			calls := toolUseCalls(m)
			if len(calls) == 0 {
				if text != "" {
					out = append(out, openai.AssistantMessage(text))
				}
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				asst.Content.OfString = param.NewOpt(text)
			}
			for _, call := range calls {
				args, err := json.Marshal(call.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: encode tool_use input for %q: %w", call.Name, err)
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func textOf(m *llmclient.Message) string {
	var s string
	for _, p := range m.Parts {
		if v, ok := p.(llmclient.TextPart); ok {
			s += v.Text
		}
	}
	return s
}

func firstToolResult(m *llmclient.Message) *llmclient.ToolResultPart {
	for _, p := range m.Parts {
		if v, ok := p.(llmclient.ToolResultPart); ok {
			return &v
		}
	}
	return nil
}

func toolUseCalls(m *llmclient.Message) []llmclient.ToolUsePart {
	var out []llmclient.ToolUsePart
	for _, p := range m.Parts {
		if v, ok := p.(llmclient.ToolUsePart); ok {
			out = append(out, v)
		}
	}
	return out
}

func stringifyContent(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func encodeTools(defs []*llmclient.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: param.NewOpt(def.Description),
				Parameters:  schemaParams(def.InputSchema),
			},
		})
	}
	return out
}

func schemaParams(schema any) shared.FunctionParameters {
	if schema == nil {
		return shared.FunctionParameters{}
	}
	var raw json.RawMessage
	switch v := schema.(type) {
	case json.RawMessage:
		raw = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return shared.FunctionParameters{}
		}
		raw = data
	}
	var m shared.FunctionParameters
	if err := json.Unmarshal(raw, &m); err != nil {
		return shared.FunctionParameters{}
	}
	return m
}

func encodeToolChoice(choice *llmclient.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case llmclient.ToolChoiceModeNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}
	case llmclient.ToolChoiceModeAny:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
	case llmclient.ToolChoiceModeTool:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func translateResponse(resp *openai.ChatCompletion) (*llmclient.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	choice := resp.Choices[0]
	out := &llmclient.Response{StopReason: string(choice.FinishReason)}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, llmclient.Message{
			Role:  llmclient.ConversationRoleAssistant,
			Parts: []llmclient.Part{llmclient.TextPart{Text: choice.Message.Content}},
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llmclient.ToolCall{
			Name:    tc.Function.Name,
			Payload: json.RawMessage(tc.Function.Arguments),
			ID:      tc.ID,
		})
	}
	out.Usage = llmclient.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out, nil
}
