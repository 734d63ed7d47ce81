// Package llmclient defines the provider-agnostic message and streaming
// types used by the planner adapter and provider adapters (spec.md C14).
// It is kept close to runtime/agent/model/model.go's shape — that package
// is already domain-free and provider-agnostic, so the adaptation here is
// renaming (avoiding a clash with this repo's domain model package) and
// retargeting the tool-identifier import, not a redesign.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is implemented by every message content block.
	Part interface{ isPart() }

	// TextPart is plain text content.
	TextPart struct{ Text string }

	// ThinkingPart is provider-issued reasoning content, treated as opaque
	// metadata by callers.
	ThinkingPart struct {
		Text      string
		Signature string
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a user message so
	// the model can read it in a subsequent turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// DocumentPart carries document content (e.g. a file a tool attached)
	// for models that support document inputs.
	DocumentPart struct {
		Name string
		Text string
		URI  string
	}

	// CacheCheckpointPart marks a cache boundary; providers that do not
	// support caching ignore it.
	CacheCheckpointPart struct{}

	// Message is a single chat message: an ordered list of typed parts
	// rather than a flattened string, so tool calls/results keep structure.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes one tool exposed to the model, derived from
	// the tool registry's Metadata (spec.md C2).
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a requested tool invocation decoded from the model's
	// output.
	ToolCall struct {
		Name    string
		Payload json.RawMessage
		ID      string
	}

	// ToolChoiceMode controls how the model uses tools for a request.
	ToolChoiceMode string

	// ToolChoice configures tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures the inputs for one model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is one streaming event from the model.
	Chunk struct {
		Type       string
		Message    *Message
		Thinking   string
		ToolCall   *ToolCall
		UsageDelta *TokenUsage
		StopReason string
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// ModelClass identifies a model family; providers map classes to
	// concrete model identifiers via the config package's routing table
	// (SPEC_FULL.md §4.12).
	ModelClass string

	// Client is the provider-agnostic model client the planner adapter
	// depends on instead of a concrete SDK.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers drain Recv until
	// io.EOF, then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}
)

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeThinking = "thinking"
	ChunkTypeUsage    = "usage"
	ChunkTypeStop     = "stop"
)

const (
	ModelClassHighReasoning ModelClass = "high-reasoning"
	ModelClassDefault       ModelClass = "default"
	ModelClassSmall         ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("llmclient: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting any configured retries.
var ErrRateLimited = errors.New("llmclient: rate limited")

func (TextPart) isPart()            {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (DocumentPart) isPart()        {}
func (CacheCheckpointPart) isPart() {}
