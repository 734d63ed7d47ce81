package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bagofwords/agentcore/llmclient"
)

// decisionToolName is the function-call tool every request forces the model
// to emit its structured decision through, so the adapter never parses free
// text as JSON — the model's own tool-call argument decoder does that work.
const decisionToolName = "emit_decision"

// decisionPayload mirrors the JSON shape the planner prompt instructs the
// model to emit as emit_decision's arguments; it is decoded once per final
// tool call, never exposed outside this file.
type decisionPayload struct {
	PlanType         string          `json:"plan_type"`
	ReasoningMessage string          `json:"reasoning_message"`
	AssistantMessage string          `json:"assistant_message"`
	AnalysisComplete bool            `json:"analysis_complete"`
	FinalAnswer      string          `json:"final_answer"`
	Action           *actionPayload  `json:"action,omitempty"`
	Metrics          json.RawMessage `json:"metrics,omitempty"`
}

type actionPayload struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Arguments json.RawMessage `json:"arguments"`
}

// ModelAdapter implements Adapter on top of an llmclient.Client, forcing the
// model to call decisionToolName so its arguments decode directly into
// Decision with no ad hoc text parsing. This is the "stateful incremental
// parser yielding strongly-typed partials" the DESIGN NOTES call for
// (spec.md §9): ThinkingPart/TextPart chunks build up monotonically
// populated partial Decisions (reasoning/assistant text only) while the
// final decision arrives atomically as the tool call's decoded arguments.
type ModelAdapter struct {
	Client llmclient.Client
	Model  string
}

// NewModelAdapter constructs an Adapter backed by client, routing requests
// to modelID.
func NewModelAdapter(client llmclient.Client, modelID string) *ModelAdapter {
	return &ModelAdapter{Client: client, Model: modelID}
}

func (a *ModelAdapter) Stream(ctx context.Context, input Input) (<-chan StreamEvent, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	req := a.buildRequest(input)
	streamer, err := a.Client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 8)
	go a.drive(ctx, streamer, out)
	return out, nil
}

func (a *ModelAdapter) drive(ctx context.Context, streamer llmclient.Streamer, out chan<- StreamEvent) {
	defer close(out)
	defer streamer.Close()

	var reasoning, assistant string
	finalized := false

	for {
		chunk, err := streamer.Recv()
		if err != nil {
			if !finalized {
				out <- StreamEvent{Kind: KindFinal, Decision: Decision{Error: &DecisionError{Code: "validation_error", Message: err.Error()}}}
			}
			return
		}
		switch chunk.Type {
		case llmclient.ChunkTypeThinking:
			reasoning += chunk.Thinking
			emitPartialIfNonEmpty(out, reasoning, assistant)
		case llmclient.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(llmclient.TextPart); ok {
						assistant += tp.Text
					}
				}
			}
			emitPartialIfNonEmpty(out, reasoning, assistant)
		case llmclient.ChunkTypeToolCall:
			if chunk.ToolCall == nil || chunk.ToolCall.Name != decisionToolName {
				continue
			}
			decision := decodeDecision(chunk.ToolCall.Payload)
			out <- StreamEvent{Kind: KindFinal, Decision: decision}
			finalized = true
		case llmclient.ChunkTypeStop:
			if !finalized {
				out <- StreamEvent{Kind: KindFinal, Decision: Decision{Error: &DecisionError{Code: "validation_error", Message: "stream ended without a decision"}}}
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func emitPartialIfNonEmpty(out chan<- StreamEvent, reasoning, assistant string) {
	d := Decision{}
	if reasoning != "" {
		d.ReasoningMessage = &reasoning
	}
	if assistant != "" {
		d.AssistantMessage = &assistant
	}
	if d.NonEmpty() {
		out <- StreamEvent{Kind: KindPartial, Decision: d}
	}
}

func decodeDecision(payload json.RawMessage) Decision {
	var p decisionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Decision{Error: &DecisionError{Code: "validation_error", Message: fmt.Sprintf("decode decision: %v", err)}}
	}
	d := Decision{
		PlanType:         PlanType(p.PlanType),
		AnalysisComplete: p.AnalysisComplete,
		Metrics:          p.Metrics,
	}
	if p.ReasoningMessage != "" {
		d.ReasoningMessage = &p.ReasoningMessage
	}
	if p.AssistantMessage != "" {
		d.AssistantMessage = &p.AssistantMessage
	}
	if p.FinalAnswer != "" {
		d.FinalAnswer = &p.FinalAnswer
	}
	if p.Action != nil {
		d.Action = &Action{Name: p.Action.Name, Type: p.Action.Type, Arguments: p.Action.Arguments}
	}
	if d.PlanType != PlanType("research") && d.PlanType != PlanType("action") {
		return Decision{Error: &DecisionError{Code: "validation_error", Message: fmt.Sprintf("invalid plan_type %q", p.PlanType)}}
	}
	return d
}

func (a *ModelAdapter) buildRequest(input Input) *llmclient.Request {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"plan_type":         map[string]any{"type": "string", "enum": []string{"research", "action"}},
			"reasoning_message": map[string]any{"type": "string"},
			"assistant_message": map[string]any{"type": "string"},
			"analysis_complete": map[string]any{"type": "boolean"},
			"final_answer":      map[string]any{"type": "string"},
			"action": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"type":      map[string]any{"type": "string"},
					"arguments": map[string]any{"type": "object"},
				},
			},
		},
		"required": []string{"plan_type", "analysis_complete"},
	}

	toolDefs := make([]*llmclient.ToolDefinition, 0, len(input.ToolCatalog))
	for _, t := range input.ToolCatalog {
		toolDefs = append(toolDefs, &llmclient.ToolDefinition{Name: string(t.Name), Description: t.Description, InputSchema: json.RawMessage(t.InputSchema)})
	}

	messages := []*llmclient.Message{
		{Role: llmclient.ConversationRoleSystem, Parts: []llmclient.Part{llmclient.TextPart{Text: systemPrompt(input)}}},
		{Role: llmclient.ConversationRoleUser, Parts: []llmclient.Part{llmclient.TextPart{Text: input.UserMessage}}},
	}

	return &llmclient.Request{
		RunID:      input.OrganizationID,
		Model:      a.Model,
		ModelClass: llmclient.ModelClassDefault,
		Messages:   messages,
		Stream:     true,
		Tools: append(toolDefs, &llmclient.ToolDefinition{
			Name:        decisionToolName,
			Description: "Emit the planner's decision for this iteration.",
			InputSchema: schema,
		}),
		ToolChoice: &llmclient.ToolChoice{Mode: llmclient.ToolChoiceModeTool, Name: decisionToolName},
	}
}

func systemPrompt(input Input) string {
	return fmt.Sprintf("mode=%s tools_available=%d instructions=%d", input.Mode, len(input.ToolCatalog), len(input.Instructions))
}
