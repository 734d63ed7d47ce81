// Package planner is the planner adapter (spec.md C6): it validates
// PlannerInput, then streams decoded, strongly-typed PlannerDecision
// partials and a final decision from an LLM. Grounded on the
// streaming-interface idiom of runtime/agent/planner/planner.go, but
// re-shaped to spec.md §4.6's PlannerDecision fields rather than that
// file's tool-call-centric PlanResult/ToolRequest shape — this is the
// "stateful incremental parser yielding strongly-typed partials" the
// DESIGN NOTES call for (spec.md §9), never handing raw JSON upward.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/tools"
)

// Input aggregates everything spec.md §4.6 names as PlannerInput.
type Input struct {
	OrganizationID   string
	UserID           string
	UserMessage      string
	Instructions     []model.InstructionRef
	SchemasTopK      []model.SchemaRef
	SchemasCombined  string
	Messages         []model.ConversationTurn
	Resources        []model.ResourceRef
	Files            []string
	Mentions         []string
	Entities         []string
	HistorySummary   string
	LastObservation  *model.Observation
	PastObservations []model.Observation
	ToolCatalog      []tools.Metadata
	ExternalPlatform string
	Mode             string
}

// Validate reports the first missing required field as an
// input_validation_error-shaped error. A planner call with no user message
// and no prior observations cannot produce a meaningful decision.
func (in Input) Validate() error {
	if in.UserMessage == "" && in.LastObservation == nil && len(in.PastObservations) == 0 {
		return fmt.Errorf("planner input: user_message is required when no observation history exists")
	}
	if in.ToolCatalog == nil {
		return fmt.Errorf("planner input: tool_catalog is required")
	}
	return nil
}

// PlanType mirrors model.PlanType for decoded planner output.
type PlanType = model.PlanType

// Action is the tool the planner selected, when PlanType is action and a
// tool call was produced.
type Action struct {
	Name      string
	Type      string
	Arguments json.RawMessage
}

// DecisionError carries the {code, message} validation-error shape spec.md
// §4.6 attaches to a failed planner.decision.final.
type DecisionError struct {
	Code    string
	Message string
}

// Decision is the decoded PlannerDecision (spec.md §4.6), identical in
// meaning whether streamed as a partial or a final frame; AnalysisComplete
// and Action are zero-valued until the planner actually populates them.
type Decision struct {
	PlanType         PlanType
	ReasoningMessage *string
	AssistantMessage *string
	AnalysisComplete bool
	FinalAnswer      *string
	Action           *Action
	Metrics          json.RawMessage
	Error            *DecisionError
}

// NonEmpty reports whether this decision carries any reasoning or assistant
// text, the condition spec.md §9 standardizes "emit decision.partial only
// when..." on (Open Question decision, recorded in DESIGN.md).
func (d Decision) NonEmpty() bool {
	return (d.ReasoningMessage != nil && *d.ReasoningMessage != "") ||
		(d.AssistantMessage != nil && *d.AssistantMessage != "")
}

// StreamEventKind distinguishes a partial from the terminal final decision.
type StreamEventKind string

const (
	KindPartial StreamEventKind = "planner.decision.partial"
	KindFinal   StreamEventKind = "planner.decision.final"
	KindTokens  StreamEventKind = "planner.tokens" // raw, ignored by the core
)

// StreamEvent is one frame of a planner Stream call.
type StreamEvent struct {
	Kind     StreamEventKind
	Decision Decision
	Token    string // only set for KindTokens
}

// Adapter streams decoded decisions from a planner model for one validated
// Input. Exactly one KindFinal event terminates the stream; a decode error
// is delivered as a KindFinal event with Decision.Error populated rather
// than as a Go error, matching spec.md §4.6's validation-failure path.
type Adapter interface {
	Stream(ctx context.Context, input Input) (<-chan StreamEvent, error)
}
