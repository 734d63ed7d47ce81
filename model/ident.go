// Package model defines the persisted and in-memory entities shared across
// the orchestration core: AgentExecution, PlanDecision, ToolExecution,
// CompletionBlock, ContextSnapshot, Observation, and ContextView. Types here
// are storage-representation-agnostic; the store package decides how to
// persist them.
package model

// Ident is the strong type for fully qualified tool identifiers
// (e.g., "create_widget", "answer_question"). Use this type when referencing
// tools in maps or APIs to avoid accidental mixing with free-form strings.
type Ident string

// Bounds describes how a tool result has been bounded relative to the full
// underlying data set. Tool implementations populate this when they apply
// list/window/graph caps; the runtime never modifies it, only surfaces it.
type Bounds struct {
	Returned       int
	Total          *int
	Truncated      bool
	RefinementHint string
}
