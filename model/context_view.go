package model

// ContextView is the assembled, ready-to-render planner context for one loop
// iteration: a static section (primed once per AgentExecution) and a warm
// section (rebuilt every iteration). Field names mirror the sections a
// prompt builder walks in order, so ContextView can be serialized directly
// into a ContextSnapshot without an intermediate shape.
type ContextView struct {
	// Static sections, computed once at AgentExecution start and reused
	// verbatim for every loop iteration (spec.md §4.4).
	SystemPrompt string
	SchemaCatalog []SchemaRef
	Instructions  []InstructionRef
	Resources     []ResourceRef

	// Warm sections, rebuilt every iteration from the growing observation
	// history.
	Observations   []Observation
	CodeSnippets   []CodeSnippetRef
	ConversationSoFar []ConversationTurn

	// LoopIndex is the iteration this view was built for; included so a
	// ContextSnapshot is self-describing without joining back to
	// PlanDecision.
	LoopIndex int
}

// SchemaRef is one ranked schema entry surfaced to the planner.
type SchemaRef struct {
	Name        string
	Description string
	Score       float64
	ColumnCount int
}

// InstructionRef is one instruction surfaced via intelligent search.
type InstructionRef struct {
	ID    string
	Text  string
	Score float64
}

// ResourceRef is a static resource (e.g., a linked data source) surfaced to
// the planner unconditionally.
type ResourceRef struct {
	ID   string
	Name string
	Kind string
}

// CodeSnippetRef is one ranked prior code snippet surfaced via recall.
type CodeSnippetRef struct {
	ID      string
	Code    string
	Success bool
	Score   float64
}

// ConversationTurn is one prior user/assistant turn folded into warm
// context.
type ConversationTurn struct {
	Role string
	Text string
}
