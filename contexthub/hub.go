package contexthub

import (
	"sync"

	"github.com/bagofwords/agentcore/model"
)

// StaticSpec is everything needed to prime the static context section once
// per AgentExecution (spec.md §4.4): the user's query (for instruction
// intelligent search), schema stats per data source, instruction candidates,
// and resources that always load.
type StaticSpec struct {
	Query         string
	SystemPrompt  string
	SchemaStats   []SchemaStats
	Instructions  []InstructionCandidate
	Resources     []model.ResourceRef
	SchemaTopK    int
	InstructionTopK int
}

// WarmSpec carries the per-iteration inputs used to rebuild the warm
// section.
type WarmSpec struct {
	LoopIndex      int
	Observations   []model.Observation
	Conversation   []model.ConversationTurn
	CandidateColumns map[string]bool
	SuccessfulSnippets []CodeSnippetStats
	FailedSnippets     []CodeSnippetStats
	SnippetTopK        int
}

// Hub implements C4: a static section primed once and cached, and a warm
// section rebuilt every loop iteration. Safe for concurrent GetView calls
// from a single owning loop goroutine and an observer (e.g. a debug
// endpoint); BuildContext must only be called by the loop's single writer.
type Hub struct {
	mu     sync.RWMutex
	static model.ContextView // schemas/instructions/resources/system prompt only
	warm   model.ContextView // observations/snippets/conversation only
	primed bool
}

// NewHub constructs an empty, unprimed Hub.
func NewHub() *Hub { return &Hub{} }

// PrimeStatic computes and caches the static section exactly once. Calling
// it again replaces the cache (used only for tests; production runs prime
// once at AgentExecution start).
func (h *Hub) PrimeStatic(spec StaticSpec) {
	schemas := RankSchemas(spec.SchemaStats, spec.SchemaTopK)
	schemaRefs := make([]model.SchemaRef, len(schemas))
	for i, s := range schemas {
		schemaRefs[i] = model.SchemaRef{Name: s.Name, Description: s.Description, Score: s.Score, ColumnCount: s.ColumnCount}
	}

	matched := SelectInstructions(spec.Query, spec.Instructions, spec.InstructionTopK)
	instRefs := make([]model.InstructionRef, len(matched))
	for i, m := range matched {
		instRefs[i] = model.InstructionRef{ID: m.ID, Text: m.Text, Score: m.Score}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.static = model.ContextView{
		SystemPrompt:  spec.SystemPrompt,
		SchemaCatalog: schemaRefs,
		Instructions:  instRefs,
		Resources:     spec.Resources,
	}
	h.primed = true
}

// BuildContext rebuilds the warm section for loop_index and returns the
// fully composed ContextView, per spec.md §4.4's
// build_context(spec, research_context, loop_index). It does not build a
// ContextSnapshot; persisting one is left to the caller.
func (h *Hub) BuildContext(spec WarmSpec) model.ContextView {
	successSnippets := RankSuccessfulSnippets(spec.CandidateColumns, spec.SuccessfulSnippets, spec.SnippetTopK)
	failedSnippets := RankFailedSnippets(spec.CandidateColumns, spec.FailedSnippets, spec.SnippetTopK)

	snippetRefs := make([]model.CodeSnippetRef, 0, len(successSnippets)+len(failedSnippets))
	for _, s := range successSnippets {
		snippetRefs = append(snippetRefs, model.CodeSnippetRef{ID: s.ID, Code: s.Code, Success: true, Score: s.Score})
	}
	for _, s := range failedSnippets {
		snippetRefs = append(snippetRefs, model.CodeSnippetRef{ID: s.ID, Code: s.Code, Success: false, Score: s.Score})
	}

	h.mu.Lock()
	h.warm = model.ContextView{
		Observations:      spec.Observations,
		CodeSnippets:      snippetRefs,
		ConversationSoFar: spec.Conversation,
		LoopIndex:         spec.LoopIndex,
	}
	h.mu.Unlock()

	return h.GetView()
}

// GetView returns the current composed ContextView: the cached static
// section plus the most recently built warm section.
func (h *Hub) GetView() model.ContextView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return model.ContextView{
		SystemPrompt:      h.static.SystemPrompt,
		SchemaCatalog:     h.static.SchemaCatalog,
		Instructions:      h.static.Instructions,
		Resources:         h.static.Resources,
		Observations:       h.warm.Observations,
		CodeSnippets:       h.warm.CodeSnippets,
		ConversationSoFar:  h.warm.ConversationSoFar,
		LoopIndex:          h.warm.LoopIndex,
	}
}

// Primed reports whether PrimeStatic has run.
func (h *Hub) Primed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primed
}
