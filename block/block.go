// Package block projects plan decisions and tool executions into the
// render-ready transcript (spec.md C7). Grounded in idiom on
// transcript/ledger.go's ordered-part reconstruction (sort then
// concatenate), but ledger.go itself is a Bedrock-message-validation
// structure unrelated to this spec's block/decision shape, so this package
// is a fresh implementation of spec.md §4.7, not an adaptation of that file.
package block

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bagofwords/agentcore/model"
)

const decisionIcon = "brain-glyph"

// Projector holds the in-progress CompletionBlock set for one
// AgentExecution and implements the upsert/rebuild operations of spec.md
// §4.7. Not safe for concurrent writers; the agent loop's single writer
// owns it.
type Projector struct {
	mu sync.Mutex
	// byLoopIndex holds the one decision block per loop_index (spec.md
	// invariant: at most one decision block per (agent_execution_id,
	// loop_index)).
	byLoopIndex map[int]*model.CompletionBlock
	// byDecisionID lets UpsertForTool find the decision block owning a
	// given plan_decision_id in O(1).
	byDecisionID map[string]*model.CompletionBlock
	order        []int // loop indices in first-seen order
}

// New constructs an empty Projector.
func New() *Projector {
	return &Projector{byLoopIndex: make(map[int]*model.CompletionBlock), byDecisionID: make(map[string]*model.CompletionBlock)}
}

// UpsertForDecision implements spec.md §4.7's upsert_block_for_decision.
// Key: (agent_execution_id, loop_index, source_type='decision'). now is
// injected rather than read from time.Now() so callers control block
// timestamps deterministically in tests.
func (p *Projector) UpsertForDecision(completionID, agentExecutionID string, decision model.PlanDecision, now time.Time) *model.CompletionBlock {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, exists := p.byLoopIndex[decision.LoopIndex]
	if !exists {
		b = &model.CompletionBlock{
			ID:               fmt.Sprintf("%s:decision:%d", agentExecutionID, decision.LoopIndex),
			CompletionID:     completionID,
			AgentExecutionID: agentExecutionID,
			SourceType:       model.BlockSourceDecision,
			LoopIndex:        decision.LoopIndex,
			Icon:             decisionIcon,
			StartedAt:        now,
		}
		p.byLoopIndex[decision.LoopIndex] = b
		p.order = append(p.order, decision.LoopIndex)
	}

	decisionID := decision.ID
	b.PlanDecisionID = &decisionID
	b.BlockIndex = decision.Seq * 10
	b.Title = fmt.Sprintf("Planning (%s)", decision.PlanType)
	if decision.AnalysisComplete {
		b.Status = model.BlockCompleted
	} else {
		b.Status = model.BlockInProgress
	}
	if decision.FinalAnswer != nil {
		b.Content = decision.FinalAnswer
	} else {
		b.Content = decision.Assistant
	}
	b.Reasoning = decision.Reasoning
	if decision.AnalysisComplete && b.CompletedAt == nil {
		b.CompletedAt = &now
	}
	b.UpdatedAt = now
	p.byDecisionID[decision.ID] = b
	return b
}

// UpsertForTool implements spec.md §4.7's upsert_block_for_tool: it finds
// the decision block owning tool.PlanDecisionID and annotates it, never
// creating a second block (the "decision-first" invariant from spec.md §3).
func (p *Projector) UpsertForTool(tool model.ToolExecution, now time.Time) (*model.CompletionBlock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tool.PlanDecisionID == nil {
		return nil, fmt.Errorf("block: tool execution %s has no owning plan decision", tool.ID)
	}
	b, ok := p.byDecisionID[*tool.PlanDecisionID]
	if !ok {
		return nil, fmt.Errorf("block: no decision block for plan_decision_id %s", *tool.PlanDecisionID)
	}

	b.ToolExecutionID = &tool.ID
	if !strings.Contains(b.Title, "→ "+tool.ToolName) {
		b.Title = b.Title + " → " + tool.ToolName
	}
	switch tool.Status {
	case model.ToolExecutionSuccess:
		b.Status = model.BlockCompleted
	case model.ToolExecutionError:
		b.Status = model.BlockError
	default:
		b.Status = model.BlockInProgress
	}
	if tool.CompletedAt != nil {
		b.CompletedAt = tool.CompletedAt
	}
	b.UpdatedAt = now
	return b, nil
}

// RebuildCompletion implements spec.md §4.7's rebuild_completion_from_blocks:
// a pure function of the current block set, stable across repeated calls.
// It returns the concatenated assistant body and the joined reasoning of
// the last 3 non-empty reasonings.
func (p *Projector) RebuildCompletion() (body string, reasoning string) {
	p.mu.Lock()
	blocks := make([]*model.CompletionBlock, 0, len(p.byLoopIndex))
	for _, b := range p.byLoopIndex {
		blocks = append(blocks, b)
	}
	p.mu.Unlock()

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].BlockIndex < blocks[j].BlockIndex })

	var bodyParts []string
	var reasonings []string
	for _, b := range blocks {
		if b.Content != nil && *b.Content != "" {
			glyph := statusGlyph(b.Status)
			bodyParts = append(bodyParts, fmt.Sprintf("**%s %s %s**\n%s", b.Icon, b.Title, glyph, *b.Content))
		}
		if b.Reasoning != nil && *b.Reasoning != "" {
			reasonings = append(reasonings, *b.Reasoning)
		}
	}
	if len(reasonings) > 3 {
		reasonings = reasonings[len(reasonings)-3:]
	}
	return strings.Join(bodyParts, "\n\n"), strings.Join(reasonings, " | ")
}

// MarkErrorOnLatest implements spec.md §4.7's mark_error_on_latest_block: it
// flips the highest-block_index block to error, appending the message to
// content unless already present.
func (p *Projector) MarkErrorOnLatest(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var latest *model.CompletionBlock
	for _, b := range p.byLoopIndex {
		if latest == nil || b.BlockIndex > latest.BlockIndex {
			latest = b
		}
	}
	if latest == nil {
		return
	}
	latest.Status = model.BlockError
	suffix := "\n\nError: " + msg
	if latest.Content == nil {
		latest.Content = &suffix
		return
	}
	if !strings.Contains(*latest.Content, suffix) {
		combined := *latest.Content + suffix
		latest.Content = &combined
	}
}

// MarkLatestStopped flips the highest-indexed block to "stopped" status,
// used by the sigkill path (spec.md §5 cancellation semantics point 3).
func (p *Projector) MarkLatestStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	var latest *model.CompletionBlock
	for _, b := range p.byLoopIndex {
		if latest == nil || b.BlockIndex > latest.BlockIndex {
			latest = b
		}
	}
	if latest != nil {
		latest.Status = model.BlockStopped
	}
}

func statusGlyph(s model.BlockStatus) string {
	switch s {
	case model.BlockCompleted:
		return "✓"
	case model.BlockError:
		return "✗"
	case model.BlockStopped:
		return "■"
	default:
		return "…"
	}
}
