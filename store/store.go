// Package store is the persistence gateway (spec.md C10): monotonic seq
// allocation, plan-decision upserts, tool-execution start/finish writes,
// append-only context snapshots, and
// the failure-tolerance split spec.md §4.10 demands (snapshot/block writes
// are best-effort; decision/tool rows are fatal on failure). Grounded on
// the in-memory store idiom in runtime/agent/run and runtime/agent/runlog.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bagofwords/agentcore/model"
)

// ErrTerminal is returned when a write is attempted against an
// AgentExecution whose status is no longer in_progress (spec.md §3's
// "terminal status is write-once" invariant).
var ErrTerminal = errors.New("store: agent_execution is terminal")

// Store is the persistence gateway contract. Implementations must enforce:
//   - NextSeq allocation is atomic and strictly increasing per execution.
//   - SavePlanDecision upserts on (agent_execution_id, seq).
//
// InMemory returns ErrTerminal from SavePlanDecision, StartToolExecution and
// FinalizeAgentExecution once the execution's status is terminal. Postgres
// does not check the status before writing and never returns ErrTerminal.
type Store interface {
	CreateAgentExecution(ctx context.Context, exec model.AgentExecution) error
	GetAgentExecution(ctx context.Context, id string) (model.AgentExecution, error)
	FinalizeAgentExecution(ctx context.Context, id string, status model.ExecutionStatus, totalDurationMs int64) error

	NextSeq(ctx context.Context, agentExecutionID string) (int, error)

	SavePlanDecision(ctx context.Context, decision model.PlanDecision) error
	StartToolExecution(ctx context.Context, tool model.ToolExecution) error
	FinishToolExecution(ctx context.Context, tool model.ToolExecution) error

	// SaveContextSnapshot is best-effort: callers must not treat its error
	// as fatal to the loop (spec.md §4.10).
	SaveContextSnapshot(ctx context.Context, snap model.ContextSnapshot) error

	ListPlanDecisions(ctx context.Context, agentExecutionID string) ([]model.PlanDecision, error)
	ListToolExecutions(ctx context.Context, agentExecutionID string) ([]model.ToolExecution, error)
}

// InMemory is a Store backed by process memory, used for tests and the
// demo CLI.
type InMemory struct {
	mu         sync.Mutex
	executions map[string]*model.AgentExecution
	decisions  map[string]map[int]*model.PlanDecision // agentExecutionID -> seq -> decision
	tools      map[string][]*model.ToolExecution
	snapshots  map[string][]model.ContextSnapshot
}

// NewInMemory constructs an empty in-memory Store.
func NewInMemory() *InMemory {
	return &InMemory{
		executions: make(map[string]*model.AgentExecution),
		decisions:  make(map[string]map[int]*model.PlanDecision),
		tools:      make(map[string][]*model.ToolExecution),
		snapshots:  make(map[string][]model.ContextSnapshot),
	}
}

func (s *InMemory) CreateAgentExecution(ctx context.Context, exec model.AgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[exec.ID]; exists {
		return fmt.Errorf("store: agent_execution %s already exists", exec.ID)
	}
	cp := exec
	s.executions[exec.ID] = &cp
	s.decisions[exec.ID] = make(map[int]*model.PlanDecision)
	return nil
}

func (s *InMemory) GetAgentExecution(ctx context.Context, id string) (model.AgentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return model.AgentExecution{}, fmt.Errorf("store: agent_execution %s not found", id)
	}
	return *e, nil
}

func (s *InMemory) FinalizeAgentExecution(ctx context.Context, id string, status model.ExecutionStatus, totalDurationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("store: agent_execution %s not found", id)
	}
	if e.Status.Terminal() {
		return ErrTerminal
	}
	e.Status = status
	e.TotalDurationMs = totalDurationMs
	return nil
}

// NextSeq atomically bumps and returns AgentExecution.LatestSeq.
func (s *InMemory) NextSeq(ctx context.Context, agentExecutionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[agentExecutionID]
	if !ok {
		return 0, fmt.Errorf("store: agent_execution %s not found", agentExecutionID)
	}
	e.LatestSeq++
	return e.LatestSeq, nil
}

func (s *InMemory) terminalLocked(agentExecutionID string) bool {
	e, ok := s.executions[agentExecutionID]
	return ok && e.Status.Terminal()
}

func (s *InMemory) SavePlanDecision(ctx context.Context, decision model.PlanDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked(decision.AgentExecutionID) {
		return ErrTerminal
	}
	bySeq, ok := s.decisions[decision.AgentExecutionID]
	if !ok {
		bySeq = make(map[int]*model.PlanDecision)
		s.decisions[decision.AgentExecutionID] = bySeq
	}
	cp := decision
	bySeq[decision.Seq] = &cp
	return nil
}

func (s *InMemory) StartToolExecution(ctx context.Context, tool model.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked(tool.AgentExecutionID) {
		return ErrTerminal
	}
	cp := tool
	s.tools[tool.AgentExecutionID] = append(s.tools[tool.AgentExecutionID], &cp)
	return nil
}

func (s *InMemory) FinishToolExecution(ctx context.Context, tool model.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tools[tool.AgentExecutionID] {
		if t.ID == tool.ID {
			*t = tool
			return nil
		}
	}
	return fmt.Errorf("store: tool_execution %s not found", tool.ID)
}

func (s *InMemory) SaveContextSnapshot(ctx context.Context, snap model.ContextSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AgentExecutionID] = append(s.snapshots[snap.AgentExecutionID], snap)
	return nil
}

func (s *InMemory) ListPlanDecisions(ctx context.Context, agentExecutionID string) ([]model.PlanDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PlanDecision, 0, len(s.decisions[agentExecutionID]))
	for _, d := range s.decisions[agentExecutionID] {
		out = append(out, *d)
	}
	return out, nil
}

func (s *InMemory) ListToolExecutions(ctx context.Context, agentExecutionID string) ([]model.ToolExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ToolExecution, 0, len(s.tools[agentExecutionID]))
	for _, t := range s.tools[agentExecutionID] {
		out = append(out, *t)
	}
	return out, nil
}
