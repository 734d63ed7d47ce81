package model

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle status of an AgentExecution.
type ExecutionStatus string

const (
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionSuccess    ExecutionStatus = "success"
	ExecutionError      ExecutionStatus = "error"
	ExecutionSigkill    ExecutionStatus = "sigkill"
)

// Terminal reports whether the status is a write-once terminal state. Once an
// AgentExecution reaches a terminal status, no further PlanDecision or
// ToolExecution rows may be appended (spec.md §3 invariants, §8 property 5).
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionInProgress && s != ""
}

// AgentExecution is one per user turn. It owns every downstream PlanDecision,
// ToolExecution, CompletionBlock, and ContextSnapshot row by id.
type AgentExecution struct {
	ID             string
	CompletionID   string
	ReportID       string
	OrganizationID string
	UserID         string
	Status         ExecutionStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	// LatestSeq is the high-water mark of the per-run monotonic sequence
	// counter. It is bumped exclusively by the persistence gateway's
	// NextSeq so that seq ordering equals emission order equals
	// persistence order (spec.md §5).
	LatestSeq       int
	Config          json.RawMessage
	TotalDurationMs int64
}

// PlanType distinguishes read-only planning from state-changing planning.
type PlanType string

const (
	PlanTypeResearch PlanType = "research"
	PlanTypeAction   PlanType = "action"
)

// PlanDecision is one per finalized planner output within a loop iteration.
// (agent_execution_id, seq) is unique; partial streaming updates reuse the
// same row because seq is pinned at decision start.
type PlanDecision struct {
	ID               string
	AgentExecutionID string
	Seq              int
	LoopIndex        int
	PlanType         PlanType
	AnalysisComplete bool
	Reasoning        *string
	Assistant        *string
	FinalAnswer      *string
	ActionName       *string
	ActionArgs       json.RawMessage
	Metrics          json.RawMessage
}

// ToolExecutionStatus is the lifecycle status of a ToolExecution.
type ToolExecutionStatus string

const (
	ToolExecutionInProgress ToolExecutionStatus = "in_progress"
	ToolExecutionSuccess    ToolExecutionStatus = "success"
	ToolExecutionError      ToolExecutionStatus = "error"
)

// ToolExecution is one per tool invocation.
type ToolExecution struct {
	ID                       string
	AgentExecutionID         string
	PlanDecisionID           *string
	ToolName                 string
	ToolAction               *string
	Arguments                json.RawMessage
	Status                   ToolExecutionStatus
	Success                  bool
	StartedAt                time.Time
	CompletedAt              *time.Time
	DurationMs               *int64
	ResultSummary            *string
	ResultJSON               json.RawMessage
	ErrorMessage             *string
	CreatedWidgetID          *string
	CreatedStepID            *string
	CreatedVisualizationIDs  []string
	AttemptNumber            int
	MaxRetries               int
}

// BlockSourceType distinguishes a decision-projected block from a
// tool-projected block.
type BlockSourceType string

const (
	BlockSourceDecision BlockSourceType = "decision"
	BlockSourceTool     BlockSourceType = "tool"
)

// BlockStatus is the render status of a CompletionBlock.
type BlockStatus string

const (
	BlockInProgress BlockStatus = "in_progress"
	BlockCompleted  BlockStatus = "completed"
	BlockError      BlockStatus = "error"
	BlockStopped    BlockStatus = "stopped"
)

// CompletionBlock is a render-ready transcript unit projected from a decision
// or a tool execution. At most one decision block exists per
// (agent_execution_id, loop_index); a tool execution updates (never
// duplicates) the decision block of its owning decision.
type CompletionBlock struct {
	ID               string
	CompletionID     string
	AgentExecutionID string
	SourceType       BlockSourceType
	PlanDecisionID   *string
	ToolExecutionID  *string
	// BlockIndex is derived as Seq*10, leaving gaps for future interpolation
	// (spec.md §4.10, a documented forward-compat convention).
	BlockIndex  int
	LoopIndex   int
	Title       string
	Status      BlockStatus
	Icon        string
	Content     *string
	Reasoning   *string
	StartedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// SnapshotKind identifies the point in the loop where a ContextSnapshot was
// captured.
type SnapshotKind string

const (
	SnapshotInitial SnapshotKind = "initial"
	SnapshotPreTool SnapshotKind = "pre_tool"
	SnapshotPostTool SnapshotKind = "post_tool"
	SnapshotFinal   SnapshotKind = "final"
)

// ContextSnapshot is a frozen view used by the planner, kept for audit and
// replay. Writes are append-only.
type ContextSnapshot struct {
	ID               string
	AgentExecutionID string
	Kind             SnapshotKind
	ContextView      json.RawMessage
	PromptText       *string
	PromptTokens     *int
	CreatedAt        time.Time
}

// ObservationError is the normalized error shape carried on an Observation.
type ObservationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Observation is a normalized record of a tool's outcome fed back into the
// next planner call. Summary is the only required field; everything else is
// optional and code branches on presence rather than on loose map keys
// (DESIGN NOTES: closed Observation schema re-architecture).
type Observation struct {
	ExecutionNumber  int               `json:"execution_number"`
	ToolName         string            `json:"tool_name"`
	ToolInput        json.RawMessage   `json:"tool_input,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	Summary          string            `json:"summary"`
	Error            *ObservationError `json:"error,omitempty"`
	AnalysisComplete *bool             `json:"analysis_complete,omitempty"`
	FinalAnswer      *string           `json:"final_answer,omitempty"`
	Artifacts        map[string]any    `json:"artifacts,omitempty"`
	StepID           *string           `json:"step_id,omitempty"`
	WidgetID         *string           `json:"widget_id,omitempty"`
	CreatedVisualizationIDs []string   `json:"created_visualization_ids,omitempty"`
}
