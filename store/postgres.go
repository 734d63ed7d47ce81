package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bagofwords/agentcore/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a pgx connection pool. Grounded on the
// pgxpool wiring idiom in nevindra-oasis's repository layer: parameterized
// SQL, pool.QueryRow/Exec, no ORM.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-configured pool. Callers own the pool's
// lifecycle (pgxpool.New / Close).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) CreateAgentExecution(ctx context.Context, exec model.AgentExecution) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO agent_executions
			(id, completion_id, report_id, organization_id, user_id, status, started_at, config, latest_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)`,
		exec.ID, exec.CompletionID, exec.ReportID, exec.OrganizationID, exec.UserID,
		exec.Status, exec.StartedAt, []byte(exec.Config))
	if err != nil {
		return fmt.Errorf("store: create agent_execution: %w", err)
	}
	return nil
}

func (p *Postgres) GetAgentExecution(ctx context.Context, id string) (model.AgentExecution, error) {
	var e model.AgentExecution
	var cfg []byte
	row := p.pool.QueryRow(ctx, `
		SELECT id, completion_id, report_id, organization_id, user_id, status,
		       started_at, completed_at, latest_seq, config, total_duration_ms
		FROM agent_executions WHERE id = $1`, id)
	err := row.Scan(&e.ID, &e.CompletionID, &e.ReportID, &e.OrganizationID, &e.UserID, &e.Status,
		&e.StartedAt, &e.CompletedAt, &e.LatestSeq, &cfg, &e.TotalDurationMs)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.AgentExecution{}, fmt.Errorf("store: agent_execution %s not found: %w", id, err)
		}
		return model.AgentExecution{}, fmt.Errorf("store: get agent_execution: %w", err)
	}
	e.Config = cfg
	return e, nil
}

func (p *Postgres) FinalizeAgentExecution(ctx context.Context, id string, status model.ExecutionStatus, totalDurationMs int64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE agent_executions
		SET status = $2, completed_at = now(), total_duration_ms = $3
		WHERE id = $1`, id, status, totalDurationMs)
	if err != nil {
		return fmt.Errorf("store: finalize agent_execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: agent_execution %s not found", id)
	}
	return nil
}

// NextSeq bumps agent_executions.latest_seq in one round trip and returns
// the new value, keeping allocation atomic under concurrent writers
// (spec.md §5's monotonic seq requirement).
func (p *Postgres) NextSeq(ctx context.Context, agentExecutionID string) (int, error) {
	var seq int
	row := p.pool.QueryRow(ctx, `
		UPDATE agent_executions
		SET latest_seq = latest_seq + 1
		WHERE id = $1
		RETURNING latest_seq`, agentExecutionID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: next_seq: %w", err)
	}
	return seq, nil
}

func (p *Postgres) SavePlanDecision(ctx context.Context, d model.PlanDecision) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO plan_decisions
			(id, agent_execution_id, seq, loop_index, plan_type, analysis_complete,
			 reasoning, assistant, final_answer, action_name, action_args, metrics)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (agent_execution_id, seq) DO UPDATE SET
			loop_index = EXCLUDED.loop_index,
			plan_type = EXCLUDED.plan_type,
			analysis_complete = EXCLUDED.analysis_complete,
			reasoning = EXCLUDED.reasoning,
			assistant = EXCLUDED.assistant,
			final_answer = EXCLUDED.final_answer,
			action_name = EXCLUDED.action_name,
			action_args = EXCLUDED.action_args,
			metrics = EXCLUDED.metrics`,
		d.ID, d.AgentExecutionID, d.Seq, d.LoopIndex, d.PlanType, d.AnalysisComplete,
		d.Reasoning, d.Assistant, d.FinalAnswer, d.ActionName, []byte(d.ActionArgs), []byte(d.Metrics))
	if err != nil {
		return fmt.Errorf("store: save plan_decision: %w", err)
	}
	return nil
}

func (p *Postgres) StartToolExecution(ctx context.Context, t model.ToolExecution) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tool_executions
			(id, agent_execution_id, plan_decision_id, tool_name, tool_action,
			 arguments, status, started_at, attempt_number, max_retries)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.AgentExecutionID, t.PlanDecisionID, t.ToolName, t.ToolAction,
		[]byte(t.Arguments), t.Status, t.StartedAt, t.AttemptNumber, t.MaxRetries)
	if err != nil {
		return fmt.Errorf("store: start tool_execution: %w", err)
	}
	return nil
}

func (p *Postgres) FinishToolExecution(ctx context.Context, t model.ToolExecution) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE tool_executions SET
			status = $2, success = $3, completed_at = $4, duration_ms = $5,
			result_summary = $6, result_json = $7, error_message = $8,
			created_widget_id = $9, created_step_id = $10
		WHERE id = $1`,
		t.ID, t.Status, t.Success, t.CompletedAt, t.DurationMs,
		t.ResultSummary, []byte(t.ResultJSON), t.ErrorMessage, t.CreatedWidgetID, t.CreatedStepID)
	if err != nil {
		return fmt.Errorf("store: finish tool_execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: tool_execution %s not found", t.ID)
	}
	return nil
}

// SaveContextSnapshot is append-only and best-effort: callers must not
// abort the loop on its error (spec.md §4.10).
func (p *Postgres) SaveContextSnapshot(ctx context.Context, snap model.ContextSnapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO context_snapshots
			(id, agent_execution_id, kind, context_view, prompt_text, prompt_tokens, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		snap.ID, snap.AgentExecutionID, snap.Kind, []byte(snap.ContextView),
		snap.PromptText, snap.PromptTokens, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save context_snapshot: %w", err)
	}
	return nil
}

func (p *Postgres) ListPlanDecisions(ctx context.Context, agentExecutionID string) ([]model.PlanDecision, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, agent_execution_id, seq, loop_index, plan_type, analysis_complete,
		       reasoning, assistant, final_answer, action_name, action_args, metrics
		FROM plan_decisions WHERE agent_execution_id = $1 ORDER BY seq`, agentExecutionID)
	if err != nil {
		return nil, fmt.Errorf("store: list plan_decisions: %w", err)
	}
	defer rows.Close()

	var out []model.PlanDecision
	for rows.Next() {
		var d model.PlanDecision
		var actionArgs, metrics []byte
		if err := rows.Scan(&d.ID, &d.AgentExecutionID, &d.Seq, &d.LoopIndex, &d.PlanType, &d.AnalysisComplete,
			&d.Reasoning, &d.Assistant, &d.FinalAnswer, &d.ActionName, &actionArgs, &metrics); err != nil {
			return nil, fmt.Errorf("store: scan plan_decision: %w", err)
		}
		d.ActionArgs = json.RawMessage(actionArgs)
		d.Metrics = json.RawMessage(metrics)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) ListToolExecutions(ctx context.Context, agentExecutionID string) ([]model.ToolExecution, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, agent_execution_id, plan_decision_id, tool_name, tool_action, arguments,
		       status, success, started_at, completed_at, duration_ms, result_summary,
		       result_json, error_message, created_widget_id, created_step_id,
		       attempt_number, max_retries
		FROM tool_executions WHERE agent_execution_id = $1 ORDER BY started_at`, agentExecutionID)
	if err != nil {
		return nil, fmt.Errorf("store: list tool_executions: %w", err)
	}
	defer rows.Close()

	var out []model.ToolExecution
	for rows.Next() {
		var t model.ToolExecution
		var args, result []byte
		if err := rows.Scan(&t.ID, &t.AgentExecutionID, &t.PlanDecisionID, &t.ToolName, &t.ToolAction, &args,
			&t.Status, &t.Success, &t.StartedAt, &t.CompletedAt, &t.DurationMs, &t.ResultSummary,
			&result, &t.ErrorMessage, &t.CreatedWidgetID, &t.CreatedStepID,
			&t.AttemptNumber, &t.MaxRetries); err != nil {
			return nil, fmt.Errorf("store: scan tool_execution: %w", err)
		}
		t.Arguments = json.RawMessage(args)
		t.ResultJSON = json.RawMessage(result)
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ Store = (*Postgres)(nil)
var _ Store = (*InMemory)(nil)
