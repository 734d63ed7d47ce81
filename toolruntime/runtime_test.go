package toolruntime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bagofwords/agentcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTool struct {
	events []ToolEvent
	delay  time.Duration
}

func (s *scriptedTool) RunStream(ctx context.Context, input json.RawMessage, rc *RuntimeContext) <-chan ToolEvent {
	ch := make(chan ToolEvent)
	go func() {
		defer close(ch)
		for _, e := range s.events {
			if s.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.delay):
				}
			}
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func newRC() *RuntimeContext {
	return &RuntimeContext{Sigkill: make(chan struct{})}
}

func TestRunnerSuccessOnFirstAttempt(t *testing.T) {
	tool := &scriptedTool{events: []ToolEvent{
		{Kind: EventStart},
		{Kind: EventEnd, Output: json.RawMessage(`{"ok":true}`), Observation: &model.Observation{Summary: "done"}},
	}}
	r := NewRunner(DefaultTimeoutPolicy(), RetryPolicy{MaxAttempts: 1})
	var seen []EventKind
	res := r.Run(context.Background(), tool, nil, newRC(), func(e ToolEvent) { seen = append(seen, e.Kind) })
	require.Nil(t, res.Observation.Error)
	assert.Equal(t, "done", res.Observation.Summary)
	assert.Equal(t, 1, res.Attempts)
}

func TestRunnerMissingEndIsExecutionFailure(t *testing.T) {
	tool := &scriptedTool{events: []ToolEvent{{Kind: EventStart}}}
	r := NewRunner(DefaultTimeoutPolicy(), RetryPolicy{MaxAttempts: 1})
	res := r.Run(context.Background(), tool, nil, newRC(), func(e ToolEvent) {})
	require.NotNil(t, res.Observation.Error)
	assert.Equal(t, "execution_failure", res.Observation.Error.Code)
}

func TestRunnerRetriesIdempotentFailureThenSucceeds(t *testing.T) {
	calls := 0
	r := NewRunner(DefaultTimeoutPolicy(), RetryPolicy{MaxAttempts: 3, BackoffMs: 1, Idempotent: true})
	tool := toolFunc(func(ctx context.Context, input json.RawMessage, rc *RuntimeContext) <-chan ToolEvent {
		calls++
		ch := make(chan ToolEvent, 2)
		if calls < 2 {
			ch <- ToolEvent{Kind: EventError, Err: assertErr{}}
		} else {
			ch <- ToolEvent{Kind: EventEnd, Observation: &model.Observation{Summary: "ok"}}
		}
		close(ch)
		return ch
	})
	res := r.Run(context.Background(), tool, nil, newRC(), func(e ToolEvent) {})
	assert.Equal(t, "ok", res.Observation.Summary)
	assert.Equal(t, 2, calls)
}

type toolFunc func(ctx context.Context, input json.RawMessage, rc *RuntimeContext) <-chan ToolEvent

func (f toolFunc) RunStream(ctx context.Context, input json.RawMessage, rc *RuntimeContext) <-chan ToolEvent {
	return f(ctx, input, rc)
}

type assertErr struct{}

func (assertErr) Error() string { return "transient" }

func TestRunnerSigkillCancelsRun(t *testing.T) {
	rc := newRC()
	sigkill := make(chan struct{})
	rc.Sigkill = sigkill
	tool := &scriptedTool{events: []ToolEvent{{Kind: EventEnd}}, delay: 50 * time.Millisecond}
	close(sigkill)
	r := NewRunner(DefaultTimeoutPolicy(), RetryPolicy{MaxAttempts: 1})
	res := r.Run(context.Background(), tool, nil, rc, func(e ToolEvent) {})
	require.NotNil(t, res.Observation.Error)
	assert.Equal(t, "cancelled", res.Observation.Error.Code)
}
