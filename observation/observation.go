// Package observation implements the observation accumulator (spec.md C5):
// a monotonically numbered history of tool outcomes fed back into every
// subsequent planner call. Grounded on the closed-schema Observation type
// (model.Observation) and the original_source observation_context_builder's
// "render only the last N, with summaries only" behavior.
package observation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/tools"
)

// Accumulator holds the growing observation history for one AgentExecution.
// It is owned by the loop's single writer; not safe for concurrent writes.
type Accumulator struct {
	history []model.Observation
	next    int
}

// New constructs an empty accumulator.
func New() *Accumulator { return &Accumulator{next: 1} }

// AddToolObservation appends an observation unless the tool's
// ObservationPolicy is "never" (spec.md §4.5), assigning a monotonically
// increasing ExecutionNumber. Returns the recorded observation (or the
// input unmodified, with ExecutionNumber left at zero, if suppressed).
func (a *Accumulator) AddToolObservation(policy tools.ObservationPolicy, toolName string, input json.RawMessage, obs model.Observation) (model.Observation, bool) {
	if policy == tools.ObservationNever {
		return obs, false
	}
	obs.ExecutionNumber = a.next
	obs.ToolName = toolName
	obs.ToolInput = input
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	a.next++
	a.history = append(a.history, obs)
	return obs, true
}

// History returns the full observation history in recorded order.
func (a *Accumulator) History() []model.Observation {
	out := make([]model.Observation, len(a.history))
	copy(out, a.history)
	return out
}

// Latest returns the most recently recorded observation, if any.
func (a *Accumulator) Latest() (model.Observation, bool) {
	if len(a.history) == 0 {
		return model.Observation{}, false
	}
	return a.history[len(a.history)-1], true
}

// ToDict serializes the full history for inclusion in PlannerInput's
// past_observations field (spec.md §4.5's to_dict()).
func (a *Accumulator) ToDict() ([]byte, error) {
	return json.Marshal(a.history)
}

// BuildContext renders the last max observations as planner-facing text,
// one line per observation summary, matching spec.md §4.5's
// build_context(format_for_prompt=true, max=5).
func (a *Accumulator) BuildContext(max int) string {
	if max <= 0 {
		max = 5
	}
	start := 0
	if len(a.history) > max {
		start = len(a.history) - max
	}
	window := a.history[start:]
	lines := make([]string, 0, len(window))
	for _, o := range window {
		lines = append(lines, formatLine(o))
	}
	return strings.Join(lines, "\n")
}

func formatLine(o model.Observation) string {
	if o.Error != nil {
		return fmt.Sprintf("[%d] %s: error(%s): %s", o.ExecutionNumber, o.ToolName, o.Error.Code, o.Error.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", o.ExecutionNumber, o.ToolName, o.Summary)
}
