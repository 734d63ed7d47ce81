package observation

import (
	"testing"

	"github.com/bagofwords/agentcore/model"
	"github.com/bagofwords/agentcore/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToolObservationAssignsMonotonicExecutionNumber(t *testing.T) {
	a := New()
	o1, recorded := a.AddToolObservation(tools.ObservationOnSuccess, "create_widget", nil, model.Observation{Summary: "created"})
	require.True(t, recorded)
	o2, _ := a.AddToolObservation(tools.ObservationOnSuccess, "answer_question", nil, model.Observation{Summary: "answered"})
	assert.Equal(t, 1, o1.ExecutionNumber)
	assert.Equal(t, 2, o2.ExecutionNumber)
	assert.Len(t, a.History(), 2)
}

func TestObservationPolicyNeverSuppressesRecording(t *testing.T) {
	a := New()
	_, recorded := a.AddToolObservation(tools.ObservationNever, "internal_tool", nil, model.Observation{Summary: "noop"})
	assert.False(t, recorded)
	assert.Empty(t, a.History())
}

func TestBuildContextRendersOnlyLastMax(t *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		a.AddToolObservation(tools.ObservationOnSuccess, "t", nil, model.Observation{Summary: "s"})
	}
	rendered := a.BuildContext(5)
	assert.Equal(t, 5, countLines(rendered))
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
