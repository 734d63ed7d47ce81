package tools

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerSample(t *testing.T, r *Registry) {
	t.Helper()
	require.NoError(t, r.Register(Metadata{Name: "answer_question", Category: CategoryResearch, MaxRetries: 1}))
	require.NoError(t, r.Register(Metadata{Name: "create_widget", Category: CategoryAction, MaxRetries: 2}))
	require.NoError(t, r.Register(Metadata{Name: "clarify", Category: CategoryBoth, MaxRetries: 0}))
}

func TestGetCatalogForPlanTypeDedupesByCategory(t *testing.T) {
	r := NewRegistry()
	registerSample(t, r)

	research := r.GetCatalogForPlanType("research")
	names := namesOf(research)
	assert.ElementsMatch(t, []string{"answer_question", "clarify"}, names)

	action := r.GetCatalogForPlanType("action")
	assert.ElementsMatch(t, []string{"create_widget", "clarify"}, namesOf(action))
}

func TestValidateToolForPlanType(t *testing.T) {
	r := NewRegistry()
	registerSample(t, r)

	assert.True(t, r.ValidateToolForPlanType("create_widget", "action"))
	assert.False(t, r.ValidateToolForPlanType("create_widget", "research"))
	assert.False(t, r.ValidateToolForPlanType("unknown_tool", "research"))
}

func TestRegisterRejectsInvalidCategory(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Metadata{Name: "bad", Category: "nonsense"})
	assert.Error(t, err)
}

func namesOf(ms []Metadata) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m.Name)
	}
	sort.Strings(out)
	return out
}
