package contexthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankSchemasOrdersByScoreDescending(t *testing.T) {
	stats := []SchemaStats{
		{Name: "stale", AgeDays: 400, WeightedUsage: 1, SuccessRate: 0.1, Failures: 5},
		{Name: "hot", AgeDays: 1, WeightedUsage: 50, SuccessRate: 0.95, Centrality: 0.8, Richness: 0.5, EntityLike: true},
	}
	ranked := RankSchemas(stats, 0)
	assert.Equal(t, "hot", ranked[0].Name)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankSchemasTopKTruncates(t *testing.T) {
	stats := []SchemaStats{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	ranked := RankSchemas(stats, 2)
	assert.Len(t, ranked, 2)
}

func TestTokenizeStripsStopwordsAndShortTokens(t *testing.T) {
	toks := tokenize("What is the revenue by month for a customer?")
	assert.NotContains(t, toks, "is")
	assert.NotContains(t, toks, "a")
	assert.Contains(t, toks, "revenue")
	assert.Contains(t, toks, "month")
}

func TestSelectInstructionsAlwaysLoadsUnconditionally(t *testing.T) {
	candidates := []InstructionCandidate{
		{ID: "i1", Text: "Always prefer USD currency formatting", LoadMode: LoadAlways},
		{ID: "i2", Text: "Something unrelated to the query entirely", LoadMode: LoadIntelligent},
	}
	matched := SelectInstructions("show revenue by month", candidates, 5)
	var gotAlways bool
	for _, m := range matched {
		if m.ID == "i1" {
			gotAlways = true
			assert.Equal(t, "always", m.LoadReason)
		}
	}
	assert.True(t, gotAlways)
}

func TestSelectInstructionsScoresIntelligentMatch(t *testing.T) {
	candidates := []InstructionCandidate{
		{ID: "i1", Text: "When asked about revenue by month, group by calendar month", LoadMode: LoadIntelligent},
		{ID: "i2", Text: "Completely unrelated text about weather forecasts", LoadMode: LoadIntelligent},
	}
	matched := SelectInstructions("show revenue by month", candidates, 1)
	assert.Len(t, matched, 1)
	assert.Equal(t, "i1", matched[0].ID)
}

func TestRankSuccessfulSnippetsPrefersColumnOverlap(t *testing.T) {
	candidate := map[string]bool{"revenue": true, "month": true}
	history := []CodeSnippetStats{
		{ID: "s1", ColumnNames: map[string]bool{"revenue": true, "month": true}, SuccessRate: 0.9},
		{ID: "s2", ColumnNames: map[string]bool{"unrelated": true}, SuccessRate: 0.9},
	}
	ranked := RankSuccessfulSnippets(candidate, history, 0)
	assert.Equal(t, "s1", ranked[0].ID)
}

func TestRankFailedSnippetsTrimsErrorExcerpt(t *testing.T) {
	longErr := ""
	for i := 0; i < 50; i++ {
		longErr += "01234567890123456789"
	}
	history := []CodeSnippetStats{{ID: "f1", ErrorExcerpt: longErr + "\nsecond line"}}
	ranked := RankFailedSnippets(map[string]bool{}, history, 0)
	assert.LessOrEqual(t, len(ranked[0].ErrorExcerpt), 180)
	assert.NotContains(t, ranked[0].ErrorExcerpt, "\n")
}

func TestHubBuildContextComposesStaticAndWarm(t *testing.T) {
	h := NewHub()
	h.PrimeStatic(StaticSpec{
		Query:        "show revenue by month",
		SystemPrompt: "you are an analytics assistant",
		SchemaStats:  []SchemaStats{{Name: "orders"}},
		SchemaTopK:   5,
	})
	view := h.BuildContext(WarmSpec{LoopIndex: 1})
	assert.True(t, h.Primed())
	assert.Equal(t, "you are an analytics assistant", view.SystemPrompt)
	assert.Equal(t, 1, view.LoopIndex)
}
