// Package contexthub builds the typed ContextView the planner consumes
// (spec.md C4), caching a static section once per run and rebuilding a warm
// section every loop iteration. Grounded on the original_source context
// builders (schema_context_builder.py, instruction_context_builder.py,
// code_context_builder.py) per SPEC_FULL.md §9, reimplemented in the
// teacher's idiom rather than translated line-for-line.
package contexthub

import (
	"math"
	"sort"
	"strings"
)

// SchemaStats is the raw per-table signal set the ranking formula consumes.
type SchemaStats struct {
	Name           string
	Description    string
	ColumnCount    int
	AgeDays        float64
	WeightedUsage  float64
	SuccessRate    float64
	FeedbackSignal float64
	Centrality     float64
	Richness       float64
	EntityLike     bool
	Failures       float64
}

// RankedSchema is one scored schema entry, sorted descending by Score.
type RankedSchema struct {
	Name        string
	Description string
	ColumnCount int
	Score       float64
}

// RankSchemas implements spec.md §4.4's schema ranking formula exactly:
//
//	recency = exp(-age_days/14)
//	structural = centrality + richness + 0.5*entity_like
//	score = 0.35*(sqrt(weighted_usage*recency)) + 0.25*success_rate
//	      + 0.2*feedback_signal + 0.2*structural - 0.2*sqrt(failures)
//
// Returns the top K entries sorted by descending score, ties broken by name.
func RankSchemas(stats []SchemaStats, topK int) []RankedSchema {
	out := make([]RankedSchema, 0, len(stats))
	for _, s := range stats {
		out = append(out, RankedSchema{
			Name:        s.Name,
			Description: s.Description,
			ColumnCount: s.ColumnCount,
			Score:       schemaScore(s),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func schemaScore(s SchemaStats) float64 {
	recency := math.Exp(-s.AgeDays / 14.0)
	entityLike := 0.0
	if s.EntityLike {
		entityLike = 0.5
	}
	structural := s.Centrality + s.Richness + entityLike
	usageTerm := math.Sqrt(math.Max(0, s.WeightedUsage) * recency)
	failureTerm := math.Sqrt(math.Max(0, s.Failures))
	return 0.35*usageTerm + 0.25*s.SuccessRate + 0.2*s.FeedbackSignal + 0.2*structural - 0.2*failureTerm
}

// CodeSnippetStats is the raw signal set for one historical code step used
// by the two recall rankers (successful and failed).
type CodeSnippetStats struct {
	ID              string
	Code            string
	ColumnNames     map[string]bool
	SuccessRate     float64
	FeedbackSignal  float64
	RecencyScore    float64
	FailureEvidence float64 // only used by the failed ranker
	PositiveBalance float64 // only used by the failed ranker
	ErrorExcerpt    string
}

// RankedSnippet is one scored prior snippet.
type RankedSnippet struct {
	ID      string
	Code    string
	Success bool
	Score   float64
	// ErrorExcerpt is populated only for failed-ranker results, trimmed to
	// one line and at most 180 characters (spec.md §4.4).
	ErrorExcerpt string
}

// columnJaccard computes the Jaccard similarity between a candidate data
// model's column set and a historical snippet's column set.
func columnJaccard(candidate map[string]bool, historical map[string]bool) float64 {
	if len(candidate) == 0 && len(historical) == 0 {
		return 0
	}
	intersection, union := 0, 0
	seen := make(map[string]bool, len(candidate)+len(historical))
	for c := range candidate {
		seen[c] = true
	}
	for c := range historical {
		seen[c] = true
	}
	for c := range seen {
		inA, inB := candidate[c], historical[c]
		if inA && inB {
			intersection++
		}
		if inA || inB {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// RankSuccessfulSnippets implements spec.md §4.4's successful-snippet
// formula: 0.55*sim + 0.20*rate + 0.20*feedback + 0.05*recency.
func RankSuccessfulSnippets(candidateColumns map[string]bool, history []CodeSnippetStats, topK int) []RankedSnippet {
	out := make([]RankedSnippet, 0, len(history))
	for _, h := range history {
		sim := columnJaccard(candidateColumns, h.ColumnNames)
		score := 0.55*sim + 0.20*h.SuccessRate + 0.20*h.FeedbackSignal + 0.05*h.RecencyScore
		out = append(out, RankedSnippet{ID: h.ID, Code: h.Code, Success: true, Score: score})
	}
	sortByScoreDesc(out)
	return truncate(out, topK)
}

// RankFailedSnippets implements spec.md §4.4's failed-snippet formula:
// 0.60*sim + 0.20*recency + 0.20*failure_evidence - 0.05*positive_balance.
// ErrorExcerpt is trimmed to one line and at most 180 characters.
func RankFailedSnippets(candidateColumns map[string]bool, history []CodeSnippetStats, topK int) []RankedSnippet {
	out := make([]RankedSnippet, 0, len(history))
	for _, h := range history {
		sim := columnJaccard(candidateColumns, h.ColumnNames)
		score := 0.60*sim + 0.20*h.RecencyScore + 0.20*h.FailureEvidence - 0.05*h.PositiveBalance
		out = append(out, RankedSnippet{ID: h.ID, Code: h.Code, Success: false, Score: score, ErrorExcerpt: trimExcerpt(h.ErrorExcerpt)})
	}
	sortByScoreDesc(out)
	return truncate(out, topK)
}

func trimExcerpt(s string) string {
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	const max = 180
	if len(s) > max {
		s = s[:max]
	}
	return s
}

func sortByScoreDesc(out []RankedSnippet) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
}

func truncate(out []RankedSnippet, topK int) []RankedSnippet {
	if topK > 0 && len(out) > topK {
		return out[:topK]
	}
	return out
}
