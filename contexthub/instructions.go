package contexthub

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// LoadMode is the instruction loading strategy named in spec.md's GLOSSARY.
type LoadMode string

const (
	LoadAlways      LoadMode = "always"
	LoadIntelligent LoadMode = "intelligent"
)

// InstructionCandidate is one organization instruction eligible for
// intelligent-search matching.
type InstructionCandidate struct {
	ID       string
	Text     string
	LoadMode LoadMode
}

// MatchedInstruction is one instruction selected for the static context,
// carrying its LoadReason per spec.md §4.4 ("always" or
// "search_match:<score>").
type MatchedInstruction struct {
	ID         string
	Text       string
	Score      float64
	LoadReason string
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "and": true, "or": true,
	"by": true, "with": true, "at": true, "it": true, "this": true, "that": true,
}

// tokenize strips stopwords and tokens shorter than length 2, matching
// spec.md §4.4's instruction-loading tokenizer exactly.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection, union := 0, 0
	seen := make(map[string]bool, len(a)+len(b))
	for t := range a {
		seen[t] = true
	}
	for t := range b {
		seen[t] = true
	}
	for t := range seen {
		inA, inB := a[t], b[t]
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

// substringCoverage is the fraction of instruction tokens that appear as a
// substring of the query text (case-insensitive).
func substringCoverage(queryText string, instTokens []string) float64 {
	if len(instTokens) == 0 {
		return 0
	}
	lowerQuery := strings.ToLower(queryText)
	covered := 0
	for _, t := range instTokens {
		if strings.Contains(lowerQuery, t) {
			covered++
		}
	}
	return float64(covered) / float64(len(instTokens))
}

// SelectInstructions implements spec.md §4.4's instruction loading rule:
// "always" instructions load unconditionally; "intelligent" instructions are
// scored via max(Jaccard(tokens, inst_tokens), 0.8*substring_coverage) and
// the topK highest scorers are kept.
func SelectInstructions(query string, candidates []InstructionCandidate, topK int) []MatchedInstruction {
	queryTokens := tokenSet(tokenize(query))

	var always []MatchedInstruction
	var scored []MatchedInstruction
	for _, c := range candidates {
		if c.LoadMode == LoadAlways {
			always = append(always, MatchedInstruction{ID: c.ID, Text: c.Text, LoadReason: "always"})
			continue
		}
		instTokens := tokenize(c.Text)
		score := math.Max(jaccard(queryTokens, tokenSet(instTokens)), 0.8*substringCoverage(query, instTokens))
		scored = append(scored, MatchedInstruction{ID: c.ID, Text: c.Text, Score: score, LoadReason: fmt.Sprintf("search_match:%.4f", score)})
	}
	sortMatchedDesc(scored)
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return append(always, scored...)
}

func sortMatchedDesc(m []MatchedInstruction) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].ID < m[j].ID
	})
}
