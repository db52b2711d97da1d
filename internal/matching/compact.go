package matching

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/david/subsidy-matcher/internal/ai"
)

const (
	compactTitleLen = 60
	compactReasons  = 2

	defaultMaxBatch             = 8
	defaultPromptOverheadTokens = 400
)

// TokenBudget describes the provider tier limits the compactor packs under.
type TokenBudget struct {
	MaxCandidates        int // upper bound on K
	InputTokenCeiling    int // tier's per-call input budget; 0 disables the estimate
	PromptOverheadTokens int // fixed system/user scaffolding estimate
}

// CompactTopK builds the refinement batch from the ranked results: the
// highest non-filtered candidates, compacted, taken while the running token
// estimate stays under the tier ceiling and never more than MaxCandidates.
// K is therefore computed per call rather than fixed. The top candidate is
// always included so a tight ceiling degrades the batch instead of emptying
// it.
func CompactTopK(results []PreScoreResult, budget TokenBudget) []ai.Candidate {
	maxK := budget.MaxCandidates
	if maxK <= 0 {
		maxK = defaultMaxBatch
	}
	overhead := budget.PromptOverheadTokens
	if overhead <= 0 {
		overhead = defaultPromptOverheadTokens
	}

	batch := make([]ai.Candidate, 0, maxK)
	used := overhead
	for i := range results {
		if results[i].HardFiltered {
			continue
		}
		if len(batch) == maxK {
			break
		}

		candidate := compactCandidate(len(batch), &results[i])
		if budget.InputTokenCeiling > 0 {
			cost := estimateTokens(encodeForEstimate(candidate))
			if used+cost > budget.InputTokenCeiling && len(batch) > 0 {
				break
			}
			used += cost
		}
		batch = append(batch, candidate)
	}
	return batch
}

func compactCandidate(index int, res *PreScoreResult) ai.Candidate {
	c := ai.Candidate{
		Index:    index,
		ID:       res.Candidate.ID,
		Title:    truncateText(normalizeSpace(res.Candidate.Title), compactTitleLen),
		Sector:   res.Candidate.Sector,
		Region:   firstRegion(res.Candidate.Regions),
		PreScore: res.Score,
	}
	if len(res.Reasons) > 0 {
		n := len(res.Reasons)
		if n > compactReasons {
			n = compactReasons
		}
		c.Reasons = res.Reasons[:n]
	}
	return c
}

func firstRegion(regions []string) string {
	if len(regions) == 0 {
		return ""
	}
	return regions[0]
}

// estimateTokens approximates the provider tokenizer: one token per four
// characters, at least one for non-empty text.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := (utf8.RuneCountInString(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func encodeForEstimate(c ai.Candidate) string {
	data, err := json.Marshal(c)
	if err != nil {
		return c.Title
	}
	return string(data)
}
