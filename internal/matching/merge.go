package matching

import (
	"math"
	"sort"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/models"
)

// Merge builds the final shortlist from the ranked pre-scores and, when the
// refinement call succeeded, the AI evaluations. Pass nil evals on the
// failure path and the pre-scored ranking stands as-is.
//
// A candidate the model skipped keeps its pre-score and reasons, so the
// caller never loses an entry because the model dropped it. Hard-filtered
// candidates never appear. The output is re-sorted because refined scores
// may reorder the pre-scored ranking, then truncated to limit.
func Merge(ranked []PreScoreResult, evals []ai.Evaluation, limit, maxScore int) []models.MatchResult {
	byID := make(map[string]ai.Evaluation, len(evals))
	for _, eval := range evals {
		byID[eval.ID] = eval
	}

	results := make([]models.MatchResult, 0, len(ranked))
	for i := range ranked {
		res := &ranked[i]
		if res.HardFiltered {
			continue
		}

		m := models.MatchResult{
			SubsidyID: res.Candidate.ID,
			Title:     res.Candidate.Title,
			Score:     res.Score,
			Reasons:   res.Reasons,
		}
		if eval, ok := byID[res.Candidate.ID]; ok {
			m.Score = eval.Score
			m.AIRefined = true
			if len(eval.Reasons) > 0 {
				m.Reasons = eval.Reasons
			}
			if eval.SuccessProbability > 0 {
				m.SuccessProbability = eval.SuccessProbability
			} else {
				m.SuccessProbability = heuristicProbability(eval.Score, maxScore)
			}
		} else {
			m.SuccessProbability = heuristicProbability(res.Score, maxScore)
		}
		results = append(results, m)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SubsidyID < results[j].SubsidyID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// heuristicProbability maps a rule-based score onto a conservative success
// estimate for candidates without an AI-provided probability.
func heuristicProbability(score, maxScore int) float64 {
	if maxScore <= 0 {
		maxScore = 100
	}
	p := float64(score) / float64(maxScore)
	if p < 0.05 {
		p = 0.05
	}
	if p > 0.9 {
		p = 0.9
	}
	return math.Round(p*100) / 100
}
