package matching

import (
	"testing"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/models"
)

func mergeFixture() []PreScoreResult {
	candidates := []models.SubsidyCandidate{
		{ID: "s1", Title: "Aide une"},
		{ID: "s2", Title: "Aide deux"},
		{ID: "s3", Title: "Aide trois"},
	}
	return []PreScoreResult{
		{Candidate: &candidates[0], Score: 80, Reasons: []string{"région"}},
		{Candidate: &candidates[1], Score: 60, Reasons: []string{"secteur"}},
		{Candidate: &candidates[2], Score: 40, Reasons: []string{"montant"}},
	}
}

func TestMerge_RefinedValuesWin(t *testing.T) {
	evals := []ai.Evaluation{
		{ID: "s1", Score: 92, SuccessProbability: 0.75, Reasons: []string{"très bon profil"}},
	}

	merged := Merge(mergeFixture(), evals, 10, 100)
	if len(merged) != 3 {
		t.Fatalf("expected 3 results, got %d", len(merged))
	}

	top := merged[0]
	if top.SubsidyID != "s1" || top.Score != 92 {
		t.Fatalf("expected refined s1 with score 92 first, got %+v", top)
	}
	if !top.AIRefined {
		t.Error("expected ai_refined=true on the evaluated candidate")
	}
	if top.SuccessProbability != 0.75 {
		t.Errorf("expected probability 0.75, got %f", top.SuccessProbability)
	}
	if len(top.Reasons) != 1 || top.Reasons[0] != "très bon profil" {
		t.Errorf("expected refined reasons, got %v", top.Reasons)
	}
}

func TestMerge_SkippedCandidateKeepsPreScore(t *testing.T) {
	evals := []ai.Evaluation{
		{ID: "s1", Score: 92, SuccessProbability: 0.75},
	}

	merged := Merge(mergeFixture(), evals, 10, 100)

	second := merged[1]
	if second.SubsidyID != "s2" || second.Score != 60 {
		t.Fatalf("expected s2 to keep pre-score 60, got %+v", second)
	}
	if second.AIRefined {
		t.Error("expected ai_refined=false on a skipped candidate")
	}
	if second.SuccessProbability != 0.6 {
		t.Errorf("expected heuristic probability 0.6, got %f", second.SuccessProbability)
	}
	if len(second.Reasons) != 1 || second.Reasons[0] != "secteur" {
		t.Errorf("expected pre-score reasons kept, got %v", second.Reasons)
	}
}

func TestMerge_NilEvaluationsFallsBack(t *testing.T) {
	merged := Merge(mergeFixture(), nil, 10, 100)
	if len(merged) != 3 {
		t.Fatalf("expected 3 results, got %d", len(merged))
	}
	for _, m := range merged {
		if m.AIRefined {
			t.Errorf("expected no refined entries on the fallback path, got %+v", m)
		}
	}
	if merged[0].SubsidyID != "s1" || merged[1].SubsidyID != "s2" || merged[2].SubsidyID != "s3" {
		t.Errorf("expected pre-score order preserved, got %v", merged)
	}
}

func TestMerge_EvalWithoutProbabilityGetsHeuristic(t *testing.T) {
	evals := []ai.Evaluation{
		{ID: "s2", Score: 90},
	}

	merged := Merge(mergeFixture(), evals, 10, 100)
	if merged[0].SubsidyID != "s2" {
		t.Fatalf("expected refined s2 first, got %s", merged[0].SubsidyID)
	}
	if merged[0].SuccessProbability != 0.9 {
		t.Errorf("expected heuristic probability from the refined score, got %f",
			merged[0].SuccessProbability)
	}
}

func TestMerge_RefinementReordersRanking(t *testing.T) {
	evals := []ai.Evaluation{
		{ID: "s3", Score: 95, SuccessProbability: 0.8},
		{ID: "s1", Score: 50, SuccessProbability: 0.4},
	}

	merged := Merge(mergeFixture(), evals, 10, 100)
	if merged[0].SubsidyID != "s3" {
		t.Fatalf("expected s3 promoted to first, got %s", merged[0].SubsidyID)
	}
	if merged[1].SubsidyID != "s2" || merged[2].SubsidyID != "s1" {
		t.Errorf("unexpected order: %s, %s", merged[1].SubsidyID, merged[2].SubsidyID)
	}
}

func TestMerge_TruncatesToLimit(t *testing.T) {
	merged := Merge(mergeFixture(), nil, 2, 100)
	if len(merged) != 2 {
		t.Fatalf("expected limit 2 respected, got %d", len(merged))
	}
	if merged[0].SubsidyID != "s1" || merged[1].SubsidyID != "s2" {
		t.Errorf("expected the two best kept, got %s and %s",
			merged[0].SubsidyID, merged[1].SubsidyID)
	}
}

func TestMerge_HardFilteredNeverAppear(t *testing.T) {
	results := mergeFixture()
	results[1].HardFiltered = true
	results[1].Score = -50
	results[1].Reasons = nil

	merged := Merge(results, nil, 10, 100)
	if len(merged) != 2 {
		t.Fatalf("expected filtered candidate dropped, got %d results", len(merged))
	}
	for _, m := range merged {
		if m.SubsidyID == "s2" {
			t.Fatal("hard-filtered candidate leaked into the shortlist")
		}
	}
}

func TestMerge_EqualScoresOrderByID(t *testing.T) {
	results := mergeFixture()
	for i := range results {
		results[i].Score = 50
	}

	merged := Merge(results, nil, 10, 100)
	if merged[0].SubsidyID != "s1" || merged[1].SubsidyID != "s2" || merged[2].SubsidyID != "s3" {
		t.Errorf("expected id tie-break, got %s, %s, %s",
			merged[0].SubsidyID, merged[1].SubsidyID, merged[2].SubsidyID)
	}
}

func TestHeuristicProbability(t *testing.T) {
	tests := []struct {
		score    int
		maxScore int
		expected float64
	}{
		{50, 100, 0.5},
		{81, 100, 0.81},
		{0, 100, 0.05},
		{2, 100, 0.05},
		{100, 100, 0.9},
		{95, 100, 0.9},
		{40, 0, 0.4},
	}
	for _, tt := range tests {
		if got := heuristicProbability(tt.score, tt.maxScore); got != tt.expected {
			t.Errorf("heuristicProbability(%d, %d): expected %f, got %f",
				tt.score, tt.maxScore, got, tt.expected)
		}
	}
}
