package matching

import (
	"reflect"
	"strings"
	"testing"

	"github.com/david/subsidy-matcher/internal/models"
)

// neutralProfile scores zero against neutralCandidate on every clause, so
// individual clauses can be exercised in isolation.
func neutralProfile() AnalyzedProfile {
	return AnalyzedProfile{
		Sector: "agriculture",
		Region: "Occitanie",
	}
}

func neutralCandidate() models.SubsidyCandidate {
	return models.SubsidyCandidate{
		ID:      "neutral",
		Title:   "Titre sans rapport",
		Regions: []string{"Bretagne"},
		Sector:  "industrie",
	}
}

func TestPreScore_Deterministic(t *testing.T) {
	rules := loadTestRules(t)
	profile := AnalyzedProfile{
		Sector:           "agriculture",
		Region:           "Occitanie",
		SearchTerms:      []string{"agriculture", "modernisation"},
		ThematicKeywords: []string{"agricole", "occitanie"},
	}
	candidate := models.SubsidyCandidate{
		ID:          "s1",
		Title:       "Aide agricole en Occitanie",
		Description: "Modernisation des exploitations",
		Regions:     []string{"Occitanie"},
		Sector:      "agriculture",
		AmountMax:   150000,
	}

	first := PreScore(&candidate, profile, rules)
	second := PreScore(&candidate, profile, rules)

	if first.Score != second.Score {
		t.Fatalf("expected identical scores, got %d and %d", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.Reasons, second.Reasons) {
		t.Fatalf("expected identical reasons, got %v and %v", first.Reasons, second.Reasons)
	}
}

func TestPreScore_HardFilter(t *testing.T) {
	rules := loadTestRules(t)
	profile := AnalyzedProfile{
		Sector:            "agriculture",
		Region:            "Occitanie",
		ExclusionKeywords: rules.ExclusionsFor("agriculture"),
	}

	// Perfect region and a big amount must not rescue a denylisted title.
	candidate := models.SubsidyCandidate{
		ID:        "arts-1",
		Title:     "Festival des musiques actuelles",
		Regions:   []string{"Occitanie"},
		AmountMax: 5000000,
	}

	res := PreScore(&candidate, profile, rules)
	if !res.HardFiltered {
		t.Fatal("expected candidate to be hard-filtered")
	}
	if res.Score != rules.Weights.HardFilterScore {
		t.Errorf("expected score %d, got %d", rules.Weights.HardFilterScore, res.Score)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("expected no scoring reasons on filtered candidate, got %v", res.Reasons)
	}
	if res.FilterReason == "" {
		t.Error("expected a filter reason")
	}
}

func TestPreScore_HardFilterFoldsAccents(t *testing.T) {
	rules := loadTestRules(t)
	profile := AnalyzedProfile{
		Sector:            "agriculture",
		ExclusionKeywords: []string{"cinéma"},
	}

	candidate := models.SubsidyCandidate{
		ID:    "c1",
		Title: "Soutien au CINEMA rural",
	}

	res := PreScore(&candidate, profile, rules)
	if !res.HardFiltered {
		t.Fatal("expected accent-folded exclusion match")
	}
}

func TestPreScore_HardFilterIgnoresDescription(t *testing.T) {
	rules := loadTestRules(t)
	profile := AnalyzedProfile{
		Sector:            "agriculture",
		ExclusionKeywords: []string{"festival"},
	}

	candidate := models.SubsidyCandidate{
		ID:          "c1",
		Title:       "Aide aux exploitations",
		Description: "Hors festival et événementiel",
		Regions:     []string{"Bretagne"},
		Sector:      "industrie",
	}

	if res := PreScore(&candidate, profile, rules); res.HardFiltered {
		t.Fatal("description mention must not trigger the hard filter")
	}
}

func TestPreScore_RegionClauses(t *testing.T) {
	rules := loadTestRules(t)
	w := rules.Weights

	tests := []struct {
		name     string
		regions  []string
		expected int
	}{
		{"exact match", []string{"Occitanie"}, w.RegionExact},
		{"exact match folds case", []string{"occitanie"}, w.RegionExact},
		{"national program", []string{"National"}, w.RegionNational},
		{"no restriction", nil, w.RegionUnrestricted},
		{"other region", []string{"Bretagne"}, 0},
		{"exact beats national in same list", []string{"National", "Occitanie"}, w.RegionExact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := neutralCandidate()
			candidate.Regions = tt.regions

			res := PreScore(&candidate, neutralProfile(), rules)
			if res.Score != tt.expected {
				t.Errorf("expected score %d, got %d (reasons: %v)", tt.expected, res.Score, res.Reasons)
			}
		})
	}
}

func TestPreScore_SectorClauses(t *testing.T) {
	rules := loadTestRules(t)
	w := rules.Weights

	tests := []struct {
		name      string
		sector    string
		universal bool
		expected  int
	}{
		{"exact match", "agriculture", false, w.SectorExact},
		{"candidate contains profile sector", "agriculture-biologique", false, w.SectorExact},
		{"profile contains candidate sector", "agri", false, w.SectorExact},
		{"universal program", "", true, w.SectorUniversal},
		{"none declared", "", false, w.SectorNone},
		{"other sector", "industrie", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := neutralCandidate()
			candidate.Sector = tt.sector
			candidate.UniversalSector = tt.universal

			res := PreScore(&candidate, neutralProfile(), rules)
			if res.Score != tt.expected {
				t.Errorf("expected score %d, got %d (reasons: %v)", tt.expected, res.Score, res.Reasons)
			}
		})
	}
}

func TestPreScore_TextTiers(t *testing.T) {
	rules := loadTestRules(t)
	w := rules.Weights
	terms := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"five hits reach the high tier", "alpha beta gamma delta epsilon", w.TextHigh},
		{"four hits stay in the medium tier", "alpha beta gamma delta", w.TextMedium},
		{"three hits reach the medium tier", "alpha beta gamma", w.TextMedium},
		{"two hits score linearly", "alpha beta", 2 * w.TextPerTerm},
		{"one hit scores linearly", "alpha", w.TextPerTerm},
		{"no hits score nothing", "rien ici", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := neutralProfile()
			profile.SearchTerms = terms

			candidate := neutralCandidate()
			candidate.Description = tt.text

			res := PreScore(&candidate, profile, rules)
			if res.Score != tt.expected {
				t.Errorf("expected score %d, got %d (reasons: %v)", tt.expected, res.Score, res.Reasons)
			}
		})
	}
}

func TestPreScore_TextMonotonicity(t *testing.T) {
	rules := loadTestRules(t)
	terms := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	prev := 0
	text := ""
	for _, term := range terms {
		text += term + " "
		profile := neutralProfile()
		profile.SearchTerms = terms

		candidate := neutralCandidate()
		candidate.Description = text

		res := PreScore(&candidate, profile, rules)
		if res.Score < prev {
			t.Fatalf("score dropped from %d to %d when matching %q", prev, res.Score, text)
		}
		prev = res.Score
	}
}

func TestPreScore_ThematicCap(t *testing.T) {
	rules := loadTestRules(t)
	w := rules.Weights
	keywords := []string{"un", "deux", "trois", "quatre", "cinq", "six", "sept"}

	profile := neutralProfile()
	profile.ThematicKeywords = keywords

	candidate := neutralCandidate()
	candidate.Description = strings.Join(keywords, " ")

	res := PreScore(&candidate, profile, rules)
	if res.Score != w.ThematicCap {
		t.Errorf("expected capped thematic bonus %d, got %d", w.ThematicCap, res.Score)
	}

	candidate.Description = "un deux"
	res = PreScore(&candidate, profile, rules)
	if res.Score != 2*w.ThematicPerHit {
		t.Errorf("expected %d for two hits, got %d", 2*w.ThematicPerHit, res.Score)
	}
}

func TestPreScore_AmountTiers(t *testing.T) {
	rules := loadTestRules(t)

	tests := []struct {
		amount   float64
		expected int
	}{
		{15000000, 15},
		{10000000, 15},
		{2000000, 10},
		{1000000, 10},
		{600000, 7},
		{500000, 7},
		{150000, 4},
		{100000, 4},
		{99999, 0},
		{0, 0},
	}

	for _, tt := range tests {
		candidate := neutralCandidate()
		candidate.AmountMax = tt.amount

		res := PreScore(&candidate, neutralProfile(), rules)
		if res.Score != tt.expected {
			t.Errorf("amount %.0f: expected bonus %d, got %d", tt.amount, tt.expected, res.Score)
		}
	}
}

func TestPreScore_ClampsToScoreMax(t *testing.T) {
	rules := loadTestRules(t)
	profile := AnalyzedProfile{
		Sector:           "agriculture",
		Region:           "Occitanie",
		SearchTerms:      []string{"alpha", "beta", "gamma", "delta", "epsilon"},
		ThematicKeywords: []string{"un", "deux", "trois", "quatre", "cinq", "six"},
	}
	candidate := models.SubsidyCandidate{
		ID:          "max",
		Title:       "Grande aide agricole en Occitanie",
		Description: "alpha beta gamma delta epsilon un deux trois quatre cinq six",
		Regions:     []string{"Occitanie"},
		Sector:      "agriculture",
		AmountMax:   20000000,
	}

	res := PreScore(&candidate, profile, rules)
	if res.Score != rules.Weights.ScoreMax {
		t.Errorf("expected clamp to %d, got %d", rules.Weights.ScoreMax, res.Score)
	}
}

func TestPreScore_EmptyCandidateStaysPositive(t *testing.T) {
	rules := loadTestRules(t)

	candidate := models.SubsidyCandidate{ID: "empty", Title: "Aide"}
	res := PreScore(&candidate, neutralProfile(), rules)

	expected := rules.Weights.RegionUnrestricted + rules.Weights.SectorNone
	if res.Score != expected {
		t.Errorf("expected %d for an unrestricted candidate, got %d", expected, res.Score)
	}
}

func TestPreScoreAll_AgricultureOccitanie(t *testing.T) {
	rules := loadTestRules(t)

	profile := Analyze(models.CompanyProfile{
		ID:             "company-1",
		Sector:         "agriculture",
		Region:         "Occitanie",
		EmployeeBucket: "10-19",
		ProjectTypes:   []string{"modernisation des équipements"},
	}, rules)

	candidates := []models.SubsidyCandidate{
		{
			ID:          "agri-national",
			Title:       "Plan national pour l'agriculture durable",
			Description: "Soutien aux exploitations agricoles pour la transition écologique.",
			Regions:     []string{"National"},
			Sector:      "agriculture",
			AmountMax:   2000000,
		},
		{
			ID:          "agri-occitanie",
			Title:       "Aide à la modernisation des exploitations agricoles en Occitanie",
			Description: "Subvention régionale pour les exploitations agricoles d'Occitanie investissant dans la modernisation des équipements.",
			Regions:     []string{"Occitanie"},
			Sector:      "agriculture",
			AmountMax:   200000,
		},
		{
			ID:      "arts-occitanie",
			Title:   "Aide à la création de spectacles vivants",
			Regions: []string{"Occitanie"},
			Sector:  "culture",
		},
		{
			ID:              "green-loan",
			Title:           "Prêt vert pour la transition écologique des PME",
			Description:     "Financement de projets d'investissement pour toutes les entreprises engagées dans la transition écologique.",
			UniversalSector: true,
			AmountMax:       1000000,
		},
	}

	ranked := PreScoreAll(candidates, profile, rules)

	order := make([]string, len(ranked))
	for i, r := range ranked {
		order[i] = r.Candidate.ID
	}
	expected := []string{"agri-occitanie", "agri-national", "green-loan", "arts-occitanie"}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected ranking %v, got %v", expected, order)
	}

	if ranked[0].Score != 81 {
		t.Errorf("expected regional agriculture aid to score 81, got %d", ranked[0].Score)
	}
	if ranked[1].Score != 72 {
		t.Errorf("expected national agriculture plan to score 72, got %d", ranked[1].Score)
	}
	if ranked[2].Score != 44 {
		t.Errorf("expected universal green loan to score 44, got %d", ranked[2].Score)
	}
	if !ranked[3].HardFiltered || ranked[3].Score != rules.Weights.HardFilterScore {
		t.Errorf("expected arts candidate hard-filtered at %d, got %+v",
			rules.Weights.HardFilterScore, ranked[3])
	}
}

func TestSortResults_TieBreakByID(t *testing.T) {
	a := models.SubsidyCandidate{ID: "a"}
	b := models.SubsidyCandidate{ID: "b"}
	c := models.SubsidyCandidate{ID: "c"}

	results := []PreScoreResult{
		{Candidate: &b, Score: 40},
		{Candidate: &c, Score: 70},
		{Candidate: &a, Score: 40},
	}

	SortResults(results)

	if results[0].Candidate.ID != "c" {
		t.Fatalf("expected highest score first, got %s", results[0].Candidate.ID)
	}
	if results[1].Candidate.ID != "a" || results[2].Candidate.ID != "b" {
		t.Fatalf("expected tie broken by id, got %s then %s",
			results[1].Candidate.ID, results[2].Candidate.ID)
	}
}
