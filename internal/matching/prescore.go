package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/david/subsidy-matcher/internal/models"
)

// PreScore applies the deterministic rule table to one candidate. No I/O, no
// randomness: identical inputs always produce identical scores and reasons.
//
// Clause order matters. The hard filter short-circuits everything else; the
// remaining clauses accumulate and the sum clamps into
// [Weights.ScoreMin, Weights.ScoreMax].
func PreScore(candidate *models.SubsidyCandidate, profile AnalyzedProfile, rules *Rules) PreScoreResult {
	w := rules.Weights

	// 1. Hard filter: exclusion keywords disqualify on the title alone.
	title := foldLower(candidate.Title)
	for _, keyword := range profile.ExclusionKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(title, foldLower(keyword)) {
			return PreScoreResult{
				Candidate:    candidate,
				Score:        w.HardFilterScore,
				HardFiltered: true,
				FilterReason: fmt.Sprintf("titre exclu par le mot-clé %q", keyword),
			}
		}
	}

	score := 0
	var reasons []string

	// 2. Region.
	switch {
	case matchesRegion(candidate.Regions, profile.Region):
		score += w.RegionExact
		reasons = append(reasons, "Région éligible: "+profile.Region)
	case isNationwide(candidate.Regions):
		score += w.RegionNational
		reasons = append(reasons, "Dispositif national")
	case len(candidate.Regions) == 0:
		score += w.RegionUnrestricted
		reasons = append(reasons, "Sans restriction géographique")
	}

	// 3. Sector. Absence of a restriction is a weak positive signal, not
	// neutral.
	switch {
	case sectorMatches(candidate.Sector, profile.Sector):
		score += w.SectorExact
		reasons = append(reasons, "Secteur correspondant: "+profile.Sector)
	case candidate.UniversalSector:
		score += w.SectorUniversal
		reasons = append(reasons, "Ouvert à tous les secteurs")
	case candidate.Sector == "":
		score += w.SectorNone
		reasons = append(reasons, "Sans restriction sectorielle")
	}

	haystack := foldLower(candidate.Title + " " + candidate.Description)

	// 4. Free-text search terms, tiered.
	matched := matchTerms(haystack, profile.SearchTerms)
	switch hits := len(matched); {
	case hits >= w.TextHighHits:
		score += w.TextHigh
	case hits >= w.TextMediumHits:
		score += w.TextMedium
	case hits > 0:
		score += hits * w.TextPerTerm
	}
	if len(matched) > 0 {
		preview := matched
		if len(preview) > 3 {
			preview = preview[:3]
		}
		reasons = append(reasons, "Correspondances: "+strings.Join(preview, ", "))
	}

	// 5. Thematic alignment, capped so one dimension cannot dominate.
	if hits := countTerms(haystack, profile.ThematicKeywords); hits > 0 {
		bonus := hits * w.ThematicPerHit
		if bonus > w.ThematicCap {
			bonus = w.ThematicCap
		}
		score += bonus
		reasons = append(reasons, fmt.Sprintf("Alignement thématique (%d indicateurs)", hits))
	}

	// 6. Amount boost.
	if bonus := rules.AmountBonus(candidate.AmountMax); bonus > 0 {
		score += bonus
		reasons = append(reasons, "Financement jusqu'à "+formatAmount(candidate.AmountMax))
	}

	// 7. Clamp.
	if score < w.ScoreMin {
		score = w.ScoreMin
	}
	if score > w.ScoreMax {
		score = w.ScoreMax
	}

	return PreScoreResult{
		Candidate: candidate,
		Score:     score,
		Reasons:   reasons,
	}
}

// PreScoreAll scores every candidate and returns the list ranked by
// descending score, candidate id breaking ties so equal scores order the
// same on every run.
func PreScoreAll(candidates []models.SubsidyCandidate, profile AnalyzedProfile, rules *Rules) []PreScoreResult {
	results := make([]PreScoreResult, len(candidates))
	for i := range candidates {
		results[i] = PreScore(&candidates[i], profile, rules)
	}
	SortResults(results)
	return results
}

// SortResults orders by descending score with ascending candidate id as the
// stable secondary key.
func SortResults(results []PreScoreResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Candidate.ID < results[j].Candidate.ID
	})
}

func matchesRegion(regions []string, profileRegion string) bool {
	key := normalizeKey(profileRegion)
	if key == "" {
		return false
	}
	for _, region := range regions {
		if normalizeKey(region) == key {
			return true
		}
	}
	return false
}

func isNationwide(regions []string) bool {
	national := normalizeKey(models.RegionNational)
	for _, region := range regions {
		if normalizeKey(region) == national {
			return true
		}
	}
	return false
}

// sectorMatches accepts a case-insensitive substring in either direction, so
// "industrie" pairs with "industrie-manufacturiere" and vice versa.
func sectorMatches(candidateSector, profileSector string) bool {
	if candidateSector == "" || profileSector == "" {
		return false
	}
	c, p := foldLower(candidateSector), foldLower(profileSector)
	return strings.Contains(c, p) || strings.Contains(p, c)
}

// matchTerms returns the terms found in the haystack, in term order.
func matchTerms(haystack string, terms []string) []string {
	var matched []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(haystack, foldLower(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}

func countTerms(haystack string, terms []string) int {
	count := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(haystack, foldLower(term)) {
			count++
		}
	}
	return count
}

func formatAmount(amount float64) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("%.1fM€", amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("%.0fK€", amount/1_000)
	default:
		return fmt.Sprintf("%.0f€", amount)
	}
}
