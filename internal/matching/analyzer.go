package matching

import (
	"strconv"
	"unicode/utf8"

	"github.com/david/subsidy-matcher/internal/models"
)

const (
	maxSearchTerms = 15
	defaultSector  = "services"
)

// Analyze converts a raw company profile into the normalized form the
// scoring rules understand. Pure function: missing fields degrade to
// permissive defaults, never to errors.
func Analyze(profile models.CompanyProfile, rules *Rules) AnalyzedProfile {
	sector := resolveSector(profile, rules)

	return AnalyzedProfile{
		Sector:            sector,
		SizeClass:         sizeClassForBucket(profile.EmployeeBucket),
		Region:            normalizeSpace(profile.Region),
		SearchTerms:       buildSearchTerms(profile, sector, rules),
		ThematicKeywords:  buildThematicKeywords(sector, profile.Region, rules),
		ExclusionKeywords: rules.ExclusionsFor(sector),
	}
}

// resolveSector prefers the explicit sector field; otherwise the first two
// characters of the NAF-style activity code are looked up in the sector
// table. Unknown codes fall back to the generic services sector.
func resolveSector(profile models.CompanyProfile, rules *Rules) string {
	if s := normalizeKey(profile.Sector); s != "" {
		return s
	}
	if sector, ok := rules.SectorForNAF(profile.ActivityCode); ok {
		return sector
	}
	return defaultSector
}

// sizeClassForBucket derives the size class from bucket strings like "10-19"
// or "250+". Buckets without a parseable number default to micro, the most
// common French company size.
func sizeClassForBucket(bucket string) SizeClass {
	count := leadingInt(bucket)
	switch {
	case count < 10:
		return SizeMicro
	case count < 250:
		return SizeSmall
	case count < 5000:
		return SizeMedium
	default:
		return SizeLarge
	}
}

// leadingInt returns the first integer found in s, or 0.
func leadingInt(s string) int {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return 0
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[start:end])
	return n
}

// buildSearchTerms collects the deduplicated term list free-text scoring
// counts. Precise signals (sector, project types, website tags) come first
// so the cap trims activity-label noise rather than them.
func buildSearchTerms(profile models.CompanyProfile, sector string, rules *Rules) []string {
	terms := make([]string, 0, maxSearchTerms)
	terms = appendUnique(terms, sector)

	for _, projectType := range profile.ProjectTypes {
		for _, word := range tokenizeWords(projectType) {
			if usableTerm(word, rules) {
				terms = appendUnique(terms, word)
			}
		}
	}

	if profile.WebsiteIntel != nil {
		for _, tag := range profile.WebsiteIntel.ActivityTags {
			for _, word := range tokenizeWords(tag) {
				if usableTerm(word, rules) {
					terms = appendUnique(terms, word)
				}
			}
		}
	}

	for _, word := range tokenizeWords(profile.ActivityLabel) {
		if usableTerm(word, rules) {
			terms = appendUnique(terms, word)
		}
	}

	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	return terms
}

// usableTerm keeps words longer than 3 characters that are not stopwords.
func usableTerm(word string, rules *Rules) bool {
	return utf8.RuneCountInString(word) > 3 && !rules.IsStopword(word)
}

func buildThematicKeywords(sector, region string, rules *Rules) []string {
	keywords := mergeUniqueFold(nil, rules.SectorKeywords(sector))
	keywords = mergeUniqueFold(keywords, rules.RegionKeywords(region))
	keywords = mergeUniqueFold(keywords, rules.UniversalKeywords)
	return keywords
}
