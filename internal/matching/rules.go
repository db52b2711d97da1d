package matching

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/rules.yaml
var rulesYAML embed.FS

// Weights is the canonical scoring table. The additive clauses accumulate
// into [ScoreMin, ScoreMax]; HardFilterScore sits below ScoreMin on purpose
// so a filtered candidate can never outrank a scored one.
type Weights struct {
	HardFilterScore    int `yaml:"hard_filter_score"`
	RegionExact        int `yaml:"region_exact"`
	RegionNational     int `yaml:"region_national"`
	RegionUnrestricted int `yaml:"region_unrestricted"`
	SectorExact        int `yaml:"sector_exact"`
	SectorUniversal    int `yaml:"sector_universal"`
	SectorNone         int `yaml:"sector_none"`
	TextHigh           int `yaml:"text_high"`    // >= TextHighHits matched terms
	TextMedium         int `yaml:"text_medium"`  // >= TextMediumHits matched terms
	TextPerTerm        int `yaml:"text_per_term"`
	TextHighHits       int `yaml:"text_high_hits"`
	TextMediumHits     int `yaml:"text_medium_hits"`
	ThematicPerHit     int `yaml:"thematic_per_hit"`
	ThematicCap        int `yaml:"thematic_cap"`
	ScoreMin           int `yaml:"score_min"`
	ScoreMax           int `yaml:"score_max"`
}

// AmountTier awards Bonus when a candidate's maximum funding amount reaches
// Threshold. Tiers are evaluated highest threshold first.
type AmountTier struct {
	Threshold float64 `yaml:"threshold"`
	Bonus     int     `yaml:"bonus"`
}

// Rules bundles every lookup table the analyzer and the pre-scoring engine
// read. Loaded once at process start and treated as immutable afterwards.
type Rules struct {
	Weights           Weights             `yaml:"weights"`
	AmountTiers       []AmountTier        `yaml:"amount_tiers"`
	Stopwords         []string            `yaml:"stopwords"`
	NAFSectors        map[string]string   `yaml:"naf_sectors"`
	SectorIndicators  map[string][]string `yaml:"sector_indicators"`
	RegionIndicators  map[string][]string `yaml:"region_indicators"`
	UniversalKeywords []string            `yaml:"universal_keywords"`
	SectorExclusions  map[string][]string `yaml:"sector_exclusions"`

	stopwordSet map[string]struct{}
}

// LoadRules reads the embedded rules.yaml. A non-empty path (MATCH_RULES_PATH
// in deployments) overrides the embedded copy when the file exists.
func LoadRules(path string) (*Rules, error) {
	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
	}
	if path == "" || err != nil {
		data, err = rulesYAML.ReadFile("config/rules.yaml")
		if err != nil {
			return nil, err
		}
	}

	// Expand environment variables within the YAML content (e.g. ${EXTRA_STOPWORDS})
	expanded := os.ExpandEnv(string(data))

	var r Rules
	if err := yaml.Unmarshal([]byte(expanded), &r); err != nil {
		return nil, err
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return &r, nil
}

// finish validates the table and builds the derived lookups.
func (r *Rules) finish() error {
	w := r.Weights
	if w.ScoreMax <= w.ScoreMin {
		return fmt.Errorf("rules: score_max %d must exceed score_min %d", w.ScoreMax, w.ScoreMin)
	}
	if w.HardFilterScore >= w.ScoreMin {
		return fmt.Errorf("rules: hard_filter_score %d must sit below score_min %d", w.HardFilterScore, w.ScoreMin)
	}
	if w.RegionExact < w.RegionNational || w.RegionNational < w.RegionUnrestricted {
		return fmt.Errorf("rules: region weights must be ordered exact >= national >= unrestricted")
	}
	if w.SectorExact < w.SectorUniversal || w.SectorUniversal < w.SectorNone {
		return fmt.Errorf("rules: sector weights must be ordered exact >= universal >= none")
	}
	if w.TextHigh < w.TextMedium {
		return fmt.Errorf("rules: text_high must be >= text_medium")
	}
	if w.TextHighHits <= w.TextMediumHits {
		return fmt.Errorf("rules: text_high_hits must exceed text_medium_hits")
	}
	if w.TextMedium < (w.TextMediumHits-1)*w.TextPerTerm {
		return fmt.Errorf("rules: text_medium %d breaks free-text monotonicity below %d linear hits", w.TextMedium, w.TextMediumHits)
	}

	sort.Slice(r.AmountTiers, func(i, j int) bool {
		return r.AmountTiers[i].Threshold > r.AmountTiers[j].Threshold
	})

	r.stopwordSet = make(map[string]struct{}, len(r.Stopwords))
	for _, word := range r.Stopwords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			r.stopwordSet[word] = struct{}{}
		}
	}
	return nil
}

// SectorForNAF resolves the first two characters of a NAF-style activity
// code against the sector table.
func (r *Rules) SectorForNAF(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return "", false
	}
	sector, ok := r.NAFSectors[code[:2]]
	return sector, ok
}

// ExclusionsFor returns the title denylist for a profile sector. Sectors
// without an entry exclude nothing.
func (r *Rules) ExclusionsFor(sector string) []string {
	return r.SectorExclusions[normalizeKey(sector)]
}

func (r *Rules) SectorKeywords(sector string) []string {
	return r.SectorIndicators[normalizeKey(sector)]
}

func (r *Rules) RegionKeywords(region string) []string {
	return r.RegionIndicators[normalizeKey(region)]
}

// AmountBonus returns the tier bonus for a candidate's maximum amount.
func (r *Rules) AmountBonus(maxAmount float64) int {
	for _, tier := range r.AmountTiers {
		if maxAmount >= tier.Threshold {
			return tier.Bonus
		}
	}
	return 0
}

func (r *Rules) IsStopword(word string) bool {
	_, ok := r.stopwordSet[strings.ToLower(word)]
	return ok
}
