package audit

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/models"
)

// Matcher is the slice of the pipeline the auditor drives. Audits run with
// refinement disabled so they measure the deterministic rules, not provider
// behavior.
type Matcher interface {
	ComputeMatches(ctx context.Context, profile models.CompanyProfile, limit int) (*models.MatchResponse, error)
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	// DefaultThreshold is the deviation from the mean match rate at which a
	// dimension value is flagged, in rate points.
	DefaultThreshold = 0.15

	mediumThreshold = 0.20
	highThreshold   = 0.30

	defaultMatchScore = 40
	defaultLimit      = 10
)

// Finding flags one dimension value whose match rate strays from the mean.
type Finding struct {
	Dimension string   `json:"dimension"`
	Value     string   `json:"value"`
	Rate      float64  `json:"rate"`
	Deviation float64  `json:"deviation"`
	Severity  Severity `json:"severity"`
}

// DimensionStat is the measured match rate for one value of one dimension.
type DimensionStat struct {
	Dimension string  `json:"dimension"`
	Value     string  `json:"value"`
	Runs      int     `json:"runs"`
	Matched   int     `json:"matched"`
	Rate      float64 `json:"rate"`
}

type Report struct {
	Seed        int64           `json:"seed"`
	Profiles    int             `json:"profiles"`
	OverallRate float64         `json:"overall_rate"`
	Stats       []DimensionStat `json:"stats"`
	Findings    []Finding       `json:"findings"`
}

// Auditor replays synthetic profiles through the matcher and compares match
// rates across regions, sectors and size buckets.
type Auditor struct {
	Matcher    Matcher
	Log        *zap.Logger
	Threshold  float64 // deviation that triggers a finding; DefaultThreshold when zero
	MatchScore int     // minimum score for a result to count as a match
	Limit      int     // shortlist size requested per run
}

func NewAuditor(matcher Matcher, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{
		Matcher:    matcher,
		Log:        log,
		Threshold:  DefaultThreshold,
		MatchScore: defaultMatchScore,
		Limit:      defaultLimit,
	}
}

type tally struct {
	runs    int
	matched int
}

// Run generates profiles profiles from seed, drives the matcher for each and
// aggregates per-dimension match rates. A run counts as matched when at
// least one result reaches MatchScore.
func (a *Auditor) Run(ctx context.Context, seed int64, profiles int) (*Report, error) {
	if profiles <= 0 {
		profiles = 120
	}
	threshold := a.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	gen := NewGenerator(seed)
	synth := gen.Profiles(profiles)

	counts := map[string]map[string]*tally{
		"region": {},
		"sector": {},
		"size":   {},
	}
	totalMatched := 0

	for _, profile := range synth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := a.Matcher.ComputeMatches(ctx, profile, a.Limit)
		if err != nil {
			return nil, fmt.Errorf("audit run failed for %s: %w", profile.ID, err)
		}

		matched := hasQualifyingMatch(resp.Matches, a.MatchScore)
		if matched {
			totalMatched++
		}
		bump(counts["region"], profile.Region, matched)
		bump(counts["sector"], profile.Sector, matched)
		bump(counts["size"], profile.EmployeeBucket, matched)
	}

	report := &Report{
		Seed:        seed,
		Profiles:    profiles,
		OverallRate: rate(totalMatched, profiles),
	}

	for _, dimension := range []string{"region", "sector", "size"} {
		for value, t := range counts[dimension] {
			stat := DimensionStat{
				Dimension: dimension,
				Value:     value,
				Runs:      t.runs,
				Matched:   t.matched,
				Rate:      rate(t.matched, t.runs),
			}
			report.Stats = append(report.Stats, stat)

			deviation := stat.Rate - report.OverallRate
			if severity, flagged := classify(deviation, threshold); flagged {
				report.Findings = append(report.Findings, Finding{
					Dimension: dimension,
					Value:     value,
					Rate:      stat.Rate,
					Deviation: deviation,
					Severity:  severity,
				})
			}
		}
	}

	sortReport(report)

	a.Log.Info("bias audit complete",
		zap.Int64("seed", seed),
		zap.Int("profiles", profiles),
		zap.Float64("overall_rate", report.OverallRate),
		zap.Int("findings", len(report.Findings)))

	return report, nil
}

func hasQualifyingMatch(matches []models.MatchResult, minScore int) bool {
	for _, m := range matches {
		if m.Score >= minScore {
			return true
		}
	}
	return false
}

func bump(dim map[string]*tally, value string, matched bool) {
	t := dim[value]
	if t == nil {
		t = &tally{}
		dim[value] = t
	}
	t.runs++
	if matched {
		t.matched++
	}
}

func rate(matched, runs int) float64 {
	if runs == 0 {
		return 0
	}
	return float64(matched) / float64(runs)
}

// classify maps an absolute deviation to a severity. Escalation points stay
// fixed even when the base threshold is tuned, so reports from differently
// configured runs rank findings the same way.
func classify(deviation, threshold float64) (Severity, bool) {
	abs := math.Abs(deviation)
	switch {
	case abs > highThreshold:
		return SeverityHigh, true
	case abs > mediumThreshold:
		return SeverityMedium, true
	case abs > threshold:
		return SeverityLow, true
	default:
		return "", false
	}
}

// sortReport orders stats and findings for stable output: dimension, then
// value; findings worst first.
func sortReport(report *Report) {
	sort.Slice(report.Stats, func(i, j int) bool {
		if report.Stats[i].Dimension != report.Stats[j].Dimension {
			return report.Stats[i].Dimension < report.Stats[j].Dimension
		}
		return report.Stats[i].Value < report.Stats[j].Value
	})
	sort.Slice(report.Findings, func(i, j int) bool {
		di := math.Abs(report.Findings[i].Deviation)
		dj := math.Abs(report.Findings[j].Deviation)
		if di != dj {
			return di > dj
		}
		if report.Findings[i].Dimension != report.Findings[j].Dimension {
			return report.Findings[i].Dimension < report.Findings[j].Dimension
		}
		return report.Findings[i].Value < report.Findings[j].Value
	})
}
