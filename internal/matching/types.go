package matching

import (
	"context"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/models"
)

// SizeClass buckets a profile by headcount.
type SizeClass string

const (
	SizeMicro  SizeClass = "micro"  // < 10 employees
	SizeSmall  SizeClass = "small"  // < 250
	SizeMedium SizeClass = "medium" // < 5000
	SizeLarge  SizeClass = "large"
)

// AnalyzedProfile is the normalized view of a CompanyProfile that the
// scoring rules run against. Recomputed on every call, never persisted.
type AnalyzedProfile struct {
	Sector            string
	SizeClass         SizeClass
	Region            string
	SearchTerms       []string
	ThematicKeywords  []string
	ExclusionKeywords []string
}

// PreScoreResult carries the deterministic score for one candidate. Values
// are final once returned; ranking only reads them.
type PreScoreResult struct {
	Candidate    *models.SubsidyCandidate
	Score        int
	HardFiltered bool
	FilterReason string
	Reasons      []string
}

// CandidateSource is the externally owned read path over the subsidy
// catalog, already filtered server-side to active records. Its failure is
// the only fatal error of a matching request.
type CandidateSource interface {
	FetchActive(ctx context.Context) ([]models.SubsidyCandidate, error)
}

// Refiner is the single network collaborator of the pipeline. A nil Failure
// means the evaluations are valid; any non-nil Failure routes the merger
// onto the pre-score fallback path.
type Refiner interface {
	Refine(ctx context.Context, profile ai.ProfileSummary, batch []ai.Candidate) ([]ai.Evaluation, ai.Usage, *ai.Failure)
}

// ComplianceSink records match computations for audit purposes. Failures are
// logged and swallowed; they never fail the matching request.
type ComplianceSink interface {
	RecordMatch(ctx context.Context, rec models.MatchAudit) error
}
