package models

// MatchResult is one ranked entry of the final shortlist returned to the
// caller. Score is the merged value: AI-refined when the refinement call
// succeeded and covered this candidate, pre-score otherwise.
type MatchResult struct {
	SubsidyID          string   `json:"subsidy_id"`
	Title              string   `json:"title"`
	Score              int      `json:"score"`
	SuccessProbability float64  `json:"success_probability"`
	Reasons            []string `json:"reasons"`
	AIRefined          bool     `json:"ai_refined"`
}

type TokensUsed struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// PipelineStats is the per-request telemetry block. FallbackReason is only
// set when AIEvaluated is false and names the branch that degraded the
// request (rate_limited, timeout, parse_error, ...).
type PipelineStats struct {
	CandidatesFetched int    `json:"candidates_fetched"`
	PreScoredCount    int    `json:"pre_scored_count"`
	AIEvaluated       bool   `json:"ai_evaluated"`
	FallbackReason    string `json:"fallback_reason,omitempty"`
}

type MatchResponse struct {
	Matches          []MatchResult `json:"matches"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	TokensUsed       TokensUsed    `json:"tokens_used"`
	PipelineStats    PipelineStats `json:"pipeline_stats"`
}

// MatchAudit is the snapshot persisted after every served match computation.
// Transparency rules for automated recommendations require keeping what was
// recommended, to whom, and whether AI took part.
type MatchAudit struct {
	Profile CompanyProfile `json:"profile"`
	Matches []MatchResult  `json:"matches"`
	Stats   PipelineStats  `json:"stats"`
	Tokens  TokensUsed     `json:"tokens"`
	TookMs  int64          `json:"took_ms"`
}
