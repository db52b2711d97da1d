package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/metrics"
	"github.com/david/subsidy-matcher/internal/models"
)

const (
	// DefaultLimit bounds the shortlist when the caller does not ask for a
	// specific size.
	DefaultLimit = 20
	// MaxLimit caps what a caller may ask for.
	MaxLimit = 50

	complianceTimeout = 5 * time.Second
	summaryKeywords   = 8
)

// Config tunes one pipeline instance.
type Config struct {
	AIEnabled    bool
	Budget       TokenBudget
	DefaultLimit int
	MaxLimit     int
}

// Pipeline wires the matching stages together: fetch, analyze, pre-score,
// compact, refine, merge. One instance serves all requests; every value it
// hands out is request-scoped, so no locking is needed here.
type Pipeline struct {
	Source     CandidateSource
	Refiner    Refiner // may be nil when refinement is disabled
	Rules      *Rules
	Compliance ComplianceSink // optional, best-effort
	Log        *zap.Logger
	Config     Config
}

func NewPipeline(source CandidateSource, refiner Refiner, rules *Rules, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	return &Pipeline{
		Source:  source,
		Refiner: refiner,
		Rules:   rules,
		Log:     log,
		Config:  cfg,
	}
}

// ComputeMatches runs the full flow for one profile. The only fatal error is
// the candidate source failing; everything after a successful fetch degrades
// to the pre-scored ranking instead of failing the request.
func (p *Pipeline) ComputeMatches(ctx context.Context, profile models.CompanyProfile, limit int) (*models.MatchResponse, error) {
	start := time.Now()
	limit = p.clampLimit(limit)

	candidates, err := p.Source.FetchActive(ctx)
	if err != nil {
		metrics.MatchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	analyzed := Analyze(profile, p.Rules)
	ranked := PreScoreAll(candidates, analyzed, p.Rules)
	metrics.PreScoredCandidates.Observe(float64(len(ranked)))

	batch := CompactTopK(ranked, p.Config.Budget)
	evals, usage, failure := p.refine(ctx, analyzed, batch)

	response := &models.MatchResponse{
		Matches: Merge(ranked, evals, limit, p.Rules.Weights.ScoreMax),
		TokensUsed: models.TokensUsed{
			Input:  usage.InputTokens,
			Output: usage.OutputTokens,
		},
		PipelineStats: models.PipelineStats{
			CandidatesFetched: len(candidates),
			PreScoredCount:    len(ranked),
			AIEvaluated:       failure == nil,
		},
	}
	if failure != nil {
		response.PipelineStats.FallbackReason = failure.Reason
		metrics.FallbackTotal.WithLabelValues(failure.Reason).Inc()
		metrics.MatchRequestsTotal.WithLabelValues("fallback").Inc()
	} else {
		metrics.MatchRequestsTotal.WithLabelValues("refined").Inc()
	}
	metrics.ProviderTokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.ProviderTokens.WithLabelValues("output").Add(float64(usage.OutputTokens))

	response.ProcessingTimeMs = time.Since(start).Milliseconds()
	metrics.MatchDuration.Observe(time.Since(start).Seconds())

	p.recordCompliance(ctx, profile, response)

	p.Log.Info("match computed",
		zap.String("profile_id", profile.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(response.Matches)),
		zap.Bool("ai_evaluated", response.PipelineStats.AIEvaluated),
		zap.String("fallback_reason", response.PipelineStats.FallbackReason),
		zap.Int64("took_ms", response.ProcessingTimeMs))

	return response, nil
}

func (p *Pipeline) clampLimit(limit int) int {
	if limit <= 0 {
		return p.Config.DefaultLimit
	}
	if limit > p.Config.MaxLimit {
		return p.Config.MaxLimit
	}
	return limit
}

func (p *Pipeline) refine(ctx context.Context, analyzed AnalyzedProfile, batch []ai.Candidate) ([]ai.Evaluation, ai.Usage, *ai.Failure) {
	if !p.Config.AIEnabled || p.Refiner == nil {
		return nil, ai.Usage{}, &ai.Failure{Reason: ai.ReasonDisabled}
	}
	if len(batch) == 0 {
		return nil, ai.Usage{}, &ai.Failure{Reason: ai.ReasonEmptyBatch, Err: errors.New("no candidates survived pre-scoring")}
	}

	keywords := analyzed.SearchTerms
	if len(keywords) > summaryKeywords {
		keywords = keywords[:summaryKeywords]
	}
	summary := ai.ProfileSummary{
		Sector:   analyzed.Sector,
		Size:     string(analyzed.SizeClass),
		Region:   analyzed.Region,
		Keywords: keywords,
	}

	metrics.RefinementBatchSize.Observe(float64(len(batch)))
	return p.Refiner.Refine(ctx, summary, batch)
}

// recordCompliance hands the snapshot to the sink on a detached context so a
// canceled caller cannot lose the audit trail, and a slow sink cannot slow
// the response.
func (p *Pipeline) recordCompliance(ctx context.Context, profile models.CompanyProfile, response *models.MatchResponse) {
	if p.Compliance == nil {
		return
	}
	rec := models.MatchAudit{
		Profile: profile,
		Matches: response.Matches,
		Stats:   response.PipelineStats,
		Tokens:  response.TokensUsed,
		TookMs:  response.ProcessingTimeMs,
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, complianceTimeout)
		defer cancel()
		if err := p.Compliance.RecordMatch(writeCtx, rec); err != nil {
			metrics.ComplianceWriteFailures.Inc()
			p.Log.Warn("compliance record failed", zap.Error(err))
		}
	}()
}
