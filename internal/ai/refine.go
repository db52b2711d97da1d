package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	aiScoreMin = 0
	aiScoreMax = 100

	defaultMaxOutputTokens = 1500
)

const refinementSystemPrompt = `You are an expert advisor on French public funding programs. You re-rank subsidy candidates for a company profile and estimate each application's chance of success. You answer with JSON only.`

// Refiner issues the single refinement call of a matching operation and
// turns the provider's reply into validated evaluations. Every failure mode
// is classified into a *Failure; nothing escapes as a panic or an untyped
// error.
type Refiner struct {
	client          *Client
	limiter         *Limiter
	log             *zap.Logger
	timeout         time.Duration
	maxOutputTokens int
}

func NewRefiner(client *Client, limiter *Limiter, log *zap.Logger, timeout time.Duration, maxOutputTokens int) *Refiner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Refiner{
		client:          client,
		limiter:         limiter,
		log:             log,
		timeout:         timeout,
		maxOutputTokens: maxOutputTokens,
	}
}

// Refine sends exactly one request for the batch. On failure the returned
// Usage still reflects whatever the provider reported (zero when the call
// never produced a billed reply, e.g. 429).
func (r *Refiner) Refine(ctx context.Context, profile ProfileSummary, batch []Candidate) ([]Evaluation, Usage, *Failure) {
	if len(batch) == 0 {
		return nil, Usage{}, &Failure{Reason: ReasonParseError, Err: errors.New("empty candidate batch")}
	}

	if r.limiter != nil {
		if f := r.limiter.Acquire(ctx); f != nil {
			r.log.Warn("refinement call throttled", zap.String("reason", f.Reason), zap.Error(f.Err))
			return nil, Usage{}, f
		}
	}

	prompt := buildRefinementPrompt(profile, batch)
	messages := []Message{
		{Role: "system", Content: refinementSystemPrompt},
		{Role: "user", Content: prompt},
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.log.Debug("sending refinement request",
		zap.Int("candidates", len(batch)),
		zap.Int("prompt_length", len(prompt)))

	text, usage, err := r.client.Complete(callCtx, messages, r.maxOutputTokens, true)
	if err != nil {
		f := classifyCallError(err)
		r.log.Warn("refinement call failed", zap.String("reason", f.Reason), zap.Error(err))
		return nil, Usage{}, f
	}

	payloads, err := parseRefinementResponse(text)
	if err != nil {
		r.log.Warn("refinement response unparseable",
			zap.Error(err),
			zap.String("preview", truncateForLog(text, 200)))
		return nil, usage, &Failure{Reason: ReasonParseError, Err: err}
	}

	evals := validateEvaluations(payloads, batch)
	if len(evals) == 0 {
		return nil, usage, &Failure{Reason: ReasonParseError, Err: errors.New("no usable evaluations in response")}
	}

	r.log.Debug("refinement response accepted",
		zap.Int("evaluations", len(evals)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	return evals, usage, nil
}

func buildRefinementPrompt(profile ProfileSummary, batch []Candidate) string {
	profileJSON, _ := json.Marshal(profile)
	batchJSON, _ := json.Marshal(batch)

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}

	return fmt.Sprintf(`Re-score each candidate subsidy for the company profile below.

COMPANY PROFILE: %s

CANDIDATES (pre-scored by deterministic rules): %s

Return a JSON object with this format:
{
  "evaluations": [
    {"id": "candidate id", "score": 85, "success_probability": 0.7, "reasons": ["short reason"]}
  ]
}

Rules:
1. Use ONLY these candidate ids: %s. Do not invent ids.
2. Score every candidate exactly once, 0-100.
3. success_probability estimates the chance an application would be accepted, 0.0-1.0.
4. Give 1-3 short reasons per candidate, in French.
5. RESPOND ONLY WITH JSON.`, profileJSON, batchJSON, strings.Join(ids, ", "))
}

// validateEvaluations filters the model output down to what we trust: ids
// must come from the sent batch, numeric fields are clamped, duplicates and
// entries without a usable score are dropped so the merger falls back to the
// pre-score for them.
func validateEvaluations(payloads []evaluationPayload, batch []Candidate) []Evaluation {
	known := make(map[string]bool, len(batch))
	for _, c := range batch {
		known[c.ID] = true
	}

	seen := make(map[string]bool, len(payloads))
	valid := make([]Evaluation, 0, len(payloads))
	for _, p := range payloads {
		id := coerceString(p.ID)
		if id == "" || !known[id] || seen[id] {
			continue
		}

		score, ok := coerceFloat(p.Score)
		if !ok {
			continue
		}

		eval := Evaluation{
			ID:    id,
			Score: clampInt(int(score), aiScoreMin, aiScoreMax),
		}
		if prob, ok := coerceFloat(p.SuccessProbability); ok {
			eval.SuccessProbability = clampFloat(prob, 0, 1)
		}
		for _, reason := range p.Reasons {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				continue
			}
			eval.Reasons = append(eval.Reasons, reason)
			if len(eval.Reasons) == 3 {
				break
			}
		}

		seen[id] = true
		valid = append(valid, eval)
	}
	return valid
}

func classifyCallError(err error) *Failure {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return &Failure{Reason: ReasonRateLimited, Err: err}
		}
		return &Failure{Reason: ReasonProvider, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Reason: ReasonCanceled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Reason: ReasonTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Failure{Reason: ReasonTimeout, Err: err}
	}
	return &Failure{Reason: ReasonNetwork, Err: err}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
