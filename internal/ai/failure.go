package ai

import "fmt"

// Failure reasons surfaced to callers as pipeline_stats.fallback_reason.
const (
	ReasonRateLimited = "rate_limited"
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
	ReasonParseError  = "parse_error"
	ReasonProvider    = "provider_error"
	ReasonNetwork     = "network_error"
	ReasonDisabled    = "disabled"
	ReasonEmptyBatch  = "empty_batch"
)

// Failure is the classified outcome of a failed refinement attempt. It is a
// value, not an exception: the merger branches on Reason and falls back to
// pre-scored results.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusError is returned by the client for non-2xx provider replies so the
// refiner can map status codes onto failure reasons.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Code)
}
