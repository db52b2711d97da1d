package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter centralizes the provider-account call discipline: one token bucket
// for the tier's requests-per-minute ceiling plus a minimum delay between
// consecutive calls. All matching requests in the process share one Limiter
// per provider account, so burst protection does not depend on caller
// cooperation.
type Limiter struct {
	mu       sync.Mutex
	rl       *rate.Limiter
	minDelay time.Duration
	maxWait  time.Duration
	lastCall time.Time
}

// NewLimiter builds a limiter for the given requests-per-minute ceiling.
// maxWait bounds how long Acquire may stall a live matching request before
// giving up with a rate_limited failure instead.
func NewLimiter(rpm int, minDelay, maxWait time.Duration) *Limiter {
	l := &Limiter{minDelay: minDelay, maxWait: maxWait}
	if rpm > 0 {
		l.rl = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	if l.maxWait <= 0 {
		l.maxWait = 2 * time.Second
	}
	return l
}

// Acquire claims a call slot. It sleeps for short waits, fails fast with
// rate_limited when the required wait exceeds the budget, and honors caller
// cancellation while sleeping.
func (l *Limiter) Acquire(ctx context.Context) *Failure {
	l.mu.Lock()
	now := time.Now()

	wait := time.Duration(0)
	if !l.lastCall.IsZero() && l.minDelay > 0 {
		if since := now.Sub(l.lastCall); since < l.minDelay {
			wait = l.minDelay - since
		}
	}

	var res *rate.Reservation
	if l.rl != nil {
		res = l.rl.Reserve()
		if d := res.Delay(); d > wait {
			wait = d
		}
	}

	if wait > l.maxWait {
		if res != nil {
			res.Cancel()
		}
		l.mu.Unlock()
		return &Failure{
			Reason: ReasonRateLimited,
			Err:    fmt.Errorf("required wait %s exceeds budget %s", wait.Round(time.Millisecond), l.maxWait),
		}
	}

	// Claim the slot before sleeping so a concurrent caller sees it taken.
	l.lastCall = now.Add(wait)
	l.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return &Failure{Reason: ReasonCanceled, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return nil
}
