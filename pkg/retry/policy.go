package retry

import (
	"time"

	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
)

// Policy decides how long a pagination run waits after a failed request
// and how many generic failures it tolerates.
type Policy struct {
	// RateLimitPadding is added to the time remaining until the window resets
	RateLimitPadding time.Duration
	// RateLimitFallback is used when the computed wait is negative
	RateLimitFallback time.Duration
	TransientBackoff  BackoffStrategy
	// Budget is the number of generic failures allowed per run
	Budget int
}

// DefaultPolicy waits reset+10s on rate limits (60s if the reset already
// passed) and 10s after other failures, with a budget of 5.
func DefaultPolicy() Policy {
	return Policy{
		RateLimitPadding:  10 * time.Second,
		RateLimitFallback: 60 * time.Second,
		TransientBackoff:  &ConstantBackoff{Delay: 10 * time.Second},
		Budget:            5,
	}
}

// PolicyFromConfig builds a Policy from crawl settings
func PolicyFromConfig(cfg config.CrawlConfig) Policy {
	return Policy{
		RateLimitPadding:  cfg.RateLimitPadding,
		RateLimitFallback: cfg.RateLimitFallback,
		TransientBackoff:  &ConstantBackoff{Delay: cfg.TransientDelay},
		Budget:            cfg.RetryBudget,
	}
}

// RateLimitWait returns how long to sleep before retrying a rate-limited
// request whose window resets at reset.
func (p Policy) RateLimitWait(reset, now time.Time) time.Duration {
	wait := reset.Sub(now) + p.RateLimitPadding
	if wait < 0 {
		return p.RateLimitFallback
	}
	return wait
}

// TransientWait returns the delay after the given generic failure (1-based)
func (p Policy) TransientWait(attempt int) time.Duration {
	if p.TransientBackoff == nil {
		return 0
	}
	return p.TransientBackoff.NextDelay(attempt)
}

// NewBudget returns a fresh failure budget for one run
func (p Policy) NewBudget() *Budget {
	return &Budget{limit: p.Budget}
}

// Budget counts generic failures within a single run. Not safe for concurrent use.
type Budget struct {
	limit int
	used  int
}

// Consume spends one unit and reports whether any remain
func (b *Budget) Consume() bool {
	if b.used < b.limit {
		b.used++
	}
	return b.used < b.limit
}

// Remaining returns the unspent units
func (b *Budget) Remaining() int {
	return b.limit - b.used
}

// Used returns how many failures were recorded
func (b *Budget) Used() int {
	return b.used
}

// Exhausted reports whether no units remain
func (b *Budget) Exhausted() bool {
	return b.used >= b.limit
}
