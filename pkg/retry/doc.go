// Package retry holds the back-off rules used by the crawler.
//
// Policy covers a pagination run: a rate-limited request waits until the
// platform window resets plus a padding (falling back to a fixed wait when
// the reset time is already in the past) and never spends budget; any other
// failure waits a fixed delay and spends one unit of a per-run Budget.
//
//	policy := retry.DefaultPolicy()
//	wait := policy.RateLimitWait(reset, time.Now()) // reset-now+10s, or 60s
//
// Do and DoWithResult retry short one-off operations such as the bearer
// token exchange with an exponential back-off:
//
//	tok, err := retry.DoWithResult(ctx, func(ctx context.Context) (*oauth2.Token, error) {
//		return source.Token()
//	}, &retry.Config{MaxAttempts: 3, Backoff: retry.DefaultExponentialBackoff()})
package retry
