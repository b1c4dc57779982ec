// Package ratelimit paces requests to the platform API.
//
// Throttle is a proactive token bucket built on golang.org/x/time/rate that
// keeps a single client under a configured request rate. Window records the
// x-rate-limit-* headers returned with every response so callers can learn
// when an exhausted resource window resets.
//
// Usage:
//
//	throttle := ratelimit.NewThrottle(1.0)
//	if err := throttle.Wait(ctx); err != nil {
//	    return err
//	}
//	resp, err := http.DefaultClient.Do(req)
//	...
//	window.Update("statuses", resp.Header)
package ratelimit
