// Package twitter is a small client for the platform's v1.1 REST API.
//
// Only the three calls the crawler needs are implemented: user timelines,
// recent search and the rate limit status lookup. Every failure is mapped
// onto pkg/errors: a 429 (or error code 88) becomes a RateLimitError
// carrying the x-rate-limit-reset header, a 404 a PermanentError, and
// everything else a TransientError.
//
// Factory exchanges each credential set's app key and secret for an
// app-only bearer token through golang.org/x/oauth2/clientcredentials and
// builds clients whose transport is routed through a lane's proxy.
//
// Usage:
//
//	factory := twitter.NewFactory(cfg.Platform, log)
//	client, err := factory.Client(lane.Credentials, &endpoint)
//	if err != nil {
//	    return err
//	}
//	records, err := client.UserTimeline(ctx, twitter.TimelineQuery{UserID: 12, Count: 200})
package twitter
