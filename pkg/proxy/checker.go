package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
)

// Checker reports whether a proxy can currently carry traffic
type Checker interface {
	Check(ctx context.Context, ep Endpoint) error
}

// HTTPChecker treats a proxy as alive when a GET of CheckURL through it
// returns any HTTP response within Timeout
type HTTPChecker struct {
	CheckURL string
	Timeout  time.Duration
}

// NewHTTPChecker creates a checker against checkURL
func NewHTTPChecker(checkURL string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{CheckURL: checkURL, Timeout: timeout}
}

func (c *HTTPChecker) Check(ctx context.Context, ep Endpoint) error {
	proxyURL, err := ep.URL()
	if err != nil {
		return &errs.ProxyError{Address: ep.Address, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CheckURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &errs.ProxyError{Address: ep.Address, Err: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

// FilterLive checks endpoints concurrently and returns the live ones in
// input order. Only context cancellation is reported as an error.
func FilterLive(ctx context.Context, checker Checker, endpoints []Endpoint, concurrency int) ([]Endpoint, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	alive := make([]bool, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			alive[i] = checker.Check(gctx, ep) == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := make([]Endpoint, 0, len(endpoints))
	for i, ep := range endpoints {
		if alive[i] {
			live = append(live, ep)
		}
	}
	return live, nil
}
