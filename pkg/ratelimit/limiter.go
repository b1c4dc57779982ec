package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Platform rate limit headers
const (
	HeaderLimit     = "x-rate-limit-limit"
	HeaderRemaining = "x-rate-limit-remaining"
	HeaderReset     = "x-rate-limit-reset"
)

var remainingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "twtracker_rate_limit_remaining",
	Help: "Requests left in the current window as reported by the platform",
}, []string{"resource"})

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// Throttle spaces requests proactively with a token bucket
type Throttle struct {
	mu     sync.Mutex
	rps    float64
	bucket *rate.Limiter
}

// NewThrottle allows rps requests per second with a burst of one.
// A non-positive rps disables throttling.
func NewThrottle(rps float64) *Throttle {
	t := &Throttle{rps: rps}
	t.Reset()
	return t
}

func (t *Throttle) Allow() bool {
	t.mu.Lock()
	b := t.bucket
	t.mu.Unlock()
	return b.Allow()
}

func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	b := t.bucket
	t.mu.Unlock()
	return b.Wait(ctx)
}

// Reset refills the bucket
func (t *Throttle) Reset() {
	limit := rate.Inf
	if t.rps > 0 {
		limit = rate.Limit(t.rps)
	}
	t.mu.Lock()
	t.bucket = rate.NewLimiter(limit, 1)
	t.mu.Unlock()
}

// State is the last window reported for one resource
type State struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Window records the rate limit headers seen per resource
type Window struct {
	mu     sync.Mutex
	states map[string]State
}

// NewWindow creates an empty window tracker
func NewWindow() *Window {
	return &Window{states: make(map[string]State)}
}

// Update records the headers of a response for resource. Missing headers
// leave the previous values in place.
func (w *Window) Update(resource string, h http.Header) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.states[resource]
	if v, err := strconv.Atoi(h.Get(HeaderLimit)); err == nil {
		st.Limit = v
	}
	if v, err := strconv.Atoi(h.Get(HeaderRemaining)); err == nil {
		st.Remaining = v
		remainingGauge.WithLabelValues(resource).Set(float64(v))
	}
	if reset := ResetFromHeader(h); !reset.IsZero() {
		st.Reset = reset
	}
	w.states[resource] = st
}

// State returns the recorded window for resource
func (w *Window) State(resource string) (State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.states[resource]
	return st, ok
}

// Exhausted reports whether resource has no requests left before its reset
func (w *Window) Exhausted(resource string, now time.Time) bool {
	st, ok := w.State(resource)
	return ok && st.Remaining == 0 && now.Before(st.Reset)
}

// ResetFromHeader parses the reset epoch header, zero if absent or malformed
func ResetFromHeader(h http.Header) time.Time {
	v, err := strconv.ParseInt(h.Get(HeaderReset), 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}
