package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle(t *testing.T) {
	th := NewThrottle(10)

	assert.True(t, th.Allow())
	assert.False(t, th.Allow(), "burst is one")

	start := time.Now()
	require.NoError(t, th.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	th.Reset()
	assert.True(t, th.Allow())
}

func TestThrottleUnlimited(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 100; i++ {
		assert.True(t, th.Allow())
	}
}

func TestThrottleWaitCancelled(t *testing.T) {
	th := NewThrottle(0.001)
	require.True(t, th.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.Wait(ctx))
}

func TestWindowUpdate(t *testing.T) {
	w := NewWindow()
	h := http.Header{}
	h.Set(HeaderLimit, "900")
	h.Set(HeaderRemaining, "0")
	h.Set(HeaderReset, "1700000100")
	w.Update("statuses", h)

	st, ok := w.State("statuses")
	require.True(t, ok)
	assert.Equal(t, 900, st.Limit)
	assert.Equal(t, 0, st.Remaining)
	assert.Equal(t, time.Unix(1700000100, 0), st.Reset)

	assert.True(t, w.Exhausted("statuses", time.Unix(1700000000, 0)))
	assert.False(t, w.Exhausted("statuses", time.Unix(1700000200, 0)))
	assert.False(t, w.Exhausted("search", time.Unix(1700000000, 0)))

	partial := http.Header{}
	partial.Set(HeaderRemaining, "42")
	w.Update("statuses", partial)
	st, _ = w.State("statuses")
	assert.Equal(t, 42, st.Remaining)
	assert.Equal(t, 900, st.Limit)
}

func TestResetFromHeader(t *testing.T) {
	h := http.Header{}
	assert.True(t, ResetFromHeader(h).IsZero())

	h.Set(HeaderReset, "garbage")
	assert.True(t, ResetFromHeader(h).IsZero())

	h.Set(HeaderReset, "1700000000")
	assert.Equal(t, int64(1700000000), ResetFromHeader(h).Unix())
}
