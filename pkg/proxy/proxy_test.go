package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.json")
	content := `["10.0.0.1:8080", {"proxy": "10.0.0.2:1080", "type": "socks5"}, "https://10.0.0.3:443"]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	endpoints, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, endpoints, 3)

	u, err := endpoints[0].URL()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", u.String())

	u, err = endpoints[1].URL()
	require.NoError(t, err)
	assert.Equal(t, "socks5", u.Scheme)

	u, err = endpoints[2].URL()
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0644))

	_, err := LoadFile(path)
	assert.Equal(t, errs.ClassConfiguration, errs.Classify(err))
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.json")
	in := []Endpoint{{Address: "10.0.0.1:8080"}, {Address: "10.0.0.2:1080", Type: "socks5"}}

	require.NoError(t, SaveFile(path, in))
	out, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHTTPCheckerAlive(t *testing.T) {
	// An httptest server acts as a forward proxy: it answers any request.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	checker := NewHTTPChecker("http://api.example.invalid/check", time.Second)
	err := checker.Check(context.Background(), Endpoint{Address: srv.URL})
	assert.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPCheckerDead(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	checker := NewHTTPChecker("http://api.example.invalid/check", time.Second)
	err := checker.Check(context.Background(), Endpoint{Address: addr})
	require.Error(t, err)
	assert.Equal(t, errs.ClassProxy, errs.Classify(err))
}

type fakeChecker map[string]bool

func (f fakeChecker) Check(_ context.Context, ep Endpoint) error {
	if f[ep.Address] {
		return nil
	}
	return &errs.ProxyError{Address: ep.Address, Err: errors.New("dead")}
}

func TestFilterLiveKeepsOrder(t *testing.T) {
	endpoints := []Endpoint{{Address: "a"}, {Address: "b"}, {Address: "c"}, {Address: "d"}, {Address: "e"}}
	checker := fakeChecker{"a": true, "c": true, "e": true}

	live, err := FilterLive(context.Background(), checker, endpoints, 2)
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{{Address: "a"}, {Address: "c"}, {Address: "e"}}, live)
}

func TestFilterLiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FilterLive(ctx, fakeChecker{}, []Endpoint{{Address: "a"}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
