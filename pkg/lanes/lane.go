package lanes

import (
	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
)

// Lane is one credential set plus the proxies it may route through.
// A lane is used by at most one crawl at a time.
type Lane struct {
	ID          int
	Credentials auth.CredentialSet
	Proxies     []proxy.Endpoint

	cursor int
}

// Name identifies the lane by its credential set
func (l *Lane) Name() string {
	return l.Credentials.Name
}

// Direct reports whether the lane connects without a proxy
func (l *Lane) Direct() bool {
	return len(l.Proxies) == 0
}

// NextProxy returns the next proxy round-robin. ok is false for direct lanes.
func (l *Lane) NextProxy() (proxy.Endpoint, bool) {
	if len(l.Proxies) == 0 {
		return proxy.Endpoint{}, false
	}
	ep := l.Proxies[l.cursor%len(l.Proxies)]
	l.cursor = (l.cursor + 1) % len(l.Proxies)
	return ep, true
}

// Partition assigns proxies to credential sets, producing one lane per set.
//
// Without proxies every lane is direct. With fewer proxies than sets the
// first len(proxies) lanes get one proxy each and the rest are direct.
// Otherwise proxies are split into contiguous chunks, the first
// len(proxies)%len(creds) lanes taking one extra.
func Partition(creds []auth.CredentialSet, proxies []proxy.Endpoint) []*Lane {
	lanes := make([]*Lane, len(creds))
	for i, c := range creds {
		lanes[i] = &Lane{ID: i, Credentials: c}
	}
	if len(creds) == 0 || len(proxies) == 0 {
		return lanes
	}

	if len(creds) > len(proxies) {
		for i, p := range proxies {
			lanes[i].Proxies = []proxy.Endpoint{p}
		}
		return lanes
	}

	chunk := len(proxies) / len(creds)
	extra := len(proxies) % len(creds)
	start := 0
	for i, lane := range lanes {
		n := chunk
		if i < extra {
			n++
		}
		lane.Proxies = append([]proxy.Endpoint(nil), proxies[start:start+n]...)
		start += n
	}
	return lanes
}
