package lanes

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lanesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "twtracker_lanes_available",
		Help: "Lanes waiting in the pool",
	})
	lanesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "twtracker_lanes_in_use",
		Help: "Lanes checked out by running crawls",
	})
)

// ErrNotCheckedOut is returned when releasing a lane the pool did not hand out
var ErrNotCheckedOut = errors.New("lane is not checked out")

// Pool hands out lanes exclusively. It is owned by a single goroutine and
// is not safe for concurrent use.
type Pool struct {
	free []*Lane
	out  map[*Lane]struct{}
	size int
}

// NewPool creates a pool with every lane available
func NewPool(lanes []*Lane) *Pool {
	p := &Pool{
		free: make([]*Lane, 0, len(lanes)),
		out:  make(map[*Lane]struct{}, len(lanes)),
		size: len(lanes),
	}
	// reversed so the first lane is handed out first
	for i := len(lanes) - 1; i >= 0; i-- {
		p.free = append(p.free, lanes[i])
	}
	p.report()
	return p
}

// Acquire pops a free lane without blocking
func (p *Pool) Acquire() (*Lane, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	lane := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.out[lane] = struct{}{}
	p.report()
	return lane, true
}

// Release returns a checked-out lane to the pool
func (p *Pool) Release(lane *Lane) error {
	if _, ok := p.out[lane]; !ok {
		return ErrNotCheckedOut
	}
	delete(p.out, lane)
	p.free = append(p.free, lane)
	p.report()
	return nil
}

// Available is the number of free lanes
func (p *Pool) Available() int { return len(p.free) }

// InUse is the number of checked-out lanes
func (p *Pool) InUse() int { return len(p.out) }

// Len is the total number of lanes
func (p *Pool) Len() int { return p.size }

func (p *Pool) report() {
	lanesAvailable.Set(float64(len(p.free)))
	lanesInUse.Set(float64(len(p.out)))
}
