package dispatcher

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/lanes"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

var (
	// ErrNoActiveTargets is returned when every target has been removed
	ErrNoActiveTargets = errors.New("no active targets")
	// ErrSubstrateFailure is returned when the worker pool or the progress
	// store can no longer be trusted and the dispatcher must be rebuilt
	ErrSubstrateFailure = errors.New("execution substrate failed")
)

// Committer persists the outcome of a unit
type Committer interface {
	Commit(ctx context.Context, id string, target models.Target) error
}

// Options tune a Dispatcher
type Options struct {
	Workers      int
	PollInterval time.Duration
	// WorkContext bounds running units. Cancelling it is the hard stop.
	WorkContext context.Context
	Clock       func() time.Time
}

// Dispatcher cycles over the targets, running each on a free lane, and
// commits every completion before the lane is reused.
type Dispatcher struct {
	store  Committer
	lanes  *lanes.Pool
	runner Runner
	opts   Options
	logger logger.Logger
	runID  string

	ids      []string
	backlog  map[string]models.Target
	inFlight map[string]*lanes.Lane
	cursor   int
	retryQ   []string
	requeued map[string]bool
	failure  error
}

// New creates a dispatcher over a snapshot of targets
func New(store Committer, pool *lanes.Pool, runner Runner, targets map[string]models.Target, opts Options, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.WorkContext == nil {
		opts.WorkContext = context.Background()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	backlog := make(map[string]models.Target, len(targets))
	ids := make([]string, 0, len(targets))
	for id, t := range targets {
		t.ID = id
		backlog[id] = t
		ids = append(ids, id)
	}
	sort.Strings(ids)

	runID := uuid.NewString()
	return &Dispatcher{
		store:    store,
		lanes:    pool,
		runner:   runner,
		opts:     opts,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatcher", "run_id": runID}),
		runID:    runID,
		ids:      ids,
		backlog:  backlog,
		inFlight: make(map[string]*lanes.Lane),
		requeued: make(map[string]bool),
	}
}

// RunID identifies this dispatcher generation in logs
func (d *Dispatcher) RunID() string {
	return d.runID
}

// Targets returns the dispatcher's current view of the backlog
func (d *Dispatcher) Targets() map[string]models.Target {
	out := make(map[string]models.Target, len(d.backlog))
	for k, v := range d.backlog {
		out[k] = v
	}
	return out
}

// Run dispatches until ctx is cancelled, every target is removed, or the
// substrate fails. Cancellation drains in-flight units and returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.active() == 0 {
		return ErrNoActiveTargets
	}

	if d.lanes.Len() == 0 {
		return errs.NewConfigurationError("credentials", "no lanes available: at least one credential set is required")
	}
	size := min(d.lanes.Len(), d.active(), d.opts.Workers)

	wp := NewWorkerPool(d.opts.WorkContext, size, d.runner, d.logger)
	wp.Start()

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.logger.InfoWithFields("Dispatcher started", map[string]interface{}{
		"targets": len(d.ids),
		"active":  d.active(),
		"lanes":   d.lanes.Len(),
		"size":    size,
	})

	for {
		if ctx.Err() != nil {
			d.logger.Info("Interrupt received, draining in-flight units")
			return d.drain(wp, nil)
		}
		if wp.Broken() || d.failure != nil {
			d.logger.WithError(d.failure).Error("Substrate failure, draining before restart")
			return d.drain(wp, ErrSubstrateFailure)
		}

		if len(d.inFlight) >= size || d.lanes.Available() == 0 {
			d.wait(ctx, wp, ticker.C)
			continue
		}

		id, ok := d.next()
		if !ok {
			if len(d.inFlight) == 0 {
				wp.Stop()
				d.logger.Warn("Every target has been removed")
				return ErrNoActiveTargets
			}
			// idle pass: nothing eligible until something completes
			d.wait(ctx, wp, nil)
			continue
		}

		lane, _ := d.lanes.Acquire()
		task := Task{
			ID:     uuid.NewString(),
			Target: d.backlog[id],
			Lane:   lane,
			Now:    d.opts.Clock(),
		}
		if err := wp.Submit(task); err != nil {
			d.lanes.Release(lane)
			d.failure = err
			continue
		}
		d.inFlight[id] = lane
		inFlightGauge.Set(float64(len(d.inFlight)))
	}
}

// wait blocks for a completion, a poll tick, or cancellation. A nil tick
// channel waits for a completion only.
func (d *Dispatcher) wait(ctx context.Context, wp *WorkerPool, tick <-chan time.Time) {
	select {
	case c := <-wp.Results():
		d.complete(c)
	case <-tick:
		if d.lanes.Available() == 0 {
			d.logger.DebugWithFields("No lane available, waiting", map[string]interface{}{
				"in_flight": len(d.inFlight),
			})
		}
	case <-ctx.Done():
	}
}

// drain receives every outstanding completion, then stops the pool
func (d *Dispatcher) drain(wp *WorkerPool, result error) error {
	for len(d.inFlight) > 0 {
		d.complete(<-wp.Results())
	}
	wp.Stop()
	d.logger.Info("Dispatcher stopped")
	return result
}

// next picks the next eligible target: queued retries first, then the
// round-robin cursor, visiting each id at most once per call
func (d *Dispatcher) next() (string, bool) {
	for len(d.retryQ) > 0 {
		id := d.retryQ[0]
		d.retryQ = d.retryQ[1:]
		if d.eligible(id) {
			return id, true
		}
	}

	for range d.ids {
		id := d.ids[d.cursor]
		d.cursor = (d.cursor + 1) % len(d.ids)
		if d.cursor == 0 {
			clear(d.requeued)
		}
		if d.eligible(id) {
			return id, true
		}
	}
	return "", false
}

func (d *Dispatcher) eligible(id string) bool {
	if _, busy := d.inFlight[id]; busy {
		return false
	}
	return !d.backlog[id].Removed
}

// complete merges a unit's result, commits it and only then frees the lane
func (d *Dispatcher) complete(c Completion) {
	id := c.Task.Target.ID
	lane := d.inFlight[id]
	delete(d.inFlight, id)
	inFlightGauge.Set(float64(len(d.inFlight)))
	unitDuration.Observe(c.Duration.Seconds())

	prev := d.backlog[id]
	t := c.Result.Target
	if c.Err != nil {
		t = c.Task.Target
	}
	t.ID = id
	t.Kind = prev.Kind
	if t.SinceID < prev.SinceID {
		t.SinceID = prev.SinceID
	}
	t.Removed = prev.Removed || t.Removed || c.Result.Remove
	d.backlog[id] = t

	outcome := outcomeOf(c)
	completionsTotal.WithLabelValues(outcome).Inc()
	d.logger.InfoWithFields("Unit completed", map[string]interface{}{
		"task":     c.Task.ID,
		"target":   id,
		"lane":     lane.Name(),
		"outcome":  outcome,
		"since_id": t.SinceID,
		"records":  c.Result.Records,
		"duration": c.Duration,
	})

	if err := d.store.Commit(d.opts.WorkContext, id, t); err != nil {
		d.logger.WithError(err).ErrorWithFields("Progress commit failed", map[string]interface{}{
			"target": id,
		})
		if d.failure == nil {
			d.failure = err
		}
	}

	if err := d.lanes.Release(lane); err != nil {
		d.logger.WithError(err).ErrorWithFields("Lane release failed", map[string]interface{}{
			"target": id,
		})
	}

	if c.Result.Retry && !t.Removed && !d.requeued[id] {
		d.requeued[id] = true
		d.retryQ = append(d.retryQ, id)
	}
}

func (d *Dispatcher) active() int {
	n := 0
	for _, t := range d.backlog {
		if !t.Removed {
			n++
		}
	}
	return n
}

func outcomeOf(c Completion) string {
	switch {
	case c.Err != nil:
		return "crashed"
	case c.Result.Remove:
		return "removed"
	case c.Result.Retry:
		return "retry"
	case c.Result.Err != nil:
		return "failed"
	default:
		return "completed"
	}
}
