package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/crawler"
	"github.com/XinsongDu/Twitter-Tracker/pkg/lanes"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

// memStore is an in-memory progress store
type memStore struct {
	mu        sync.Mutex
	targets   map[string]models.Target
	commits   []string
	commitErr error
	onCommit  func(n int)
}

func newMemStore(targets ...models.Target) *memStore {
	s := &memStore{targets: make(map[string]models.Target)}
	for _, t := range targets {
		s.targets[t.ID] = t
	}
	return s
}

func (s *memStore) Load() (map[string]models.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Target, len(s.targets))
	for k, v := range s.targets {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Commit(_ context.Context, id string, t models.Target) error {
	s.mu.Lock()
	if s.commitErr != nil {
		s.mu.Unlock()
		return s.commitErr
	}
	s.targets[id] = t
	s.commits = append(s.commits, id)
	n := len(s.commits)
	hook := s.onCommit
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (s *memStore) get(id string) models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets[id]
}

func (s *memStore) commitOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commits...)
}

func timelineTargets(n int) []models.Target {
	out := make([]models.Target, n)
	for i := range out {
		out[i] = models.Target{ID: fmt.Sprintf("%d", i+1), Kind: models.KindUser, UserID: int64(i + 1)}
	}
	return out
}

func lanePool(n int) *lanes.Pool {
	creds := make([]auth.CredentialSet, n)
	for i := range creds {
		creds[i] = auth.CredentialSet{Name: fmt.Sprintf("key%d", i)}
	}
	return lanes.NewPool(lanes.Partition(creds, nil))
}

func newTestDispatcher(store *memStore, pool *lanes.Pool, runner Runner, workers int) *Dispatcher {
	targets, _ := store.Load()
	return New(store, pool, runner, targets, Options{
		Workers:      workers,
		PollInterval: 5 * time.Millisecond,
	}, logger.NewNopLogger())
}

func TestDispatcherLaneExclusivity(t *testing.T) {
	store := newMemStore(timelineTargets(6)...)
	pool := lanePool(3)

	var mu sync.Mutex
	busy := map[string]bool{}
	violations := 0
	maxConcurrent, current := 0, 0

	runner := runnerFunc(func(_ context.Context, target models.Target, lane *lanes.Lane, _ time.Time) crawler.Result {
		mu.Lock()
		if busy[lane.Name()] {
			violations++
		}
		busy[lane.Name()] = true
		current++
		maxConcurrent = max(maxConcurrent, current)
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		busy[lane.Name()] = false
		current--
		mu.Unlock()

		target.SinceID += 10
		return crawler.Result{Target: target}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onCommit = func(n int) {
		if n >= 30 {
			cancel()
		}
	}

	err := newTestDispatcher(store, pool, runner, 8).Run(ctx)
	require.NoError(t, err)

	assert.Zero(t, violations)
	assert.LessOrEqual(t, maxConcurrent, 3)
	assert.Equal(t, 3, pool.Available(), "every lane returned after drain")
	assert.GreaterOrEqual(t, len(store.commitOrder()), 30)
}

func TestDispatcherRoundRobin(t *testing.T) {
	store := newMemStore(timelineTargets(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onCommit = func(n int) {
		if n >= 7 {
			cancel()
		}
	}

	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		return crawler.Result{Target: target}
	})

	require.NoError(t, newTestDispatcher(store, lanePool(1), runner, 4).Run(ctx))
	assert.Equal(t, []string{"1", "2", "3", "1", "2", "3", "1"}, store.commitOrder()[:7])
}

func TestDispatcherWatermarkNeverRegresses(t *testing.T) {
	start := models.Target{ID: "1", Kind: models.KindUser, UserID: 1, SinceID: 500}
	store := newMemStore(start)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onCommit = func(n int) {
		if n >= 3 {
			cancel()
		}
	}

	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		target.SinceID = 100
		return crawler.Result{Target: target}
	})

	require.NoError(t, newTestDispatcher(store, lanePool(1), runner, 1).Run(ctx))
	assert.Equal(t, int64(500), store.get("1").SinceID)
}

func TestDispatcherRemovesTargets(t *testing.T) {
	targets := timelineTargets(3)
	targets[2].Removed = true
	store := newMemStore(targets...)

	var mu sync.Mutex
	seen := map[string]int{}
	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		mu.Lock()
		seen[target.ID]++
		mu.Unlock()
		return crawler.Result{Target: target, Remove: true}
	})

	err := newTestDispatcher(store, lanePool(2), runner, 2).Run(context.Background())
	require.ErrorIs(t, err, ErrNoActiveTargets)

	assert.Equal(t, map[string]int{"1": 1, "2": 1}, seen)
	assert.True(t, store.get("1").Removed)
	assert.True(t, store.get("2").Removed)
	assert.True(t, store.get("3").Removed, "removed targets are retained")
}

func TestDispatcherNoActiveTargets(t *testing.T) {
	targets := timelineTargets(2)
	for i := range targets {
		targets[i].Removed = true
	}
	store := newMemStore(targets...)

	runner := runnerFunc(func(context.Context, models.Target, *lanes.Lane, time.Time) crawler.Result {
		t.Fatal("removed targets must not run")
		return crawler.Result{}
	})

	err := newTestDispatcher(store, lanePool(1), runner, 1).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveTargets)
}

func TestDispatcherDrainsOnInterrupt(t *testing.T) {
	store := newMemStore(timelineTargets(2)...)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		started <- struct{}{}
		<-release
		target.SinceID = 42
		return crawler.Result{Target: target}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newTestDispatcher(store, lanePool(2), runner, 2).Run(ctx)
	}()

	<-started
	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("dispatcher returned before in-flight units finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, int64(42), store.get("1").SinceID)
	assert.Equal(t, int64(42), store.get("2").SinceID)
	assert.Len(t, store.commitOrder(), 2)
}

func TestDispatcherRetryRequeuesOncePerPass(t *testing.T) {
	store := newMemStore(timelineTargets(2)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onCommit = func(n int) {
		if n >= 4 {
			cancel()
		}
	}

	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		return crawler.Result{Target: target, Retry: target.ID == "1"}
	})

	require.NoError(t, newTestDispatcher(store, lanePool(1), runner, 1).Run(ctx))
	assert.Equal(t, []string{"1", "1", "2", "1"}, store.commitOrder()[:4])
}

func TestDispatcherCrashIsSubstrateFailure(t *testing.T) {
	store := newMemStore(models.Target{ID: "1", Kind: models.KindUser, UserID: 1, SinceID: 9})
	pool := lanePool(1)

	runner := runnerFunc(func(context.Context, models.Target, *lanes.Lane, time.Time) crawler.Result {
		panic("executor died")
	})

	err := newTestDispatcher(store, pool, runner, 1).Run(context.Background())
	require.ErrorIs(t, err, ErrSubstrateFailure)
	assert.Equal(t, int64(9), store.get("1").SinceID)
	assert.Equal(t, 1, pool.Available())
}

func TestDispatcherCommitFailureIsSubstrateFailure(t *testing.T) {
	store := newMemStore(timelineTargets(1)...)
	store.commitErr = errors.New("disk full")

	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		return crawler.Result{Target: target}
	})

	err := newTestDispatcher(store, lanePool(1), runner, 1).Run(context.Background())
	assert.ErrorIs(t, err, ErrSubstrateFailure)
}

func TestDispatcherSizesWorkersByMinimum(t *testing.T) {
	store := newMemStore(timelineTargets(4)...)

	var mu sync.Mutex
	current, peak := 0, 0
	runner := runnerFunc(func(_ context.Context, target models.Target, _ *lanes.Lane, _ time.Time) crawler.Result {
		mu.Lock()
		current++
		peak = max(peak, current)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return crawler.Result{Target: target}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onCommit = func(n int) {
		if n >= 12 {
			cancel()
		}
	}

	require.NoError(t, newTestDispatcher(store, lanePool(3), runner, 2).Run(ctx))
	assert.LessOrEqual(t, peak, 2)
}
