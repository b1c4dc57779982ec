package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XinsongDu/Twitter-Tracker/pkg/crawler"
	"github.com/XinsongDu/Twitter-Tracker/pkg/lanes"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

// ErrWorkerCrashed is reported for a unit whose run panicked
var ErrWorkerCrashed = errors.New("worker crashed")

// Task is one pagination run handed to a worker
type Task struct {
	ID     string
	Target models.Target
	Lane   *lanes.Lane
	Now    time.Time
}

// Completion reports a finished task
type Completion struct {
	Task     Task
	Result   crawler.Result
	Err      error
	Duration time.Duration
}

// Runner executes a single pagination run
type Runner interface {
	Run(ctx context.Context, target models.Target, lane *lanes.Lane, now time.Time) crawler.Result
}

// WorkerPool runs tasks on a fixed number of goroutines. Tasks run under
// the work context, which only a hard stop cancels.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Task
	resultQueue chan Completion
	wg          sync.WaitGroup
	workCtx     context.Context
	runner      Runner
	logger      logger.Logger

	broken   atomic.Bool
	stopOnce sync.Once
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workCtx context.Context, numWorkers int, runner Runner, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Task, numWorkers),
		resultQueue: make(chan Completion, numWorkers),
		workCtx:     workCtx,
		runner:      runner,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue and waits for the workers. Every submitted task
// must have had its completion received first.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Debug("Stopping worker pool...")
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.logger.Debug("Worker pool stopped")
	})
}

// Submit queues a task. The caller keeps at most numWorkers tasks in
// flight, so this never blocks.
func (wp *WorkerPool) Submit(task Task) error {
	select {
	case wp.jobQueue <- task:
		wp.logger.DebugWithFields("Task submitted to queue", map[string]interface{}{
			"task":   task.ID,
			"target": task.Target.ID,
			"lane":   task.Lane.Name(),
		})
		return nil
	default:
		return fmt.Errorf("worker pool queue is full")
	}
}

// Results returns the completion channel
func (wp *WorkerPool) Results() <-chan Completion {
	return wp.resultQueue
}

// Broken reports whether any unit crashed
func (wp *WorkerPool) Broken() bool {
	return wp.broken.Load()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.jobQueue {
		wp.resultQueue <- wp.process(task, id)
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// process runs one task, turning a panic into a crashed completion
func (wp *WorkerPool) process(task Task, workerID int) (c Completion) {
	start := time.Now()
	c.Task = task

	defer func() {
		if r := recover(); r != nil {
			wp.broken.Store(true)
			c.Result = crawler.Result{Target: task.Target}
			c.Err = fmt.Errorf("%w: %v", ErrWorkerCrashed, r)
			c.Duration = time.Since(start)
			wp.logger.ErrorWithFields("Worker crashed", map[string]interface{}{
				"worker_id": workerID,
				"target":    task.Target.ID,
				"panic":     fmt.Sprint(r),
			})
		}
	}()

	wp.logger.DebugWithFields("Worker processing task", map[string]interface{}{
		"worker_id": workerID,
		"target":    task.Target.ID,
	})

	c.Result = wp.runner.Run(wp.workCtx, task.Target, task.Lane, task.Now)
	c.Duration = time.Since(start)
	return c
}
