package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/retry"
)

// Loader reads the persisted backlog
type Loader interface {
	Load() (map[string]models.Target, error)
}

// Builder creates a fresh dispatcher over a loaded backlog
type Builder func(targets map[string]models.Target) *Dispatcher

// Supervisor restarts the dispatcher from the progress store whenever
// the execution substrate fails
type Supervisor struct {
	loader       Loader
	build        Builder
	restartDelay time.Duration
	sleep        retry.Sleeper
	logger       logger.Logger
	restarts     int
}

// NewSupervisor creates a supervisor. A zero restartDelay restarts immediately.
func NewSupervisor(loader Loader, build Builder, restartDelay time.Duration, log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Supervisor{
		loader:       loader,
		build:        build,
		restartDelay: restartDelay,
		sleep:        retry.Wait,
		logger:       log.WithField("component", "supervisor"),
	}
}

// WithSleeper replaces the restart delay sleeper
func (s *Supervisor) WithSleeper(sleep retry.Sleeper) *Supervisor {
	s.sleep = sleep
	return s
}

// Restarts returns how many times the dispatcher was rebuilt
func (s *Supervisor) Restarts() int {
	return s.restarts
}

// Run drives dispatchers until ctx is cancelled or a non-recoverable
// error occurs. Every generation resumes from the persisted progress.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		targets, err := s.loader.Load()
		if err != nil {
			return err
		}

		d := s.build(targets)
		s.logger.InfoWithFields("Dispatcher generation starting", map[string]interface{}{
			"run_id":   d.RunID(),
			"restarts": s.restarts,
		})

		err = d.Run(ctx)
		switch {
		case err == nil || ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrSubstrateFailure):
			s.restarts++
			restartsTotal.Inc()
			s.logger.WithError(err).WarnWithFields("Restarting dispatcher from progress store", map[string]interface{}{
				"restarts": s.restarts,
				"delay":    s.restartDelay,
			})
			if s.restartDelay > 0 {
				if err := s.sleep(ctx, s.restartDelay); err != nil {
					return nil
				}
			}
		default:
			return err
		}
	}
}
