package dictionary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Syncer is the entry point shared by the scheduler, the HTTP trigger and the CLI.
type Syncer interface {
	SyncNow(ctx context.Context) (*SyncResult, error)
}

// Scheduler runs Syncer.SyncNow on a cron schedule. Errors are logged and
// never stop the schedule.
type Scheduler struct {
	cron    *cron.Cron
	syncer  Syncer
	timeout time.Duration
	logger  zerolog.Logger
	entry   cron.EntryID

	// triggered tracks runs started by Trigger.
	triggered sync.WaitGroup
}

// NewScheduler parses spec as a standard five-field cron expression in the
// local time zone. timeout bounds each run.
func NewScheduler(syncer Syncer, spec string, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncer:  syncer,
		timeout: timeout,
		logger:  logger,
	}
	id, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("schedule dictionary sync %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Time("next_run", s.Next()).Msg("dictionary sync scheduled")
}

// Trigger starts one run outside the schedule without waiting for it.
// Stop accounts for it like a scheduled run.
func (s *Scheduler) Trigger() {
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		s.RunOnce(context.Background())
	}()
}

// Stop halts the timer. In-flight runs, scheduled or triggered, are not
// interrupted; the returned context is done once all of them have finished.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.triggered.Wait()
		cancel()
	}()
	return ctx
}

// Next returns the time of the next scheduled run, or zero if not started.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunOnce performs one sync bounded by the scheduler timeout. Cancellation
// of ctx is ignored so that a started sync always runs to completion.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	res, err := s.syncer.SyncNow(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Info().Msg("dictionary sync already running, scheduled run skipped")
	case err != nil:
		// SyncNow has already logged the failing stage.
		s.logger.Debug().Err(err).Msg("scheduled dictionary sync failed")
	default:
		s.logger.Debug().Str("outcome", string(res.Outcome)).Int("updated", res.Updated).Msg("scheduled dictionary sync finished")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
