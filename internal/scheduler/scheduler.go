// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	applogger "StockPulse/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled job.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs. A run still in progress when its next
// tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	log    *applogger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Schedules accept an optional seconds field and
// descriptors such as "@every 15m".
func New(log *applogger.Logger) *Scheduler {
	if log == nil {
		log = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:    log.With(applogger.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", applogger.Error(ctx.Err()))
	}
}

// AddJob registers job on schedule, e.g. "0 */5 * * * *", "@hourly", "@every 30s".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.execute(job)
	})
	if err != nil {
		return err
	}

	s.log.Info("job registered",
		applogger.String("schedule", schedule),
		applogger.String("job", job.Name()),
	)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info("running job immediately", applogger.String("job", job.Name()))
	return job.Run(s.ctx)
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	s.log.Debug("running job", applogger.String("job", job.Name()))

	if err := job.Run(s.ctx); err != nil {
		s.log.Error("job failed",
			applogger.String("job", job.Name()),
			applogger.Duration("duration", time.Since(start)),
			applogger.Error(err),
		)
		return
	}
	s.log.Debug("job completed",
		applogger.String("job", job.Name()),
		applogger.Duration("duration", time.Since(start)),
	)
}
