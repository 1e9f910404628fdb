// Package schedule runs the sync job on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/NewsSync/internal/logger"
)

// RunFunc is one scheduled unit of work.
type RunFunc func(ctx context.Context) error

// parser accepts standard 5-field expressions and descriptors like "@every 1h".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler triggers a RunFunc on a schedule. A trigger that fires while the
// previous run is still going is skipped, and a panicking run is recovered.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	job      cron.Job
	run      RunFunc
	log      logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New parses spec and prepares a scheduler for run.
func New(spec string, run RunFunc, log logger.Logger) (*Scheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithLogger(cl)),
		schedule: schedule,
		spec:     spec,
		run:      run,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.job = cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(s.runOnce))
	return s, nil
}

// Start begins triggering runs in the background.
func (s *Scheduler) Start() {
	s.cron.Schedule(s.schedule, s.job)
	s.cron.Start()
	s.log.Info("Scheduler started",
		logger.String("schedule", s.spec),
		logger.String("next_run", s.Next(time.Now()).Format(time.RFC3339)))
}

// RunNow runs the job immediately and waits for it.
func (s *Scheduler) RunNow() {
	s.job.Run()
}

// Next returns the first trigger time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.run(s.ctx); err != nil {
		s.log.Error("Scheduled run failed", logger.Error(err))
	}
	s.log.Info("Scheduled run finished",
		logger.Duration("duration", time.Since(start)),
		logger.String("next_run", s.Next(time.Now()).Format(time.RFC3339)))
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
