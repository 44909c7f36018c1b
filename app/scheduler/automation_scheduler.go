// Package scheduler runs the periodic automation trigger tick and the completion sweep
package scheduler

import (
	"context"
	"fmt"
	"time"

	businessflow "github.com/amirphl/wedding-automations/business_flow"
	"github.com/amirphl/wedding-automations/config"
	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	jobTrigger = "trigger_due"
	jobSweep   = "sweep"
)

// AutomationScheduler fires due automations and sweeps in-progress ones on cron schedules
type AutomationScheduler struct {
	flow   businessflow.AutomationFlow
	cfg    config.SchedulerConfig
	parser cron.Parser
	logger zerolog.Logger
}

func NewAutomationScheduler(flow businessflow.AutomationFlow, cfg config.SchedulerConfig, logger zerolog.Logger) *AutomationScheduler {
	return &AutomationScheduler{
		flow:   flow,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers both jobs and returns a stop function that waits for running jobs to return
func (s *AutomationScheduler) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	register := func(name, spec string, run func(context.Context) (int, error)) error {
		_, err := c.AddFunc(spec, func() { s.runJob(ctx, name, run) })
		if err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
		return nil
	}

	if err := register(jobTrigger, s.cfg.TriggerSpec, s.flow.TriggerDue); err != nil {
		cancel()
		return nil, err
	}
	if err := register(jobSweep, s.cfg.SweepSpec, s.flow.Sweep); err != nil {
		cancel()
		return nil, err
	}

	c.Start()
	s.logger.Info().
		Str("trigger_spec", s.cfg.TriggerSpec).
		Str("sweep_spec", s.cfg.SweepSpec).
		Msg("scheduler started")

	return func() {
		cancel()
		<-c.Stop().Done()
		s.logger.Info().Msg("scheduler stopped")
	}, nil
}

// RunOnce runs both jobs synchronously, trigger first
func (s *AutomationScheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, jobTrigger, s.flow.TriggerDue)
	s.runJob(ctx, jobSweep, s.flow.Sweep)
}

func (s *AutomationScheduler) runJob(ctx context.Context, name string, run func(context.Context) (int, error)) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	n, err := run(ctx)
	log := s.logger.With().Str("job", name).Dur("took", time.Since(start)).Int("count", n).Logger()

	if err != nil {
		log.Error().Err(err).Msg("scheduled job failed")
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("job", name)
			sentry.CaptureException(err)
		})
		return
	}
	if n > 0 {
		log.Info().Msg("scheduled job finished")
		return
	}
	log.Debug().Msg("scheduled job finished")
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
