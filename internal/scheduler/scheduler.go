package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"MirrorTrade/internal/engine"
	"MirrorTrade/internal/notifier"
)

// Scheduler drives the polling tick and the session maintenance jobs.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *engine.Engine
	Notifier *notifier.TelegramNotifier
	Ctx      context.Context
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler. The tick job is wrapped with
// SkipIfStillRunning so no two ticks are ever in flight together; the
// engine's own lock orders ticks against operator resets.
func NewScheduler(ctx context.Context, eng *engine.Engine, tn *notifier.TelegramNotifier, log zerolog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		Engine:   eng,
		Notifier: tn,
		Ctx:      ctx,
		log:      log,
	}
}

// RegisterAll registers the polling tick, the session cache reset, and the
// end-of-day flat audit.
func (s *Scheduler) RegisterAll(pollCron, sessionResetCron, eodAuditCron string) error {
	if _, err := s.Cron.AddFunc(pollCron, s.tick); err != nil {
		return fmt.Errorf("register poll tick: %w", err)
	}
	if _, err := s.Cron.AddFunc(sessionResetCron, func() {
		s.Engine.ResetSession()
	}); err != nil {
		return fmt.Errorf("register session reset: %w", err)
	}
	if _, err := s.Cron.AddFunc(eodAuditCron, s.eodAudit); err != nil {
		return fmt.Errorf("register eod audit: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and returns a context that is done once the
// in-flight tick (if any) has finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.Cron.Stop()
	s.log.Info().Msg("scheduler stopping")
	return ctx
}

func (s *Scheduler) tick() {
	res := s.Engine.Tick(s.Ctx)
	if res.Skipped {
		return
	}
	if res.RatioFrozen {
		st := s.Engine.StrategyState()
		s.trySend("🚀 <b>Replication started</b>\n\n" + notifier.FormatStrategyState(&st))
	}
	if len(res.Failures) > 0 {
		s.trySend(notifier.FormatOrderFailures(string(res.Classification), res.Failures))
	}
	if res.Cleared {
		s.trySend("🏁 <b>Replication cycle closed</b>\nMaster flat, children reconciled.")
	}
}

func (s *Scheduler) eodAudit() {
	res := s.Engine.EndOfDayAudit(s.Ctx)
	if res.Classification == engine.ClassFlatReconcile && res.Cleared {
		s.trySend("🌙 <b>End of day</b>\nStale active strategy reconciled and cleared.")
	}
}

// HandleCommand processes an operator command and returns a reply. The
// reset command is queued and consumed at a safe point between ticks.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		st := s.Engine.StrategyState()
		return notifier.FormatStrategyState(&st)
	case "/reset":
		s.Engine.RequestReset()
		return "♻️ Reset queued; applied before the next tick."
	default:
		return "Commands:\n• /status — current strategy state\n• /reset — clear strategy state"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Interface("kv", keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Interface("kv", keysAndValues).Msg(msg)
}
