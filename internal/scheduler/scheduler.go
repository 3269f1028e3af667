package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CryptoSentinel/internal/notifier"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs housekeeping cron jobs around the orchestrator and answers
// operator commands.
type Scheduler struct {
	Cron      *cron.Cron
	Orch      *Orchestrator
	Retention time.Duration
	Ctx       context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, orch *Orchestrator, retention time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Orch:      orch,
		Retention: retention,
		Ctx:       ctx,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterAll registers the daily report and the prune job.
func (s *Scheduler) RegisterAll(dailyReportCron, pruneCron string) error {
	if _, err := s.Cron.AddFunc(dailyReportCron, s.dailyReport); err != nil {
		return fmt.Errorf("register daily report: %w", err)
	}
	if _, err := s.Cron.AddFunc(pruneCron, s.prune); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) dailyReport() {
	s.log.Info().Msg("running daily report")
	s.trySend(s.report())
}

func (s *Scheduler) report() string {
	prices := s.Orch.Market.LatestPrices(s.Ctx)
	stats, err := s.Orch.Recorder.PerformanceStats()
	if err != nil {
		s.log.Error().Err(err).Msg("load performance stats")
	}
	return notifier.FormatDailyReport(
		s.Orch.Ledger.State(prices),
		s.Orch.Ledger.Details(prices),
		stats,
		len(s.Orch.Plans.Active()),
	)
}

func (s *Scheduler) prune() {
	cutoff := time.Now().Add(-s.Retention)
	n, err := s.Orch.Recorder.Prune(cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("prune old records")
		return
	}
	s.log.Info().Int64("deleted", n).Time("before", cutoff).Msg("old records pruned")
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i] // "/status@SentinelBot"
	}
	switch cmd {
	case "/status":
		prices := s.Orch.Market.LatestPrices(s.Ctx)
		return notifier.FormatStatus(s.Orch.Ledger.State(prices), s.Orch.Ledger.Details(prices))
	case "/positions":
		prices := s.Orch.Market.LatestPrices(s.Ctx)
		return notifier.FormatPositions(s.Orch.Ledger.Details(prices))
	case "/plans":
		return notifier.FormatPlans(s.Orch.Plans.Active())
	case "/stats":
		stats, err := s.Orch.Recorder.PerformanceStats()
		if err != nil {
			return "❌ stats unavailable: " + err.Error()
		}
		return notifier.FormatStats(stats)
	case "/report":
		return s.report()
	default:
		return "Commands:\n/status\n/positions\n/plans\n/stats\n/report"
	}
}

func (s *Scheduler) trySend(text string) {
	tn, ok := s.Orch.Notifier.(*notifier.TelegramNotifier)
	if !ok {
		if err := s.Orch.Notifier.Send(text); err != nil {
			s.log.Error().Err(err).Msg("send notification")
		}
		return
	}
	if err := tn.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
