package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"CryptoSentinel/internal/collector"
	"CryptoSentinel/internal/config"
	"CryptoSentinel/internal/decision"
	"CryptoSentinel/internal/exitplan"
	"CryptoSentinel/internal/ledger"
	"CryptoSentinel/internal/logger"
	"CryptoSentinel/internal/metrics"
	"CryptoSentinel/internal/notifier"
	"CryptoSentinel/internal/publisher"
	"CryptoSentinel/internal/scheduler"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading loop",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, base, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Component(base, "bot")
	log.Info().Strs("symbols", cfg.Trading.Symbols).Msg("sentinel starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Market data
	fetcher := newFetcher(cfg)
	log.Info().Str("source", fetcher.Name()).Msg("market data source")
	store := collector.NewCandleStore()
	cache := collector.NewPriceCache()
	col := collector.NewCollector(fetcher, store, cache, cfg.Trading.Symbols, base)
	col.PriceMaxAge = cfg.PriceMaxAge()

	var wg sync.WaitGroup
	for _, p := range newPollers(cfg, fetcher, store, base) {
		p.Metrics = m
		wg.Add(1)
		go func(p *collector.Poller) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}
	if cfg.MarketData.Stream && !cfg.MarketData.Mock {
		ps := collector.NewPriceStream(cfg.MarketData.StreamURL, cfg.Trading.Symbols, cfg.MarketData.QuoteAsset, cache, base)
		ps.Metrics = m
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps.Run(ctx)
		}()
	}

	// Persistence and ledger
	rec := openRecorder(cfg, base)
	defer rec.Close()

	l, err := ledger.New(cfg.Trading.StateFile, cfg.Trading.InitialBalance, base)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	plans := exitplan.NewEngine(rec, base)
	if active, err := rec.ActiveExitPlans(); err != nil {
		log.Warn().Err(err).Msg("load active exit plans")
	} else {
		plans.Restore(active)
		log.Info().Int("plans", len(plans.Active())).Msg("exit plans restored")
	}

	// Collaborators
	maker := newMaker(cfg, base)

	var tn *notifier.TelegramNotifier
	var note notifier.Notifier = notifier.Nop{}
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, base)
		note = tn
	}

	var pub publisher.Publisher = publisher.Nop{}
	if cfg.Redis.Addr != "" {
		rp, err := publisher.NewRedis(publisher.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.SnapshotTTL(),
		}, base)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, snapshots will not be published")
		} else {
			pub = rp
		}
	}
	defer pub.Close()

	orch := scheduler.NewOrchestrator(col, l, plans, maker, orchestratorOptions(cfg), base)
	orch.Recorder = rec
	orch.Notifier = note
	orch.Publisher = pub
	orch.Metrics = m

	var srv *metrics.Server
	if cfg.Metrics.Addr != "" {
		srv = metrics.Serve(cfg.Metrics.Addr, m, orch.Health)
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server started")
	}

	sched := scheduler.NewScheduler(ctx, orch, cfg.Retention(), base)
	if err := sched.RegisterAll(cfg.Schedule.DailyReportCron, cfg.Schedule.PruneCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	log.Info().Msg("sentinel running, press Ctrl+C to stop")
	err = orch.Run(ctx)

	log.Info().Msg("shutdown signal received, stopping")
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = srv.Shutdown(sctx)
		cancel()
	}
	wg.Wait()
	log.Info().Msg("sentinel stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMaker(cfg *config.Config, log zerolog.Logger) decision.Maker {
	if cfg.Decision.BaseURL == "" {
		log.Warn().Msg("decision.base_url not set, every cycle will hold")
		return decision.HoldMaker{}
	}
	return decision.NewHTTPMaker(
		cfg.Decision.BaseURL,
		cfg.Decision.APIKey,
		cfg.Decision.Model,
		cfg.Trading.MaxLeverage,
		cfg.DecisionTimeout(),
		log,
	)
}

func orchestratorOptions(cfg *config.Config) scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.Interval = cfg.CycleInterval()
	opts.MaxLeverage = cfg.Trading.MaxLeverage
	opts.MaxConsecutiveErrors = cfg.Trading.MaxConsecutiveErrors
	return opts
}
