package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/liveagent/internal/agent"
	"github.com/sawpanic/liveagent/internal/config"
	"github.com/sawpanic/liveagent/internal/dbhealth"
	"github.com/sawpanic/liveagent/internal/exchange"
	"github.com/sawpanic/liveagent/internal/metrics"
	"github.com/sawpanic/liveagent/internal/monitor"
	"github.com/sawpanic/liveagent/internal/notify"
	"github.com/sawpanic/liveagent/internal/recovery"
	"github.com/sawpanic/liveagent/internal/risk"
	"github.com/sawpanic/liveagent/internal/state"
)

// wiring holds the assembled collaborators shared by the subcommands.
type wiring struct {
	cfg       config.Config
	gateway   exchange.Gateway
	db        dbhealth.Checker
	store     *state.Store
	risk      *risk.Manager
	sink      notify.Sink
	collector metrics.Collector
	registry  *prometheus.Registry
	closers   []func() error
}

func buildWiring(cmd *cobra.Command) (*wiring, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewPromCollector(registry)

	var sink notify.Sink = notify.LogSink{}
	if cfg.Monitor.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Monitor.WebhookURL)
	}

	w := &wiring{cfg: cfg, sink: sink, collector: collector, registry: registry}

	capital, err := cfg.InitialCapital()
	if err != nil {
		return nil, err
	}

	if cfg.Exchange.PaperTrading {
		log.Info().Msg("Running in paper trading mode")
		paper := exchange.NewPaperGateway(cfg.Trading.QuoteCurrency, capital)
		guard := exchange.DefaultGuardConfig(cfg.Exchange.ID)
		guard.RequestsPerSecond = cfg.Exchange.RateLimitRPS
		w.gateway = exchange.NewGuardedGateway(paper, guard)
	} else {
		// The live venue client ships separately; this build only
		// carries the paper venue.
		return nil, fmt.Errorf("exchange %q: live trading requires a venue client; set exchange.paper_trading", cfg.Exchange.ID)
	}

	if cfg.Database.DSN != "" {
		checker, err := dbhealth.Open(cfg.Database.DSN, cfg.Database.QueryTimeout)
		if err != nil {
			return nil, err
		}
		w.db = checker
		w.closers = append(w.closers, checker.Close)
	} else {
		log.Warn().Msg("No database DSN configured; health checks pass unconditionally")
		w.db = dbhealth.NopChecker{}
	}

	store, err := state.NewStore(cfg.State.Path, cfg.State.BackupDir)
	if err != nil {
		return nil, err
	}
	w.store = store

	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}
	riskMgr, err := risk.NewManager(risk.ManagerConfig{
		InitialCapital: capital,
		Limits:         limits,
		Metrics:        collector,
		Sink:           sink,
		LedgerPath:     cfg.State.LedgerPath,
	})
	if err != nil {
		return nil, err
	}
	w.risk = riskMgr

	return w, nil
}

func (w *wiring) close() {
	for _, fn := range w.closers {
		if err := fn(); err != nil {
			log.Error().Err(err).Msg("Failed to close resource")
		}
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	w, err := buildWiring(cmd)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := agent.New(agent.DefaultConfig(), w.gateway, w.db, w.store, w.risk, w.sink, w.collector)
	if err := a.Startup(ctx); err != nil {
		return err
	}

	mon := monitor.New(w.sink, w.collector)
	server := monitor.NewServer(w.cfg.Monitor.ListenAddr, mon, w.registry)
	go func() {
		log.Info().Str("addr", w.cfg.Monitor.ListenAddr).Msg("Monitoring server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Monitoring server failed")
		}
	}()
	go mon.Run(ctx, 5*time.Minute)

	stopInterval, _ := cmd.Flags().GetDuration("stop-interval")
	ticker := time.NewTicker(stopInterval)
	defer ticker.Stop()

	log.Info().Msg("Agent running; press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Shutdown completed with errors")
			}
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			a.CheckStops(ctx)
		}
	}
}

func runRecover(cmd *cobra.Command, args []string) error {
	w, err := buildWiring(cmd)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := recovery.New(w.gateway, w.db, w.store, w.sink, w.collector)
	if err := coord.Run(ctx); err != nil {
		return err
	}

	fmt.Printf("Recovery complete: %d open positions", w.store.Len())
	if flagged := coord.Inconsistent(); len(flagged) > 0 {
		fmt.Printf(", %d flagged for manual review: %v", len(flagged), flagged)
	}
	fmt.Println()
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	w, err := buildWiring(cmd)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(w.sink, w.collector)
	server := monitor.NewServer(w.cfg.Monitor.ListenAddr, mon, w.registry)
	go mon.Run(ctx, 5*time.Minute)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", w.cfg.Monitor.ListenAddr).Msg("Monitoring server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
