package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "liveagent"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Live trading agent with crash recovery and risk control",
		Version: version,
		Long: `liveagent is a continuously running trading agent core: durable trade
state, exchange reconciliation after restarts, and a risk engine gating
every position-opening decision.`,
	}
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to YAML configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Recover state and run the trading agent",
		Long:  "Runs crash recovery against the exchange, then serves the trading loop and monitoring endpoints until interrupted.",
		RunE:  runAgent,
	}
	runCmd.Flags().Duration("stop-interval", 30*time.Second, "Interval between stop-loss sweeps")

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Run a single recovery pass and exit",
		Long:  "Verifies exchange and database connectivity, reconciles persisted trade state against exchange positions, and reports the outcome.",
		RunE:  runRecover,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve monitoring HTTP endpoints only",
		Long:  "Starts the HTTP server with /health, /status and /metrics without trading.",
		RunE:  runMonitor,
	}

	rootCmd.AddCommand(runCmd, recoverCmd, monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
