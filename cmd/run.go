package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrixise/survey-gate/internal/api"
	"github.com/matrixise/survey-gate/internal/config"
	"github.com/matrixise/survey-gate/internal/health"
	"github.com/matrixise/survey-gate/internal/refresh"
	"github.com/matrixise/survey-gate/internal/scheduler"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/spf13/cobra"
)

// Hourly history pruning keeps 90 days of token_balances rows.
const (
	pruneInterval    = "1h"
	historyRetention = 90 * 24 * time.Hour
)

var interval string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the targeting and reward API",
	Long: `Serve the HTTP API and, when an interval is configured, periodically refresh
the recorded balances of known users.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&interval, "interval", "", "balance refresh interval - duration (5m, 1h) or cron (\"*/5 * * * *\") - empty disables it")
}

func runServer(cmd *cobra.Command, args []string) error {
	setupLogger(cmd, nil)

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, graceful shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}
	setupLogger(cmd, cfg)

	// Use interval from flag if provided, otherwise from config
	refreshInterval := interval
	if refreshInterval == "" {
		refreshInterval = cfg.Interval
	}
	if err := scheduler.ValidateScheduleInterval(refreshInterval); err != nil {
		return err
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"tokens", len(cfg.Tokens),
		"cache_backend", cfg.Cache.Backend,
		"refresh", scheduler.DescribeSchedule(refreshInterval, cfg.GetTimezone()),
	)

	store, err := storage.NewStore(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		return err
	}
	defer store.Close()
	slog.Info("PostgreSQL connection established")

	if err := storage.RunMigrations(ctx, databaseURL); err != nil {
		slog.Error("Failed to apply migrations", "error", err)
		return err
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize balance engine", "error", err)
		return err
	}
	defer eng.Close()

	healthOpts := health.Options{
		Database:  store,
		RPC:       eng.client,
		PriceFeed: eng.feed,
	}
	if eng.redis != nil {
		healthOpts.Cache = eng.redis
	}
	if refreshInterval != "" {
		healthOpts.RefreshInterval = scheduler.ExpectedInterval(refreshInterval)
	}
	checker := health.NewChecker(healthOpts)

	sched, err := scheduler.New(scheduler.Config{
		Timezone:       cfg.GetTimezone(),
		RunImmediately: cfg.ShouldRunImmediately(),
		Logger:         slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return fmt.Errorf("scheduler creation failed: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Error("Scheduler shutdown error", "error", err)
		}
	}()

	if refreshInterval != "" {
		job := refresh.NewJob(eng.aggregator, store, refresh.Options{StaleAfter: cfg.Cache.TTL})
		err := sched.Add(ctx, "refresh-balances", refreshInterval, func(jobCtx context.Context) error {
			_, err := job.Run(jobCtx)
			checker.UpdateLastRun(err == nil)
			return err
		})
		if err != nil {
			return err
		}
	}

	err = sched.Add(ctx, "prune", pruneInterval, func(jobCtx context.Context) error {
		return prune(jobCtx, store, eng)
	})
	if err != nil {
		return err
	}

	httpPort := cfg.HTTPPort
	if httpPort == 0 {
		httpPort = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           api.NewServer(eng.aggregator, store, store, checker.Handler()).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "port", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	sched.Start()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown requested, stopping server")
		return nil
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
		return err
	}
}

// prune drops old balance history rows and, for the in-process cache,
// snapshots past the retention window. Redis expires its keys on its own.
func prune(ctx context.Context, store *storage.Store, eng *engine) error {
	deleted, err := store.PruneBalances(ctx, time.Now().Add(-historyRetention))
	if err != nil {
		return err
	}

	evicted := 0
	if eng.memory != nil {
		evicted = eng.memory.Prune(snapshotRetention)
	}

	slog.Info("Pruned expired data", "history_rows", deleted, "cache_entries", evicted)
	return nil
}
