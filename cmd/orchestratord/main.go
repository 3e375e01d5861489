// Command orchestratord runs the macrosim Orchestrator as a long-lived
// daemon: it opens the two-tier State Store, builds the Script Registry
// (each tick reloads a simulation's binding index from the durable tier),
// starts the Sandbox Executor pool, and — if configured — starts the cron
// tick scheduler. No simulation is registered with the scheduler here, so
// ticks still run only on external run_tick/run_day calls.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/orchestrator"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/sandbox"
	"github.com/talgya/macrosim/internal/schedule"
	"github.com/talgya/macrosim/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if cfg.LogLevel == "debug" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("macrosim orchestrator starting",
		"ticks_per_day", cfg.TicksPerDay,
		"global_rng_seed", cfg.GlobalRNGSeed,
		"allow_fallback_for_missing", cfg.AllowFallbackForMissing,
	)

	// ── Durable tier ──────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create sqlite data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}
	durable, err := store.OpenDurable(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open durable store", "error", err)
		os.Exit(1)
	}
	defer durable.Close()
	logger.Info("durable store opened", "path", cfg.SQLitePath)

	// ── Cache tier ────────────────────────────────────────────────────
	cache, err := store.NewCache(cfg.RedisAddr)
	if err != nil {
		logger.Error("failed to connect to cache store", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("cache store connected", "addr", cfg.RedisAddr)

	st := store.New(cache, durable, logger)

	// ── Script Registry ───────────────────────────────────────────────
	reg := registry.New(durable, scriptQuotaPerUser)

	// ── Sandbox Executor ──────────────────────────────────────────────
	workerBinary, err := scriptWorkerPath()
	if err != nil {
		logger.Error("failed to locate scriptworker binary", "error", err)
		os.Exit(1)
	}
	pool, err := sandbox.NewPool(sandbox.Config{
		WorkerBinary: workerBinary,
		Limits: sandbox.Limits{
			CPUSeconds: int(cfg.ScriptTimeoutSeconds) + 1,
			MemoryMB:   cfg.ScriptMemoryLimitMB,
		},
		WorkerMaxInvocations:       cfg.WorkerMaxInvocations,
		WorkerPoolSize:             cfg.WorkerPoolSize,
		ScriptExecutionConcurrency: cfg.ScriptExecutionConcurrency,
		Logger:                     logger,
	})
	if err != nil {
		logger.Error("failed to start sandbox pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("sandbox pool started", "binary", workerBinary, "pool_size", cfg.WorkerPoolSize)

	orch := orchestrator.New(st, reg, pool, cfg, logger)

	// ── Optional wall-clock cadence ───────────────────────────────────
	var sched *schedule.Scheduler
	if cfg.CronEnabled {
		sched = schedule.New(orch, logger)
		sched.Start()
		defer sched.Stop()
		logger.Info("tick scheduler enabled", "spec", cfg.CronSpec)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
}

// scriptQuotaPerUser bounds how many scripts a single user may register per
// simulation (or in their personal library), matching the per-user quota
// named in the external interfaces section.
const scriptQuotaPerUser = 20

// scriptWorkerPath resolves the scriptworker binary, preferring the
// SCRIPTWORKER_BIN environment variable and falling back to a binary next
// to the orchestratord executable itself.
func scriptWorkerPath() (string, error) {
	if p := os.Getenv("SCRIPTWORKER_BIN"); p != "" {
		return p, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "scriptworker"), nil
}
