// Command orchestratorctl is an operator CLI over the same State Store and
// Script Registry orchestratord serves — create/reset/delete simulations,
// step ticks and days by hand, and manage user script bindings, all
// against the shared redis/sqlite tiers rather than through a running
// daemon's own process.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/orchestrator"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/sandbox"
	"github.com/talgya/macrosim/internal/store"
)

var (
	flagSQLitePath string
	flagRedisAddr  string
	flagLogLevel   string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "orchestratorctl",
		Short:         "Operate macrosim simulations against the shared state store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagSQLitePath, "db", "data/macrosim.db", "path to the durable sqlite store")
	root.PersistentFlags().StringVar(&flagRedisAddr, "redis", "localhost:6379", "address of the redis cache tier")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level for the underlying components (debug, info, warn, error)")

	root.AddCommand(
		newCreateSimulationCommand(),
		newResetSimulationCommand(),
		newDeleteSimulationCommand(),
		newGetStateCommand(),
		newRunTickCommand(),
		newRunDayCommand(),
		newRegisterScriptCommand(),
		newAttachScriptCommand(),
		newDetachScriptCommand(),
		newUpdateScriptCodeCommand(),
		newDeleteScriptCommand(),
		newListScriptsCommand(),
		newListTickLogsCommand(),
		newRegisterParticipantCommand(),
		newListParticipantsCommand(),
	)
	return root
}

// ctlEnv bundles the live components a single invocation needs. Each
// command opens its own connections and tears them down before returning,
// since orchestratorctl is a one-shot CLI, not a long-lived process.
type ctlEnv struct {
	cfg    config.Config
	orch   *orchestrator.Orchestrator
	cache  *store.Cache
	durable *store.Durable
	pool   *sandbox.Pool
	logger *slog.Logger
}

func buildEnv() (*ctlEnv, error) {
	level := slog.LevelWarn
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Load()
	cfg.SQLitePath = flagSQLitePath
	cfg.RedisAddr = flagRedisAddr

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite data directory: %w", err)
		}
	}
	durable, err := store.OpenDurable(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	cache, err := store.NewCache(cfg.RedisAddr)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("connect cache store: %w", err)
	}
	st := store.New(cache, durable, logger)
	reg := registry.New(durable, scriptQuotaPerUser)

	workerBinary, err := scriptWorkerPath()
	if err != nil {
		cache.Close()
		durable.Close()
		return nil, fmt.Errorf("locate scriptworker binary: %w", err)
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
		cache.Close()
		durable.Close()
		return nil, fmt.Errorf("start sandbox pool: %w", err)
	}

	return &ctlEnv{
		cfg:     cfg,
		orch:    orchestrator.New(st, reg, pool, cfg, logger),
		cache:   cache,
		durable: durable,
		pool:    pool,
		logger:  logger,
	}, nil
}

func (e *ctlEnv) Close() {
	e.pool.Close()
	e.cache.Close()
	e.durable.Close()
}

const scriptQuotaPerUser = 20

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
