// Package config loads the recognized simulation configuration keys from
// environment variables (with .env support), matching the pack-wide
// load-order: .env file, then process environment, then explicit defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/macrosim/internal/errs"
)

// BondSettlement resolves the open question on coupon/redemption timing.
type BondSettlement int

const (
	// CouponOnRedemption: bonds must be held one full day before redemption;
	// coupons paid on redemption. The stricter of the two source variants,
	// and the chosen default — see SPEC_FULL.md Section 9.
	//
	// The setting is recorded only: Load does not read it from the
	// environment, and no logic module consults it (internal/logic has no
	// bond redemption or coupon payment step).
	CouponOnRedemption BondSettlement = iota
	CouponOnFirstTick
)

// Config holds every recognized configuration key from the external
// interfaces section of the specification. Per-simulation overrides of
// these are layered on top of process-wide defaults at ensure_simulation
// time.
type Config struct {
	// TicksPerDay is the number of ticks in one simulated day. The per-tick
	// interest conversion in internal/logic, (1+annualRate)^(1/(TicksPerDay*365))-1,
	// assumes whatever value is configured here.
	TicksPerDay               int
	SimulationDays            int
	GlobalRNGSeed             int64
	ScriptTimeoutSeconds      float64
	ScriptMemoryLimitMB       int
	WorkerPoolSize            int
	WorkerMaxInvocations      int
	ScriptExecutionConcurrency int
	AllowFallbackForMissing   bool
	BondSettlement            BondSettlement

	Features FeatureFlags

	// Ambient process configuration (not part of TickDecisions semantics).
	RedisAddr   string
	SQLitePath  string
	LogLevel    string
	CronEnabled bool
	CronSpec    string
}

// FeatureFlags carries the boolean feature toggles named in the external
// interfaces section ("features.shock_enabled" and others).
type FeatureFlags struct {
	ShockEnabled bool
}

// ScriptTimeout returns the script wall-clock timeout as a time.Duration.
func (c Config) ScriptTimeout() time.Duration {
	return time.Duration(c.ScriptTimeoutSeconds * float64(time.Second))
}

// Default returns the process-wide default configuration. Individual
// simulations may override any field via ensure_simulation.
func Default() Config {
	return Config{
		TicksPerDay:                100,
		SimulationDays:             0,
		GlobalRNGSeed:              42,
		ScriptTimeoutSeconds:       0.75,
		ScriptMemoryLimitMB:        256,
		WorkerPoolSize:             4,
		WorkerMaxInvocations:       256,
		ScriptExecutionConcurrency: 8,
		AllowFallbackForMissing:    false,
		BondSettlement:             CouponOnRedemption,
		Features:                   FeatureFlags{ShockEnabled: false},
		RedisAddr:                  "localhost:6379",
		SQLitePath:                 "data/macrosim.db",
		LogLevel:                   "info",
		CronEnabled:                false,
		CronSpec:                   "@every 1s",
	}
}

// Load reads process-wide defaults from the environment, loading a .env
// file first if present (godotenv.Load returns an error when no .env file
// exists, which is not fatal).
func Load() Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.TicksPerDay = getEnvAsInt("TICKS_PER_DAY", cfg.TicksPerDay)
	cfg.SimulationDays = getEnvAsInt("SIMULATION_DAYS", cfg.SimulationDays)
	cfg.GlobalRNGSeed = int64(getEnvAsInt("GLOBAL_RNG_SEED", int(cfg.GlobalRNGSeed)))
	cfg.ScriptTimeoutSeconds = getEnvAsFloat("SCRIPT_TIMEOUT_SECONDS", cfg.ScriptTimeoutSeconds)
	cfg.ScriptMemoryLimitMB = getEnvAsInt("SCRIPT_MEMORY_LIMIT_MB", cfg.ScriptMemoryLimitMB)
	cfg.WorkerPoolSize = getEnvAsInt("WORKER_POOL_SIZE", cfg.WorkerPoolSize)
	cfg.WorkerMaxInvocations = getEnvAsInt("WORKER_MAX_INVOCATIONS", cfg.WorkerMaxInvocations)
	cfg.ScriptExecutionConcurrency = getEnvAsInt("SCRIPT_EXECUTION_CONCURRENCY", cfg.ScriptExecutionConcurrency)
	cfg.AllowFallbackForMissing = getEnvAsBool("ALLOW_FALLBACK_FOR_MISSING", cfg.AllowFallbackForMissing)
	cfg.Features.ShockEnabled = getEnvAsBool("FEATURES_SHOCK_ENABLED", cfg.Features.ShockEnabled)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CronEnabled = getEnvAsBool("CRON_ENABLED", cfg.CronEnabled)
	cfg.CronSpec = getEnv("CRON_SPEC", cfg.CronSpec)
	return cfg
}

// Validate checks invariants on recognized numeric ranges, returning
// InvalidConfig on violation.
func (c Config) Validate() error {
	if c.TicksPerDay <= 0 {
		return errs.New(errs.KindInvalidConfig, "ticks_per_day", "must be positive")
	}
	if c.ScriptTimeoutSeconds <= 0 {
		return errs.New(errs.KindInvalidConfig, "script_timeout_seconds", "must be positive")
	}
	if c.WorkerPoolSize <= 0 {
		return errs.New(errs.KindInvalidConfig, "worker_pool_size", "must be positive")
	}
	if c.ScriptExecutionConcurrency <= 0 {
		return errs.New(errs.KindInvalidConfig, "script_execution_concurrency", "must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
