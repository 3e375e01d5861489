// Package schedule drives an optional wall-clock tick cadence over the
// Orchestrator, for simulations that advance on a timer rather than being
// stepped only by explicit run_tick/run_day calls. Adapted from the pack's
// own cron-based background job scheduler
// (_examples/aristath-sentinel/trader-go/internal/scheduler/scheduler.go),
// generalized from a single named-job interface to one job per running
// simulation and switched to log/slog to match the rest of this module.
package schedule

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/orchestrator"
)

// TickRunner is the subset of the Orchestrator the scheduler needs —
// narrowed to a single method so tests can substitute a stub.
type TickRunner interface {
	RunTick(ctx context.Context, simID string, admin decision.AdminOverrides) (orchestrator.TickResult, error)
}

// Scheduler manages one cron entry per simulation currently on an automatic
// cadence.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	runner TickRunner

	mu      sync.Mutex
	entries map[string]cron.EntryID // simulation_id -> cron entry
}

// New builds a Scheduler over an already-constructed Orchestrator-like
// runner. The cron instance runs with second-level precision, matching the
// pack's own scheduler configuration.
func New(runner TickRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		runner:  runner,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins executing any already-registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("tick scheduler started")
}

// Stop waits for any in-flight job to finish, then halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("tick scheduler stopped")
}

// ScheduleSimulation registers a simulation to advance one tick every time
// spec fires (e.g. "@every 1s", matching config.Config.CronSpec). Calling
// it again for the same simulation replaces the existing schedule.
func (s *Scheduler) ScheduleSimulation(simID, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[simID]; ok {
		s.cron.Remove(id)
		delete(s.entries, simID)
	}

	id, err := s.cron.AddFunc(spec, func() {
		logger := s.logger.With("simulation_id", simID)
		if _, err := s.runner.RunTick(context.Background(), simID, decision.AdminOverrides{}); err != nil {
			logger.Error("scheduled tick failed", "error", err)
			return
		}
		logger.Debug("scheduled tick completed")
	})
	if err != nil {
		return err
	}
	s.entries[simID] = id
	s.logger.Info("simulation scheduled", "simulation_id", simID, "spec", spec)
	return nil
}

// UnscheduleSimulation removes a simulation's automatic cadence, reverting
// it to manual run_tick/run_day control.
func (s *Scheduler) UnscheduleSimulation(simID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[simID]; ok {
		s.cron.Remove(id)
		delete(s.entries, simID)
		s.logger.Info("simulation unscheduled", "simulation_id", simID)
	}
}
