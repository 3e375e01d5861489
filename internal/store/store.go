package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/macrosim/internal/errs"
	"github.com/talgya/macrosim/internal/worldstate"
)

// retryBudget bounds how many times a durable write is retried before the
// store escalates to a PersistenceError and the orchestrator freezes the
// simulation (design doc Section 4.1, Scenario F). A loop with a
// counter and exponential backoff is five lines and fits the shape exactly;
// no library in the retrieval pack does bounded-retry-then-escalate any
// better, so this stays hand-rolled (see the grounding ledger).
const (
	retryBudget        = 5
	retryBaseDelay     = 50 * time.Millisecond
)

// Store is the State Store facade: every read/write goes through the cache
// tier first, with durable writes made synchronously afterward.
type Store struct {
	cache   *Cache
	durable *Durable
	logger  *slog.Logger

	mu sync.Mutex
}

// New builds a Store over an already-connected cache and durable tier.
func New(cache *Cache, durable *Durable, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cache: cache, durable: durable, logger: logger}
}

// EnsureSimulation creates the simulation record and seeds its world state
// from initial if it does not already exist, or returns the existing one
// unchanged.
func (s *Store) EnsureSimulation(ctx context.Context, sim *worldstate.Simulation, initial *worldstate.WorldState) (*worldstate.Simulation, error) {
	existing, err := s.durable.LoadSimulation(ctx, sim.ID)
	if err == nil {
		return existing, nil
	}

	if err := s.durable.SaveSimulation(ctx, sim); err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, sim.ID, "create simulation record", err)
	}
	if err := s.durable.SaveWorldSnapshot(ctx, sim.ID, sim.TickIndex, initial); err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, sim.ID, "create world snapshot", err)
	}
	if err := s.cache.PutWorld(ctx, sim.ID, initial); err != nil {
		return nil, errs.Wrap(errs.KindCacheError, sim.ID, "seed cache world state", err)
	}
	return sim, nil
}

// GetWorldState returns the current world state, preferring the cache tier
// and falling back to the durable snapshot on a cache miss (read-through).
func (s *Store) GetWorldState(ctx context.Context, simID string) (*worldstate.WorldState, error) {
	w, err := s.cache.GetWorld(ctx, simID)
	if err == nil {
		return w, nil
	}
	s.logger.Warn("cache miss on world state, reading through to durable tier", "simulation_id", simID, "error", err)
	w, derr := s.durable.LoadWorldSnapshot(ctx, simID)
	if derr != nil {
		return nil, errs.Wrap(errs.KindNotFound, simID, "world state not found in cache or durable tier", derr)
	}
	if perr := s.cache.PutWorld(ctx, simID, w); perr != nil {
		s.logger.Warn("failed to repopulate cache after read-through", "simulation_id", simID, "error", perr)
	}
	return w, nil
}

// ApplyUpdates applies a batch of commands against the cache tier
// atomically, then writes through to the durable tier synchronously with
// bounded retry; there is no background write queue. Returns the resulting
// world state. A durable failure that exhausts the retry budget returns a
// PersistenceError; the caller (orchestrator) is responsible for freezing
// the simulation in that case.
func (s *Store) ApplyUpdates(ctx context.Context, simID string, tickIndex uint64, cmds []worldstate.StateUpdateCommand) (*worldstate.WorldState, error) {
	w, err := s.cache.ApplyUpdates(ctx, simID, cmds)
	if err != nil {
		return nil, errs.Wrap(errs.KindCacheError, simID, "apply updates to cache", err)
	}
	if err := s.writeThroughWithRetry(ctx, simID, tickIndex, w); err != nil {
		return w, err
	}
	return w, nil
}

// writeThroughWithRetry runs synchronously inside the tick path rather than
// through an async bounded-retry queue; this trades tick latency for a
// stronger read-your-writes guarantee (a reader right after ApplyTick never
// observes a cache-ahead-of-durable window).
func (s *Store) writeThroughWithRetry(ctx context.Context, simID string, tickIndex uint64, w *worldstate.WorldState) error {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryBudget; attempt++ {
		if err := s.durable.SaveWorldSnapshot(ctx, simID, tickIndex, w); err != nil {
			lastErr = err
			s.logger.Warn("durable write-through failed, retrying",
				"simulation_id", simID, "tick_index", tickIndex, "attempt", attempt, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errs.Wrap(errs.KindPersistenceError, simID, "write-through canceled", ctx.Err())
			}
			delay *= 2
			continue
		}
		return nil
	}
	return errs.Wrap(errs.KindPersistenceError, simID, "durable write-through exhausted retry budget", lastErr)
}

// RecordTick appends a tick-log entry to both tiers.
func (s *Store) RecordTick(ctx context.Context, simID string, tickIndex uint64, summary any) error {
	if err := s.cache.PushLog(ctx, simID, summary, 500); err != nil {
		s.logger.Warn("failed to push tick log to cache", "simulation_id", simID, "error", err)
	}
	if err := s.durable.AppendTickLog(ctx, simID, tickIndex, summary); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, simID, "append tick log", err)
	}
	return nil
}

// ListTickLogs returns the most recent tick logs for a simulation.
func (s *Store) ListTickLogs(ctx context.Context, simID string, limit int) ([]TickLogRow, error) {
	rows, err := s.durable.ListTickLogs(ctx, simID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindDurableStoreError, simID, "list tick logs", err)
	}
	return rows, nil
}

// ResetSimulation restores the world state (and simulation cadence
// counters) to a caller-supplied snapshot, used to reset a simulation back
// to its initial state.
func (s *Store) ResetSimulation(ctx context.Context, sim *worldstate.Simulation, w *worldstate.WorldState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.durable.SaveSimulation(ctx, sim); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, sim.ID, "reset simulation record", err)
	}
	if err := s.durable.SaveWorldSnapshot(ctx, sim.ID, sim.TickIndex, w); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, sim.ID, "reset world snapshot", err)
	}
	if err := s.cache.PutWorld(ctx, sim.ID, w); err != nil {
		return errs.Wrap(errs.KindCacheError, sim.ID, "reset cache world state", err)
	}
	return nil
}

// DeleteSimulation removes a simulation and all of its state from both
// tiers.
func (s *Store) DeleteSimulation(ctx context.Context, simID string) error {
	if err := s.cache.DeleteWorld(ctx, simID); err != nil {
		s.logger.Warn("failed to delete cache state", "simulation_id", simID, "error", err)
	}
	if err := s.durable.DeleteSimulation(ctx, simID); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, simID, "delete simulation", err)
	}
	return nil
}

// SaveSimulationRecord persists the simulation control record (cadence
// counters, status) to the durable tier. Called after every tick.
func (s *Store) SaveSimulationRecord(ctx context.Context, sim *worldstate.Simulation) error {
	if err := s.durable.SaveSimulation(ctx, sim); err != nil {
		return errs.Wrap(errs.KindDurableStoreError, sim.ID, "save simulation record", err)
	}
	return nil
}

// RegisterParticipant adds an entity id to a simulation's participant set.
func (s *Store) RegisterParticipant(ctx context.Context, simID, entityID string) error {
	if err := s.cache.RecordParticipant(ctx, simID, entityID); err != nil {
		return errs.Wrap(errs.KindCacheError, simID, "register participant", err)
	}
	return nil
}

// ListParticipants returns every entity id registered for a simulation.
func (s *Store) ListParticipants(ctx context.Context, simID string) ([]string, error) {
	members, err := s.cache.Participants(ctx, simID)
	if err != nil {
		return nil, errs.Wrap(errs.KindCacheError, simID, "list participants", err)
	}
	return members, nil
}

// LoadSimulationRecord reads the simulation control record.
func (s *Store) LoadSimulationRecord(ctx context.Context, simID string) (*worldstate.Simulation, error) {
	sim, err := s.durable.LoadSimulation(ctx, simID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, simID, "simulation not found", err)
	}
	return sim, nil
}
