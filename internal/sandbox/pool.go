package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/macrosim/internal/errs"
)

// Binding is one entity's resolved script invocation request for a tick.
type Binding struct {
	EntityID    string
	Code        string
	CodeVersion string
	Context     any
}

// Result pairs a binding with its sandbox outcome.
type Result struct {
	EntityID  string
	Overrides json.RawMessage
	Err       error
}

// Pool manages a set of scriptworker subprocesses and dispatches a tick's
// bindings across them, capped by a separate concurrency ceiling (design doc
// Section 5). It starts WorkerPoolSize workers; when none is idle, acquire
// spawns another and release keeps it, so the set can grow up to the
// concurrency ceiling.
type Pool struct {
	binary         string
	limits         Limits
	maxInvocations int
	poolSize       int
	concurrency    int

	mu     sync.Mutex
	idle   []*worker
	logger *slog.Logger
}

// Config bundles the pool's construction parameters.
type Config struct {
	WorkerBinary               string
	Limits                     Limits
	WorkerMaxInvocations       int
	WorkerPoolSize             int
	ScriptExecutionConcurrency int
	Logger                     *slog.Logger
}

// NewPool builds a pool and eagerly spawns its workers.
func NewPool(cfg Config) (*Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		binary:         cfg.WorkerBinary,
		limits:         cfg.Limits,
		maxInvocations: cfg.WorkerMaxInvocations,
		poolSize:       cfg.WorkerPoolSize,
		concurrency:    cfg.ScriptExecutionConcurrency,
		logger:         logger,
	}
	for i := 0; i < cfg.WorkerPoolSize; i++ {
		w, err := spawnWorker(p.binary, p.limits, p.maxInvocations)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("spawn worker %d/%d: %w", i+1, cfg.WorkerPoolSize, err)
		}
		p.idle = append(p.idle, w)
	}
	return p, nil
}

// Close kills every worker in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.idle {
		w.kill()
	}
	p.idle = nil
}

func (p *Pool) acquire() (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		w, err := spawnWorker(p.binary, p.limits, p.maxInvocations)
		if err != nil {
			return nil, fmt.Errorf("spawn replacement worker: %w", err)
		}
		return w, nil
	}
	w := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return w, nil
}

func (p *Pool) release(w *worker) {
	if w.unusable() {
		p.logger.Warn("discarding sandbox worker killed during invocation")
		replacement, err := spawnWorker(p.binary, p.limits, p.maxInvocations)
		if err != nil {
			p.logger.Error("failed to respawn sandbox worker", "error", err)
			return
		}
		w = replacement
	} else if w.exhausted() {
		p.logger.Info("recycling sandbox worker after reaching invocation budget", "max_invocations", p.maxInvocations)
		w.kill()
		replacement, err := spawnWorker(p.binary, p.limits, p.maxInvocations)
		if err != nil {
			p.logger.Error("failed to respawn sandbox worker", "error", err)
			return
		}
		w = replacement
	}
	p.mu.Lock()
	p.idle = append(p.idle, w)
	p.mu.Unlock()
}

// Dispatch runs every binding for the current tick, bounded by the
// configured concurrency ceiling, and returns one Result per binding in
// input order. Each binding receives its own serialized context — no
// pointer is shared across invocations (design doc Section 5).
func (p *Pool) Dispatch(ctx context.Context, timeout context.Context, bindings []Binding) []Result {
	results := make([]Result, len(bindings))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, b := range bindings {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, b Binding) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.runOne(timeout, b)
		}(i, b)
	}
	wg.Wait()
	return results
}

func (p *Pool) runOne(timeout context.Context, b Binding) Result {
	ctxBlob, err := json.Marshal(b.Context)
	if err != nil {
		return Result{EntityID: b.EntityID, Err: errs.Wrap(errs.KindScriptFailure, b.EntityID, "marshal sandbox context", err)}
	}

	w, err := p.acquire()
	if err != nil {
		return Result{EntityID: b.EntityID, Err: errs.Wrap(errs.KindScriptFailure, b.EntityID, "acquire sandbox worker", err)}
	}

	resp, err := w.invoke(timeout, Request{
		Code:        b.Code,
		CodeVersion: b.CodeVersion,
		EntityID:    b.EntityID,
		Context:     ctxBlob,
	})
	p.release(w)

	if err != nil {
		return Result{EntityID: b.EntityID, Err: err}
	}
	if resp.ErrorKind != "" {
		return Result{EntityID: b.EntityID, Err: errs.New(errs.KindScriptFailure, b.EntityID, resp.ErrorKind+": "+resp.Message)}
	}
	return Result{EntityID: b.EntityID, Overrides: resp.Overrides}
}
