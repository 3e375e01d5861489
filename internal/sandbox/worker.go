package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/talgya/macrosim/internal/errs"
)

// worker owns one long-lived scriptworker subprocess and serializes access
// to it: only one invocation is in flight on a worker at a time.
type worker struct {
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         *bufio.Reader
	mu             sync.Mutex
	invocations    int
	maxInvocations int
	dead           bool
}

func spawnWorker(binary string, limits Limits, maxInvocations int) (*worker, error) {
	cmd := exec.Command(binary,
		"--cpu-seconds", strconv.Itoa(limits.CPUSeconds),
		"--memory-mb", strconv.Itoa(limits.MemoryMB),
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("scriptworker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("scriptworker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start scriptworker: %w", err)
	}
	return &worker{
		cmd:            cmd,
		stdin:          stdin,
		stdout:         bufio.NewReader(stdout),
		maxInvocations: maxInvocations,
	}, nil
}

// exhausted reports whether the worker has served its invocation budget and
// should be recycled (design doc Section 5, worker_max_invocations).
func (w *worker) exhausted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.invocations >= w.maxInvocations
}

func (w *worker) kill() {
	w.mu.Lock()
	w.dead = true
	w.mu.Unlock()
	_ = w.stdin.Close()
	_ = w.cmd.Process.Kill()
	_ = w.cmd.Wait()
}

// unusable reports whether the worker's process has been killed (by timeout
// or a broken pipe) and must be discarded rather than returned to the idle
// pool.
func (w *worker) unusable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dead
}

// invoke sends one request and waits for one response line, honoring ctx's
// deadline by killing the process if it does not answer in time — this is
// the wall-clock timeout enforcement point (design doc Section 4.3,
// Scenario B).
func (w *worker) invoke(ctx context.Context, req Request) (Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal sandbox request: %w", err)
	}

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if _, err := w.stdin.Write(append(line, '\n')); err != nil {
			done <- result{err: fmt.Errorf("write sandbox request: %w", err)}
			return
		}
		respLine, err := w.stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("read sandbox response: %w", err)}
			return
		}
		var resp Response
		if err := json.Unmarshal(respLine, &resp); err != nil {
			done <- result{err: fmt.Errorf("unmarshal sandbox response: %w", err)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			// a broken pipe mid-invocation leaves the process in an
			// unknown state; never hand it back to the pool. w.mu is
			// already held here, so kill() (which locks it) is not used.
			w.dead = true
			_ = w.stdin.Close()
			_ = w.cmd.Process.Kill()
			_ = w.cmd.Wait()
			return Response{}, r.err
		}
		w.invocations++
		return r.resp, nil
	case <-ctx.Done():
		slog.Warn("sandbox invocation timed out, killing worker", "entity_id", req.EntityID)
		w.dead = true
		_ = w.stdin.Close()
		_ = w.cmd.Process.Kill()
		_ = w.cmd.Wait()
		return Response{}, errs.New(errs.KindScriptFailure, req.EntityID, errs.ScriptFailureTimeout.String())
	}
}
