// Command scriptworker is the sandbox worker process spawned by
// internal/sandbox's pool manager. It reads one newline-delimited JSON
// request at a time from stdin, executes the script's generate_decisions
// function in an embedded JavaScript VM, and writes one newline-delimited
// JSON response to stdout. It never trusts its own input: resource limits
// are applied to itself before any script code is read.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dop251/goja"
	"golang.org/x/sys/unix"

	"github.com/talgya/macrosim/internal/errs"
	"github.com/talgya/macrosim/internal/sandbox"
)

func main() {
	cpuSeconds := flag.Int("cpu-seconds", 1, "RLIMIT_CPU in seconds")
	memoryMB := flag.Int("memory-mb", 256, "RLIMIT_AS in megabytes")
	flag.Parse()

	if err := applyLimits(*cpuSeconds, *memoryMB); err != nil {
		slog.Error("failed to apply resource limits, exiting", "error", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req sandbox.Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, sandbox.Response{ErrorKind: errs.ScriptFailureInvalidReturn.String(), Message: "malformed request"})
			continue
		}
		resp := runOnce(req)
		writeResponse(writer, resp)
	}
}

// applyLimits sets RLIMIT_CPU and RLIMIT_AS on the worker process itself,
// before any script is read from stdin — the OS-level isolation design
// notes call for. Wall-clock timeout is the parent's responsibility.
func applyLimits(cpuSeconds, memoryMB int) error {
	if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{
		Cur: uint64(cpuSeconds),
		Max: uint64(cpuSeconds),
	}); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_CPU: %w", err)
	}
	memBytes := uint64(memoryMB) * 1024 * 1024
	if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{
		Cur: memBytes,
		Max: memBytes,
	}); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_AS: %w", err)
	}
	return nil
}

func runOnce(req sandbox.Request) (resp sandbox.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = sandbox.Response{ErrorKind: errs.ScriptFailureRuntime.String(), Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if _, err := vm.RunString(req.Code); err != nil {
		return sandbox.Response{ErrorKind: errs.ScriptFailureRuntime.String(), Message: err.Error()}
	}

	entry, ok := goja.AssertFunction(vm.Get("generate_decisions"))
	if !ok {
		return sandbox.Response{ErrorKind: errs.ScriptFailureInvalidReturn.String(), Message: "generate_decisions is not a function"}
	}

	var contextValue any
	if len(req.Context) > 0 {
		if err := json.Unmarshal(req.Context, &contextValue); err != nil {
			return sandbox.Response{ErrorKind: errs.ScriptFailureInvalidReturn.String(), Message: "invalid context payload"}
		}
	}

	result, err := entry(goja.Undefined(), vm.ToValue(contextValue))
	if err != nil {
		return sandbox.Response{ErrorKind: errs.ScriptFailureRuntime.String(), Message: err.Error()}
	}

	exported := result.Export()
	overrides, err := json.Marshal(exported)
	if err != nil {
		return sandbox.Response{ErrorKind: errs.ScriptFailureInvalidReturn.String(), Message: "return value is not JSON-representable"}
	}

	return sandbox.Response{Overrides: overrides}
}

func writeResponse(w *bufio.Writer, resp sandbox.Response) {
	line, err := json.Marshal(resp)
	if err != nil {
		line = []byte(`{"error_kind":"RuntimeException","message":"failed to marshal response"}`)
	}
	w.Write(line)
	w.WriteByte('\n')
	w.Flush()
}
