// Package sandbox executes user-authored JavaScript function bodies in an
// isolated interpreter. Every call gets a fresh VM, a wall-clock deadline,
// and value copies of the injected environment; nothing from the host
// process leaks in.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a call when no explicit timeout is configured.
const DefaultTimeout = 5 * time.Second

// interrupt markers passed to the VM so the caller can tell a deadline
// from an external cancellation.
var (
	errTimeout = errors.New("timeout")
	errAborted = errors.New("aborted")
)

// Sandbox runs function bodies of the form `function(args, env) { body }`.
type Sandbox struct {
	timeout time.Duration
	env     map[string]string
}

// Result reports one execution. Failures never propagate as panics or
// errors; they are encoded here.
type Result struct {
	Success bool   `json:"success"`
	Value   any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New builds a sandbox with the given per-call timeout and environment
// snapshot. A non-positive timeout falls back to DefaultTimeout. The env
// map is copied; later mutations by the caller are not visible to guests.
func New(timeout time.Duration, env map[string]string) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{timeout: timeout, env: copyEnv(env)}
}

// Execute compiles and runs one function body with the parsed argument
// object. Syntax errors are reported without running anything; runtime
// exceptions and timeouts are caught and returned in the Result. A
// positive timeout bounds this call; the sandbox's own hard timeout
// still applies when it is shorter.
func (s *Sandbox) Execute(ctx context.Context, body string, args map[string]any, timeout time.Duration) Result {
	prog, err := goja.Compile("tool", "(function(args, env) {\n"+body+"\n})", false)
	if err != nil {
		return Result{Error: err.Error()}
	}

	limit := s.timeout
	if timeout > 0 && timeout < limit {
		limit = timeout
	}

	vm := goja.New()
	timer := time.AfterFunc(limit, func() { vm.Interrupt(errTimeout) })
	defer timer.Stop()
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() { vm.Interrupt(errAborted) })
		defer stop()
	}

	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return Result{Error: runtimeError(err)}
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return Result{Error: "function body did not evaluate to a callable"}
	}

	value, err := fn(goja.Undefined(), vm.ToValue(copyArgs(args)), vm.ToValue(copyEnv(s.env)))
	if err != nil {
		return Result{Error: runtimeError(err)}
	}

	return Result{Success: true, Value: exportValue(value)}
}

// runtimeError normalizes goja failure modes into a plain message.
func runtimeError(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause.Error()
		}
		return fmt.Sprint(interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return exception.Value().String()
	}
	return err.Error()
}

// exportValue converts the VM return value into something the caller can
// marshal. Non-JSON-serializable results are coerced to their string form
// rather than failing.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	if _, err := json.Marshal(exported); err != nil {
		return v.String()
	}
	return exported
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
