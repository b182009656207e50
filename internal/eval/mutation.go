package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrMutationTimeout is returned when a mutation script runs past its
// configured budget (mutation scripts are untrusted scenario fixtures, not
// agent-controlled code, but still must not hang a benchmark run).
var ErrMutationTimeout = errors.New("eval: mutation script exceeded its time budget")

// MutationResult is what a mutation script produced.
type MutationResult struct {
	Output []byte
	Logs   []string
}

// MutationEngine runs small JavaScript mutation scripts against a captured
// task output, producing a perturbed variant (Runner re-checks it against
// the scenario's expectedConstraints). Uses a fresh *goja.Runtime
// per call for isolation, a captured console.log, and a named entry point
// function invoked with the decoded input.
type MutationEngine struct {
	// Timeout bounds how long a single mutation script may run. Zero
	// disables the budget (not recommended outside tests).
	Timeout time.Duration
}

// NewMutationEngine constructs a MutationEngine with the given timeout,
// defaulting to 2 seconds.
func NewMutationEngine(timeout time.Duration) *MutationEngine {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MutationEngine{Timeout: timeout}
}

// Mutate runs script's exported "mutate(input)" function against output
// (JSON-decoded if possible, else passed through as a raw string), and
// re-encodes whatever it returns back to bytes.
func (e *MutationEngine) Mutate(ctx context.Context, script string, output []byte) (*MutationResult, error) {
	vm := goja.New()

	logs := make([]string, 0)
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			logs = append(logs, arg.String())
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	var input interface{}
	if err := json.Unmarshal(output, &input); err != nil {
		input = string(output)
	}
	_ = vm.Set("input", vm.ToValue(input))

	deadline := time.Now().Add(e.Timeout)
	timer := time.AfterFunc(e.Timeout, func() {
		vm.Interrupt(ErrMutationTimeout)
	})
	defer timer.Stop()

	if _, err := vm.RunString(script); err != nil {
		if isInterrupted(err) {
			return nil, ErrMutationTimeout
		}
		return nil, fmt.Errorf("eval: load mutation script: %w", err)
	}

	mutateFn, ok := goja.AssertFunction(vm.Get("mutate"))
	if !ok {
		return nil, fmt.Errorf("eval: mutation script does not export a mutate(input) function")
	}

	if time.Now().After(deadline) {
		return nil, ErrMutationTimeout
	}

	resultVal, err := mutateFn(goja.Undefined(), vm.Get("input"))
	if err != nil {
		if isInterrupted(err) {
			return nil, ErrMutationTimeout
		}
		return nil, fmt.Errorf("eval: run mutate(): %w", err)
	}

	mutated, err := exportToBytes(resultVal)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Output: mutated, Logs: logs}, nil
}

// isInterrupted reports whether err is goja's interrupt wrapper, which
// doesn't implement errors.Is against a sentinel.
func isInterrupted(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}

// exportToBytes renders a goja return value back to bytes: strings pass
// through verbatim, everything else round-trips through JSON so structured
// mutation results (e.g. { "value": 41 }) survive.
func exportToBytes(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return []byte(s), nil
	}
	body, err := json.Marshal(exported)
	if err != nil {
		return nil, fmt.Errorf("eval: encode mutation result: %w", err)
	}
	return body, nil
}
