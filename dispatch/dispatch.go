// Package dispatch implements the process-wide eval function registry:
// the mapping from a function name carried in a value.FnCall to the Go
// code that executes it.
//
// A sync.RWMutex-guarded map from a name to a handler, read far more often
// than written, registered explicitly rather than discovered through
// reflection or package init order.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bodand/lindadb/value"
)

// Executor runs one registered eval function body, given the already
// evaluated argument tuple carried in the FnCall, and returns the tuple to
// insert in its place.
type Executor func(args value.Tuple) (value.Tuple, error)

// Signature is the typed parameter/result variant list an Executor is
// registered against. Call validates an incoming FnCall's argument tuple
// positionwise against Params before invoking the Executor, and the
// Executor's return tuple positionwise against Result afterward.
type Signature struct {
	Params []value.Kind
	Result []value.Kind
}

func (s Signature) matches(t value.Tuple, kinds []value.Kind) bool {
	if t.Size() != len(kinds) {
		return false
	}
	for i, k := range kinds {
		if t.At(i).Kind() != k {
			return false
		}
	}
	return true
}

// entry pairs a registered Executor with the signature Call validates
// against it.
type entry struct {
	sig Signature
	fn  Executor
}

// ErrUnknownFunc is returned when a FnCall names a function nothing
// registered.
var ErrUnknownFunc = errors.New("dispatch: unknown function")

// ErrSignatureMismatch is returned when a FnCall's argument tuple, or its
// Executor's result tuple, doesn't match the Kind list the function was
// registered with. Per spec this indicates protocol corruption: the
// calling side is expected to construct eval calls against the same
// signature, so a mismatch is never expected in ordinary operation.
var ErrSignatureMismatch = errors.New("dispatch: signature mismatch")

// Registry is a process-wide, read-mostly map from function name to a
// signature-checked Executor. The zero Registry is usable.
type Registry struct {
	mu      sync.RWMutex
	mapping map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{mapping: make(map[string]entry)}
}

// Register installs fn under name with the given signature, returning the
// Executor it replaces (nil if none). Intended to be called during
// startup, before any eval traffic arrives; Register itself is safe to
// call concurrently with Call but is not, by spec, expected to happen
// after the runtime is serving requests.
func (r *Registry) Register(name string, sig Signature, fn Executor) Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		r.mapping = make(map[string]entry)
	}
	prev, had := r.mapping[name]
	r.mapping[name] = entry{sig: sig, fn: fn}
	if !had {
		return nil
	}
	return prev.fn
}

// Lookup returns the Executor registered under name, or nil if none.
func (r *Registry) Lookup(name string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mapping[name].fn
}

// Call runs the function named by call.Name against call.Args, the
// operation eval ultimately performs once its FnCall arrives at a worker.
// The argument tuple and the Executor's result are each checked
// positionwise against the registered Signature; a mismatch on either end
// returns ErrSignatureMismatch instead of invoking or trusting the
// Executor.
func (r *Registry) Call(call value.FnCall) (value.Tuple, error) {
	r.mu.RLock()
	e, ok := r.mapping[call.Name]
	r.mu.RUnlock()
	if !ok {
		return value.Tuple{}, fmt.Errorf("%w: %q", ErrUnknownFunc, call.Name)
	}
	if !e.sig.matches(call.Args, e.sig.Params) {
		return value.Tuple{}, fmt.Errorf("%w: %q called with %s", ErrSignatureMismatch, call.Name, call.Args)
	}
	result, err := e.fn(call.Args)
	if err != nil {
		return value.Tuple{}, err
	}
	if !e.sig.matches(result, e.sig.Result) {
		return value.Tuple{}, fmt.Errorf("%w: %q returned %s", ErrSignatureMismatch, call.Name, result)
	}
	return result, nil
}
