// Package linda is the public facade over runtime.Runtime: the five
// Linda operations (out, in, inp, rd, rdp) plus eval, exposed as plain
// functions over value.Tuple and query.Query instead of the wire-level
// Envelope plumbing underneath.
//
// A thin struct wrapping the real machinery, whose exported methods are
// what application code actually calls.
package linda

import (
	"fmt"

	"github.com/bodand/lindadb/balancer"
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/runtime"
	"github.com/bodand/lindadb/transport"
	"github.com/bodand/lindadb/value"
)

// Space is one peer's handle onto the distributed tuple space.
type Space struct {
	rt *runtime.Runtime
}

// Open joins the tuple space over t, using bal to place eval dispatches
// and reg to resolve the function names eval calls can invoke. bal may be
// nil to take opts.Balancer (environment-selected by NewOpts). opts may
// be nil to take runtime.NewOpts("")'s defaults.
func Open(t transport.Transport, bal balancer.Balancer, reg *dispatch.Registry, opts *runtime.Opts) *Space {
	return &Space{rt: runtime.New(t, bal, reg, opts)}
}

// Out places t into the tuple space.
func (s *Space) Out(t value.Tuple) error {
	return s.rt.Out(t)
}

// In removes and returns a tuple matching q, blocking until one is
// available. Wildcards in q are bound in place on success.
func (s *Space) In(q query.Query) (value.Tuple, error) {
	return s.rt.In(q)
}

// Inp is the non-blocking counterpart of In: ok is false if no tuple
// currently matches q.
func (s *Space) Inp(q query.Query) (tup value.Tuple, ok bool, err error) {
	return s.rt.Inp(q)
}

// Rd returns a tuple matching q without removing it, blocking until one
// is available. Wildcards in q are bound in place on success.
func (s *Space) Rd(q query.Query) (value.Tuple, error) {
	return s.rt.Rd(q)
}

// Rdp is the non-blocking counterpart of Rd.
func (s *Space) Rdp(q query.Query) (tup value.Tuple, ok bool, err error) {
	return s.rt.Rdp(q)
}

// Eval dispatches t's function-call fields for evaluation, placing the
// fully evaluated tuple into the space once every call returns. Eval does
// not block waiting for that to happen.
func (s *Space) Eval(t value.Tuple) error {
	return s.rt.Eval(t)
}

// Register installs fn under name, with the given typed signature, in the
// eval dispatch registry this Space was opened with, so a subsequent Eval
// anywhere in the deployment naming it can run.
func (s *Space) Register(name string, sig dispatch.Signature, fn dispatch.Executor) {
	s.rt.Registry().Register(name, sig, fn)
}

// Rank is this peer's position in the fixed peer set.
func (s *Space) Rank() int { return s.rt.RankOf() }

// Stats renders this peer's runtime stats.
func (s *Space) Stats() fmt.Stringer {
	return s.rt.Stats()
}

// Close leaves the tuple space, releasing this peer's transport, store
// (if it owns one) and worker pool.
func (s *Space) Close() {
	s.rt.Close()
}
