// Package runtime is the coordination runtime tying the indexed store,
// the work pool, the load balancer and the eval dispatch registry to a
// Transport: the component that actually executes out/in/inp/rd/rdp/eval
// across a fixed peer set.
//
// A background-worker-driven frontend over a single in-memory collection,
// with "one store per process" generalized to "one store at rank 0, every
// other rank forwards to it", and eval's function-call dispatch routed to
// a balancer-chosen worker rank instead of running inline.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bodand/lindadb/balancer"
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/store"
	"github.com/bodand/lindadb/transport"
	"github.com/bodand/lindadb/value"
	"github.com/bodand/lindadb/workpool"
)

// ErrTerminated is returned once the Runtime has been Close()d, by the
// blocking Rd and In as well as by remote requests; no call panics with it.
// The non-blocking Rdp and Inp at the coordinator report ok=false instead.
var ErrTerminated = errors.New("runtime: operation attempted on a terminated runtime")

// Runtime is one peer's coordination runtime. Rank 0 owns the tuple store;
// every other rank forwards operations to it over Transport.
type Runtime struct {
	transport transport.Transport
	bal       balancer.Balancer
	registry  *dispatch.Registry
	opts      *Opts
	pool      *workpool.Pool
	logger    *log.Logger

	store *store.Store // non-nil only at rank 0

	pendingMu  sync.Mutex
	pending    map[uint64]chan transport.Envelope
	reqCounter uint64

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Runtime over t. bal chooses which worker rank executes an
// eval's function body; pass nil to take opts.Balancer (itself selected by
// NewOpts from the LINDADB_BALANCER environment variable). reg resolves
// the function names eval dispatches. opts may be nil to take
// NewOpts("")'s defaults.
func New(t transport.Transport, bal balancer.Balancer, reg *dispatch.Registry, opts *Opts) *Runtime {
	if opts == nil {
		opts = NewOpts("")
	}
	if bal == nil {
		bal = opts.Balancer
	}
	r := &Runtime{
		transport: t,
		bal:       bal,
		registry:  reg,
		opts:      opts,
		logger:    log.New(os.Stderr, fmt.Sprintf("runtime[%d]: ", t.Rank()), log.LstdFlags),
		pending:   make(map[uint64]chan transport.Envelope),
		closed:    make(chan struct{}),
	}
	if t.Rank() == 0 {
		r.store = store.New()
	}
	r.pool = workpool.New(opts.Workers, opts.QueueSize)
	r.wg.Add(1)
	go r.receiveLoop()
	return r
}

func (r *Runtime) nextReqID() uint64 {
	n := atomic.AddUint64(&r.reqCounter, 1)
	return uint64(r.transport.Rank())<<48 | (n & 0xFFFFFFFFFFFF)
}

// receiveLoop is the single goroutine that ever calls Transport.Recv,
// dispatching each inbound Envelope to a work pool job so a slow handler
// (a blocking in() on an empty store, an eval function body) never stalls
// the next message's arrival.
func (r *Runtime) receiveLoop() {
	defer r.wg.Done()
	for {
		env, err := r.transport.Recv(context.Background())
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			select {
			case <-r.closed:
				return
			default:
			}
			r.logger.Printf("recv: %v", err)
			continue
		}
		r.pool.Submit(func() { r.handle(env) })
	}
}

func (r *Runtime) handle(env transport.Envelope) {
	r.pendingMu.Lock()
	ch, isResponse := r.pending[env.ReqID]
	if isResponse {
		delete(r.pending, env.ReqID)
	}
	r.pendingMu.Unlock()
	if isResponse {
		ch <- env
		return
	}

	switch env.Tag {
	case transport.MsgInsert:
		if r.store != nil {
			r.store.Insert(env.Tuple)
		}
	case transport.MsgDelete, transport.MsgTryDelete, transport.MsgSearch, transport.MsgTrySearch:
		r.handleStoreRequest(env)
	case transport.MsgEval:
		r.handleEvalDispatch(env)
	case transport.MsgTerminate:
		// shutdownLocal calls Pool.Close, which waits for every pool
		// worker (including this one) to return. Run it off the pool so
		// that wait doesn't deadlock on itself.
		go r.shutdownLocal()
	}
}

func (r *Runtime) handleStoreRequest(env transport.Envelope) {
	if r.store == nil {
		return
	}
	q := decodeQuery(env.Tuple, env.WildcardMask)
	var tup value.Tuple
	var found bool
	var terminated bool
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == store.ErrTerminated {
					terminated = true
					return
				}
				panic(rec)
			}
		}()
		switch env.Tag {
		case transport.MsgDelete:
			var err error
			tup, err = r.In(q)
			if err != nil {
				terminated = true
				return
			}
			found = true
		case transport.MsgTryDelete:
			tup, found = r.twoPhaseRemove(context.Background(), q)
		case transport.MsgSearch:
			tup = r.store.Read(q)
			found = true
		case transport.MsgTrySearch:
			tup, found = r.store.TryRead(q)
		}
	}()
	if terminated {
		return
	}
	resp := transport.Envelope{Tag: env.Tag, ReqID: env.ReqID, Tuple: tup, Vote: found}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
	defer cancel()
	if err := r.transport.Send(ctx, env.From, resp); err != nil {
		r.logger.Printf("respond to rank %d: %v", env.From, err)
	}
}

func (r *Runtime) handleEvalDispatch(env transport.Envelope) {
	result, err := r.evalLocally(env.Tuple)
	if err != nil {
		r.logger.Printf("eval %v: %v", env.Tuple, err)
		return
	}
	if r.transport.Rank() == 0 {
		r.store.Insert(result)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
	defer cancel()
	if err := r.transport.Send(ctx, 0, transport.Envelope{Tag: transport.MsgInsert, Tuple: result}); err != nil {
		r.logger.Printf("report eval result to coordinator: %v", err)
	}
}

// evalLocally resolves every value.KindFnCall field of t through the
// dispatch registry, building the concrete tuple eval ultimately inserts.
func (r *Runtime) evalLocally(t value.Tuple) (value.Tuple, error) {
	fields := make([]value.Value, t.Size())
	for i := 0; i < t.Size(); i++ {
		f := t.At(i)
		if f.Kind() != value.KindFnCall {
			fields[i] = f
			continue
		}
		out, err := r.registry.Call(f.FnCall())
		if err != nil {
			return value.Tuple{}, err
		}
		if out.Size() != 1 {
			return value.Tuple{}, fmt.Errorf("runtime: eval function %q must return exactly one value, got %d", f.FnCall().Name, out.Size())
		}
		fields[i] = out.At(0)
	}
	return value.NewTuple(fields...), nil
}

// Out inserts t into the store, non-blocking from the caller's
// perspective regardless of which rank is calling.
func (r *Runtime) Out(t value.Tuple) error {
	if r.transport.Rank() == 0 {
		r.store.Insert(t)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
	defer cancel()
	return r.transport.Send(ctx, 0, transport.Envelope{Tag: transport.MsgInsert, Tuple: t})
}

// Eval dispatches t's value.KindFnCall fields for evaluation on a
// balancer-chosen worker rank (or locally, if there is no worker rank to
// choose from), which inserts the fully evaluated tuple into the store
// once done. Eval does not block waiting for that to happen.
func (r *Runtime) Eval(t value.Tuple) error {
	worldSize := r.transport.WorldSize()
	if worldSize < 2 {
		result, err := r.evalLocally(t)
		if err != nil {
			return err
		}
		return r.Out(result)
	}
	target := r.bal.Pick(worldSize)
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
	defer cancel()
	return r.transport.Send(ctx, target, transport.Envelope{Tag: transport.MsgEval, Tuple: t})
}

// Rd returns a tuple matching q, blocking until one is available.
func (r *Runtime) Rd(q query.Query) (tup value.Tuple, err error) {
	if r.transport.Rank() == 0 {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == store.ErrTerminated {
					err = ErrTerminated
					return
				}
				panic(rec)
			}
		}()
		tup = r.store.Read(q)
		q.BindAll(tup)
		return tup, nil
	}
	resp, err := r.request(transport.MsgSearch, q)
	if err != nil {
		return value.Tuple{}, err
	}
	q.BindAll(resp.Tuple)
	return resp.Tuple, nil
}

// Rdp is the non-blocking counterpart of Rd.
func (r *Runtime) Rdp(q query.Query) (value.Tuple, bool, error) {
	if r.transport.Rank() == 0 {
		tup, ok := r.store.TryRead(q)
		if ok {
			q.BindAll(tup)
		}
		return tup, ok, nil
	}
	resp, err := r.request(transport.MsgTrySearch, q)
	if err != nil {
		return value.Tuple{}, false, err
	}
	if resp.Vote {
		q.BindAll(resp.Tuple)
	}
	return resp.Tuple, resp.Vote, nil
}

// In removes and returns a tuple matching q, blocking until one is
// available, driven through the two-phase remove protocol.
func (r *Runtime) In(q query.Query) (value.Tuple, error) {
	if r.transport.Rank() == 0 {
		for {
			select {
			case <-r.closed:
				return value.Tuple{}, ErrTerminated
			default:
			}
			tup, ok := r.twoPhaseRemove(context.Background(), q)
			if ok {
				q.BindAll(tup)
				return tup, nil
			}
			time.Sleep(r.opts.VoteInterval)
		}
	}
	resp, err := r.request(transport.MsgDelete, q)
	if err != nil {
		return value.Tuple{}, err
	}
	q.BindAll(resp.Tuple)
	return resp.Tuple, nil
}

// Inp is the non-blocking counterpart of In.
func (r *Runtime) Inp(q query.Query) (value.Tuple, bool, error) {
	if r.transport.Rank() == 0 {
		tup, ok := r.twoPhaseRemove(context.Background(), q)
		if ok {
			q.BindAll(tup)
		}
		return tup, ok, nil
	}
	resp, err := r.request(transport.MsgTryDelete, q)
	if err != nil {
		return value.Tuple{}, false, err
	}
	if resp.Vote {
		q.BindAll(resp.Tuple)
	}
	return resp.Tuple, resp.Vote, nil
}

// request sends q to the coordinator and waits for its correlated
// response. The send is bounded by VoteTimeout; so is the wait for the
// non-blocking tags, while MsgSearch and MsgDelete wait until the
// coordinator answers or this Runtime is closed.
func (r *Runtime) request(tag transport.MsgTag, q query.Query) (transport.Envelope, error) {
	reqID := r.nextReqID()
	mask, rep := encodeQuery(q)
	ch := make(chan transport.Envelope, 1)
	r.pendingMu.Lock()
	r.pending[reqID] = ch
	r.pendingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
	defer cancel()
	if err := r.transport.Send(ctx, 0, transport.Envelope{Tag: tag, ReqID: reqID, Tuple: rep, WildcardMask: mask}); err != nil {
		r.pendingMu.Lock()
		delete(r.pending, reqID)
		r.pendingMu.Unlock()
		return transport.Envelope{}, err
	}

	var expired <-chan struct{}
	if tag != transport.MsgSearch && tag != transport.MsgDelete {
		expired = ctx.Done()
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-expired:
		r.pendingMu.Lock()
		delete(r.pending, reqID)
		r.pendingMu.Unlock()
		return transport.Envelope{}, ctx.Err()
	case <-r.closed:
		return transport.Envelope{}, ErrTerminated
	}
}

func encodeQuery(q query.Query) (mask uint64, rep value.Tuple) {
	rep = q.AsRepresentingTuple()
	for i := 0; i < q.Size(); i++ {
		if q.Field(i).IsWildcard() {
			mask |= 1 << uint(i)
		}
	}
	return mask, rep
}

func decodeQuery(rep value.Tuple, mask uint64) query.Query {
	fields := make([]query.Field, rep.Size())
	for i := 0; i < rep.Size(); i++ {
		if mask&(1<<uint(i)) != 0 {
			fields[i] = query.NewWildcardField(rep.At(i).Kind(), nil)
		} else {
			fields[i] = query.NewValueField(rep.At(i))
		}
	}
	return query.NewPiecewise(fields...)
}

// shutdownLocal is run when MsgTerminate arrives from another rank: close
// this rank's own resources without trying to notify anyone else (the
// sender is already shutting the whole deployment down).
func (r *Runtime) shutdownLocal() {
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.store != nil {
			r.store.Close()
		}
		r.pool.Close()
		r.transport.Close()
	})
}

// Close shuts this Runtime down: if this is the coordinator, it first
// broadcasts MsgTerminate to every other rank, then tears down its own
// store, work pool and transport. Blocking Rd/In calls unblock with
// ErrTerminated, on the coordinator as on every other rank.
func (r *Runtime) Close() {
	if r.transport.Rank() == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.VoteTimeout)
		defer cancel()
		for p := 1; p < r.transport.WorldSize(); p++ {
			r.transport.Send(ctx, p, transport.Envelope{Tag: transport.MsgTerminate})
		}
	}
	r.shutdownLocal()
	r.wg.Wait()
}

// Stats renders this rank's runtime stats. See stats.go.
func (r *Runtime) Stats() fmt.Stringer {
	return r.statsSnapshot()
}

// Registry returns the eval dispatch registry this Runtime was built
// with, so callers can register function handlers after construction.
func (r *Runtime) Registry() *dispatch.Registry {
	return r.registry
}

// RankOf is this Runtime's peer rank in [0, WorldSize()).
func (r *Runtime) RankOf() int {
	return r.transport.Rank()
}
