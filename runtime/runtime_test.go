package runtime

import (
	"testing"
	"time"

	"github.com/bodand/lindadb/balancer"
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/transport/local"
	"github.com/bodand/lindadb/value"
)

func testOpts() *Opts {
	return &Opts{
		Workers:      2,
		QueueSize:    16,
		VoteAttempts: 3,
		VoteInterval: time.Millisecond,
		VoteTimeout:  time.Second,
		VoteGroup:    []int{0},
	}
}

func newTestDeployment(t *testing.T, worldSize int) ([]*Runtime, func()) {
	t.Helper()
	peers := local.NewNetwork(worldSize)
	runtimes := make([]*Runtime, worldSize)
	for i, p := range peers {
		runtimes[i] = New(p, balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	}
	return runtimes, func() {
		runtimes[0].Close()
	}
}

func TestOutThenRdAtCoordinator(t *testing.T) {
	rts, closeAll := newTestDeployment(t, 1)
	defer closeAll()

	tup := value.NewTuple(value.NewString("greeting"), value.NewInt32(42))
	if err := rts[0].Out(tup); err != nil {
		t.Fatalf("out: %v", err)
	}

	var out value.Value
	q := query.NewPiecewise(
		query.NewValueField(value.NewString("greeting")),
		query.NewWildcardField(value.KindInt32, &out),
	)
	got, err := rts[0].Rd(q)
	if err != nil {
		t.Fatalf("rd: %v", err)
	}
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("got %v want %v", got, tup)
	}
	if out.Int32() != 42 {
		t.Fatalf("wildcard not bound, got %v", out)
	}
}

func TestOutFromWorkerForwardsToCoordinator(t *testing.T) {
	rts, closeAll := newTestDeployment(t, 2)
	defer closeAll()

	tup := value.NewTuple(value.NewInt64(99))
	if err := rts[1].Out(tup); err != nil {
		t.Fatalf("out from worker: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		q := query.NewConcrete(tup)
		if got, ok, err := rts[0].Rdp(q); err == nil && ok {
			if !value.TuplesEqual(got, tup) {
				t.Fatalf("got %v want %v", got, tup)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("tuple never arrived at coordinator")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestInpFromWorkerRoundTrip(t *testing.T) {
	rts, closeAll := newTestDeployment(t, 2)
	defer closeAll()

	tup := value.NewTuple(value.NewString("job"), value.NewInt32(7))
	if err := rts[0].Out(tup); err != nil {
		t.Fatalf("out: %v", err)
	}

	q := query.NewConcrete(tup)
	var got value.Tuple
	var ok bool
	var err error
	deadline := time.After(time.Second)
	for {
		got, ok, err = rts[1].Inp(q)
		if err != nil {
			t.Fatalf("inp: %v", err)
		}
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("tuple never became available")
		case <-time.After(time.Millisecond):
		}
	}
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("got %v want %v", got, tup)
	}

	if _, ok, err := rts[1].Inp(q); err != nil || ok {
		t.Fatalf("expected tuple gone after in, got ok=%v err=%v", ok, err)
	}
}

func TestEvalDispatchesAndInsertsResult(t *testing.T) {
	reg := dispatch.NewRegistry()
	doubleSig := dispatch.Signature{Params: []value.Kind{value.KindInt32}, Result: []value.Kind{value.KindInt32}}
	reg.Register("double", doubleSig, func(args value.Tuple) (value.Tuple, error) {
		return value.NewTuple(value.NewInt32(args.At(0).Int32() * 2)), nil
	})

	peers := local.NewNetwork(2)
	coordinator := New(peers[0], balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	worker := New(peers[1], balancer.NewRoundRobin(), reg, testOpts())
	defer coordinator.Close()
	_ = worker

	call := value.NewTuple(value.NewFnCall("double", value.NewInt32(21)))
	if err := coordinator.Eval(call); err != nil {
		t.Fatalf("eval: %v", err)
	}

	want := value.NewTuple(value.NewInt32(42))
	deadline := time.After(time.Second)
	for {
		if got, ok, err := coordinator.Rdp(query.NewConcrete(want)); err == nil && ok {
			if !value.TuplesEqual(got, want) {
				t.Fatalf("got %v want %v", got, want)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("eval result never arrived")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestEvalLocalFallbackSingleRank(t *testing.T) {
	reg := dispatch.NewRegistry()
	incSig := dispatch.Signature{Params: []value.Kind{value.KindInt32}, Result: []value.Kind{value.KindInt32}}
	reg.Register("inc", incSig, func(args value.Tuple) (value.Tuple, error) {
		return value.NewTuple(value.NewInt32(args.At(0).Int32() + 1)), nil
	})
	rt := New(local.NewNetwork(1)[0], balancer.NewRoundRobin(), reg, testOpts())
	defer rt.Close()

	call := value.NewTuple(value.NewFnCall("inc", value.NewInt32(1)))
	if err := rt.Eval(call); err != nil {
		t.Fatalf("eval: %v", err)
	}
	got, ok, err := rt.Rdp(query.NewConcrete(value.NewTuple(value.NewInt32(2))))
	if err != nil || !ok {
		t.Fatalf("expected local eval result, ok=%v err=%v", ok, err)
	}
	if got.At(0).Int32() != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestCloseUnblocksBlockedRd(t *testing.T) {
	rts, _ := newTestDeployment(t, 1)
	done := make(chan error, 1)
	var out value.Value
	q := query.NewPiecewise(query.NewWildcardField(value.KindInt32, &out))
	go func() {
		_, err := rts[0].Rd(q)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	rts[0].Close()
	select {
	case err := <-done:
		if err != ErrTerminated {
			t.Fatalf("expected ErrTerminated, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected close to unblock Rd")
	}
}
