package linda

import (
	"testing"
	"time"

	"github.com/bodand/lindadb/balancer"
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/runtime"
	"github.com/bodand/lindadb/transport/local"
	"github.com/bodand/lindadb/value"
)

func testOpts() *runtime.Opts {
	return &runtime.Opts{
		Workers:      2,
		QueueSize:    16,
		VoteAttempts: 3,
		VoteInterval: time.Millisecond,
		VoteTimeout:  time.Second,
		VoteGroup:    []int{0},
	}
}

func TestOutRdInRoundTrip(t *testing.T) {
	space := Open(local.NewNetwork(1)[0], balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	defer space.Close()

	tup := value.NewTuple(value.NewString("task"), value.NewInt32(3))
	if err := space.Out(tup); err != nil {
		t.Fatalf("out: %v", err)
	}

	var n value.Value
	readQ := query.NewPiecewise(
		query.NewValueField(value.NewString("task")),
		query.NewWildcardField(value.KindInt32, &n),
	)
	got, err := space.Rd(readQ)
	if err != nil {
		t.Fatalf("rd: %v", err)
	}
	if !value.TuplesEqual(got, tup) || n.Int32() != 3 {
		t.Fatalf("got %v, n=%v", got, n)
	}

	removed, err := space.In(query.NewConcrete(tup))
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if !value.TuplesEqual(removed, tup) {
		t.Fatalf("got %v want %v", removed, tup)
	}

	if _, ok, err := space.Inp(query.NewConcrete(tup)); err != nil || ok {
		t.Fatalf("expected tuple gone, ok=%v err=%v", ok, err)
	}
}

func TestEvalAcrossTwoRanks(t *testing.T) {
	peers := local.NewNetwork(2)
	reg := dispatch.NewRegistry()
	squareSig := dispatch.Signature{Params: []value.Kind{value.KindInt32}, Result: []value.Kind{value.KindInt32}}
	reg.Register("square", squareSig, func(args value.Tuple) (value.Tuple, error) {
		n := args.At(0).Int32()
		return value.NewTuple(value.NewInt32(n * n)), nil
	})

	coordinator := Open(peers[0], balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	worker := Open(peers[1], balancer.NewRoundRobin(), reg, testOpts())
	defer coordinator.Close()
	_ = worker

	if err := coordinator.Eval(value.NewTuple(value.NewFnCall("square", value.NewInt32(6)))); err != nil {
		t.Fatalf("eval: %v", err)
	}

	want := value.NewTuple(value.NewInt32(36))
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
