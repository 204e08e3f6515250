package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/bodand/lindadb/balancer"
	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/transport"
	"github.com/bodand/lindadb/transport/local"
	"github.com/bodand/lindadb/value"
)

// vetoingTransport wraps a local.Transport, vetoing every AllReduceAND call
// so twoPhaseRemove's fail-closed reinsert path can be exercised
// deterministically.
type vetoingTransport struct {
	transport.Transport
}

func (v *vetoingTransport) AllReduceAND(ctx context.Context, group []int, vote bool) (bool, bool) {
	return false, true
}

func TestTwoPhaseRemoveCommitsWithDefaultVoteGroup(t *testing.T) {
	rt := New(local.NewNetwork(1)[0], balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	defer rt.Close()

	tup := value.NewTuple(value.NewInt32(1))
	rt.store.Insert(tup)

	got, ok := rt.twoPhaseRemove(context.Background(), query.NewConcrete(tup))
	if !ok {
		t.Fatal("expected commit with default single-voter group")
	}
	if !value.TuplesEqual(got, tup) {
		t.Fatalf("got %v want %v", got, tup)
	}
	if rt.store.Len() != 0 {
		t.Fatalf("expected tuple removed, store len %d", rt.store.Len())
	}
}

func TestTwoPhaseRemoveReinsertsOnVeto(t *testing.T) {
	peer := local.NewNetwork(1)[0]
	rt := New(&vetoingTransport{Transport: peer}, balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	defer rt.Close()

	tup := value.NewTuple(value.NewInt32(2))
	rt.store.Insert(tup)

	start := time.Now()
	_, ok := rt.twoPhaseRemove(context.Background(), query.NewConcrete(tup))
	if ok {
		t.Fatal("expected vetoed consensus to fail")
	}
	if elapsed := time.Since(start); elapsed < time.Duration(rt.opts.VoteAttempts-1)*rt.opts.VoteInterval {
		t.Fatalf("expected twoPhaseRemove to retry VoteAttempts times, elapsed %v", elapsed)
	}
	if rt.store.Len() != 1 {
		t.Fatalf("expected tuple reinserted after veto, store len %d", rt.store.Len())
	}
	got, found := rt.store.TryRead(query.NewConcrete(tup))
	if !found || !value.TuplesEqual(got, tup) {
		t.Fatalf("expected reinserted tuple to still match, found=%v got=%v", found, got)
	}
}

func TestTwoPhaseRemoveNotFoundNeverVotes(t *testing.T) {
	rt := New(local.NewNetwork(1)[0], balancer.NewRoundRobin(), dispatch.NewRegistry(), testOpts())
	defer rt.Close()

	_, ok := rt.twoPhaseRemove(context.Background(), query.NewConcrete(value.NewTuple(value.NewInt32(999))))
	if ok {
		t.Fatal("expected not-found query to report no match")
	}
}
