package runtime

import (
	"context"
	"time"

	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/value"
)

// twoPhaseRemove tentatively removes a tuple matching q, then drives
// opts.VoteGroup through Transport.AllReduceAND to decide whether that
// removal commits. With the default VoteGroup of {0} (the coordinator
// alone) this degenerates to "tentatively remove, immediately commit", but
// the shape mirrors the real multi-shard protocol: a future deployment that
// shards the store across several ranks would put every shard owner in
// VoteGroup, so a tuple is only actually gone once every shard that could
// have raced to remove it agrees.
//
// Polls up to opts.VoteAttempts times, opts.VoteInterval apart, giving a
// concurrently racing remove on another shard a chance to resolve before
// giving up. On timeout, or a vetoed consensus, the tentatively removed
// tuple is reinserted (fail closed: a tuple is never lost to an
// inconclusive vote).
func (r *Runtime) twoPhaseRemove(ctx context.Context, q query.Query) (value.Tuple, bool) {
	for attempt := 0; attempt < r.opts.VoteAttempts; attempt++ {
		tup, ok := r.store.RemoveNoSignal(q)
		if !ok {
			return value.Tuple{}, false
		}

		voteCtx, cancel := context.WithTimeout(ctx, r.opts.VoteTimeout)
		consensus, reduced := r.transport.AllReduceAND(voteCtx, r.opts.VoteGroup, true)
		cancel()

		if reduced && consensus {
			return tup, true
		}

		// Veto or timeout: the tentative removal did not stick. Put the
		// tuple back and let another reader or a retry attempt pick it
		// up rather than dropping it.
		r.store.InsertNoSignal(tup)

		if attempt+1 < r.opts.VoteAttempts {
			time.Sleep(r.opts.VoteInterval)
		}
	}
	return value.Tuple{}, false
}
