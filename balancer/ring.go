package balancer

import (
	"sync/atomic"

	"github.com/gholt/ring"
)

// Ring places tuples by consistent-hash partition lookup instead of
// round-robin or uniform-random, for deployments that want repeated
// placements of the "same kind of work" to land on the same worker rank.
// It wraps a *ring.Ring: instead of asking the ring which node owns a
// key's partition on disk, it asks which partition a monotonically
// increasing placement counter falls into, then maps that partition's
// first responsible node ID to a worker rank.
//
// This is a best-effort wrapper: gholt/ring's full API is wide (version
// negotiation, replica sets, node add/remove) and only its partition and
// responsibility queries are exercised here, the minimal subset a
// placement strategy needs.
type Ring struct {
	r       *ring.Ring
	counter uint64
	// rankOf maps a ring node ID to the peer rank that node represents.
	rankOf map[uint64]int
}

// NewRing builds a Ring balancer over r, using rankOf to translate ring
// node IDs into peer ranks in [1, worldSize).
func NewRing(r *ring.Ring, rankOf map[uint64]int) *Ring {
	return &Ring{r: r, rankOf: rankOf}
}

func (b *Ring) Pick(worldSize int) int {
	if worldSize < 2 {
		panic("balancer: Ring.Pick requires worldSize >= 2")
	}
	n := atomic.AddUint64(&b.counter, 1) - 1
	partitionCount := uint32(1) << b.r.PartitionBitCount()
	partition := uint32(n) % partitionCount
	nodes := b.r.ResponsibleNodes(partition)
	for _, node := range nodes {
		if rank, ok := b.rankOf[node.ID()]; ok {
			return rank
		}
	}
	// No ring node maps to a known rank (stale membership); fall back to
	// the same wrap-around round robin the simpler balancer uses so a
	// placement never stalls waiting for ring membership to catch up.
	return 1 + int(n%uint64(worldSize-1))
}
