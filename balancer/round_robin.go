package balancer

import "sync/atomic"

// RoundRobin cycles through ranks [1, worldSize) in order, wrapping back to
// 1 after worldSize-1, using a plain atomic counter rather than a
// mutex-guarded one.
type RoundRobin struct {
	next uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Pick(worldSize int) int {
	if worldSize < 2 {
		panic("balancer: RoundRobin.Pick requires worldSize >= 2")
	}
	span := uint64(worldSize - 1)
	n := atomic.AddUint64(&r.next, 1) - 1
	return 1 + int(n%span)
}
