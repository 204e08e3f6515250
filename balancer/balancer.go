// Package balancer picks which worker rank should execute an eval
// dispatch's function body. It has no say over where out places a tuple:
// that is always rank 0, the sole store-owning coordinator.
//
// A pluggable "who is responsible for this" strategy handed to the
// runtime at construction time.
package balancer

// Balancer decides which peer rank in [1, worldSize) should execute the
// next eval dispatch. Rank 0 never appears as a target: it's the
// store-owning coordinator, never an eval worker.
type Balancer interface {
	// Pick returns a rank in [1, worldSize) to receive the next placement.
	// worldSize must be >= 2; Pick panics otherwise, since with no worker
	// ranks there is nowhere to place anything.
	Pick(worldSize int) int
}
