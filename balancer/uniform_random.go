package balancer

import (
	"math/rand"
	"sync"
)

// UniformRandom picks a uniformly random rank in [1, worldSize) on every
// call. Its own *rand.Rand keeps it independent of the global source.
type UniformRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewUniformRandom(seed int64) *UniformRandom {
	return &UniformRandom{rng: rand.New(rand.NewSource(seed))}
}

func (u *UniformRandom) Pick(worldSize int) int {
	if worldSize < 2 {
		panic("balancer: UniformRandom.Pick requires worldSize >= 2")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return 1 + u.rng.Intn(worldSize-1)
}
