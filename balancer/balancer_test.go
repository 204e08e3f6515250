package balancer

import "testing"

func TestRoundRobinCyclesAndWraps(t *testing.T) {
	rr := NewRoundRobin()
	worldSize := 4
	var got []int
	for i := 0; i < 6; i++ {
		got = append(got, rr.Pick(worldSize))
	}
	want := []int{1, 2, 3, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d: got %v want %v", i, got, want)
		}
	}
}

func TestRoundRobinRejectsTooSmallWorld(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for worldSize < 2")
		}
	}()
	NewRoundRobin().Pick(1)
}

func TestUniformRandomStaysInRange(t *testing.T) {
	ur := NewUniformRandom(42)
	for i := 0; i < 200; i++ {
		rank := ur.Pick(5)
		if rank < 1 || rank >= 5 {
			t.Fatalf("rank %d out of range [1,5)", rank)
		}
	}
}

func TestUniformRandomRejectsTooSmallWorld(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for worldSize < 2")
		}
	}()
	NewUniformRandom(1).Pick(1)
}
