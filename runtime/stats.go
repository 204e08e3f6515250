package runtime

import (
	"fmt"

	"github.com/gholt/brimtext"
)

// Stats is a point-in-time snapshot of a Runtime's resource usage: a plain
// data struct whose String renders as an aligned key/value table via
// brimtext.Align.
type Stats struct {
	extended bool

	rank      int
	worldSize int

	// storeLen and oldestTimestamp are only meaningful at rank 0, the sole
	// store owner; elsewhere they are zero.
	storeLen        int
	hasOldest       bool
	oldestTimestamp int64

	pendingRequests int
}

func (r *Runtime) statsSnapshot() *Stats {
	s := &Stats{
		rank:      r.transport.Rank(),
		worldSize: r.transport.WorldSize(),
	}
	if r.store != nil {
		s.storeLen = r.store.Len()
		s.oldestTimestamp, s.hasOldest = r.store.OldestTimestamp()
	}
	r.pendingMu.Lock()
	s.pendingRequests = len(r.pending)
	r.pendingMu.Unlock()
	return s
}

// Extended reports debug-level detail in String instead of just the
// summary fields.
func (s *Stats) Extended(extended bool) *Stats {
	s.extended = extended
	return s
}

func (s *Stats) String() string {
	rows := [][]string{
		{"rank", fmt.Sprintf("%d", s.rank)},
		{"worldSize", fmt.Sprintf("%d", s.worldSize)},
	}
	if s.extended {
		rows = append(rows,
			[]string{"pendingRequests", fmt.Sprintf("%d", s.pendingRequests)},
		)
		if s.rank == 0 {
			oldest := "n/a"
			if s.hasOldest {
				oldest = fmt.Sprintf("%d", s.oldestTimestamp)
			}
			rows = append(rows,
				[]string{"storeLen", fmt.Sprintf("%d", s.storeLen)},
				[]string{"oldestTimestamp", oldest},
			)
		}
	} else if s.rank == 0 {
		rows = append(rows, []string{"storeLen", fmt.Sprintf("%d", s.storeLen)})
	}
	return brimtext.Align(rows, nil)
}
