// Package store implements the indexed tuple collection every Linda
// operation ultimately reads or mutates: an in-memory, thread-safe
// multiset of value.Tuple with up to Fanout positional indices accelerating
// lookups, falling back to a hash-bucketed linear scan for all-wildcard
// queries.
//
// The matching algorithm walks each indexed field in turn, short-circuits
// on the first found or not-found, and only falls back to a full scan
// when every index reports incomparable (an all-wildcard query).
package store

import (
	"container/list"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"gopkg.in/gholt/brimtime.v1"

	"github.com/bodand/lindadb/query"
	"github.com/bodand/lindadb/value"
)

// tupleNode is one stored tuple plus the bookkeeping needed to unlink it
// from every index and from the primary collection in O(1) once located.
type tupleNode struct {
	tuple     value.Tuple
	elem      *list.Element // this node's element in Store.primary
	timestamp int64         // brimtime.v1 insertion timestamp, oldest-wins tie-break
}

// Store is a thread-safe, in-memory multiset of tuples. The zero Store is
// not usable; construct one with New.
type Store struct {
	mu   sync.Mutex
	cond *sync.Cond

	primary *list.List // insertion order, oldest (front) to newest
	indices [Fanout]*index

	// hashBuckets groups live tuples by a murmur3 hash of their per-field
	// Kind signature, so the all-wildcard fallback scan only walks tuples
	// whose shape could possibly satisfy the query instead of every tuple
	// in the store.
	hashBuckets map[uint64][]*tupleNode

	closed bool
}

// New constructs an empty Store.
func New() *Store {
	s := &Store{
		primary:     list.New(),
		hashBuckets: make(map[uint64][]*tupleNode),
	}
	for i := range s.indices {
		s.indices[i] = newIndex()
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// signature hashes a tuple's (or a query's representing tuple's) per-field
// Kind sequence, used to pre-filter the all-wildcard scan fallback.
func signature(t value.Tuple) uint64 {
	h := murmur3.New64()
	for i := 0; i < t.Size(); i++ {
		h.Write([]byte{byte(t.At(i).Kind())})
	}
	return h.Sum64()
}

func (s *Store) insertLocked(t value.Tuple) {
	n := &tupleNode{tuple: t, timestamp: brimtime.TimeToUnixMicro(time.Now())}
	n.elem = s.primary.PushBack(n)

	for i := 0; i < t.Size() && i < Fanout; i++ {
		s.indices[i].insert(t.At(i), n)
	}

	sig := signature(t)
	s.hashBuckets[sig] = append(s.hashBuckets[sig], n)
}

func (s *Store) unlinkLocked(n *tupleNode, foundAt int) {
	for i := range s.indices {
		if i == foundAt || i >= n.tuple.Size() {
			continue
		}
		s.indices[i].removeNode(n.tuple.At(i), n)
	}
	s.primary.Remove(n.elem)

	sig := signature(n.tuple)
	bucket := s.hashBuckets[sig]
	for i, cand := range bucket {
		if cand == n {
			s.hashBuckets[sig] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// performMatch runs the indexed-match algorithm: consult each of the first
// Fanout query positions' indices in turn, short-circuiting on the first
// found or not-found result, falling back to a hash-bucketed scan when
// every consulted index reported incomparable. When destructive is true, a
// hit is fully unlinked from the store before being returned.
func (s *Store) performMatch(q query.Query, destructive bool) (*tupleNode, bool) {
	n := q.Size()
	if n > Fanout {
		n = Fanout
	}
	for i := 0; i < n; i++ {
		var fm query.FieldMatch
		if destructive {
			fm = q.RemoveViaField(i, s.indices[i])
		} else {
			fm = q.SearchViaField(i, s.indices[i])
		}
		if fm.Incomparable {
			continue
		}
		if !fm.Found {
			return nil, false
		}
		node := fm.Handle.(*tupleNode)
		if destructive {
			s.unlinkLocked(node, i)
		}
		return node, true
	}
	return s.scanFallback(q, destructive)
}

// scanFallback walks the hash bucket matching q's type signature, oldest
// entry first, used when the query is all-wildcard (no index could narrow
// the search) or empty.
func (s *Store) scanFallback(q query.Query, destructive bool) (*tupleNode, bool) {
	sig := signature(q.AsRepresentingTuple())
	for _, n := range s.hashBuckets[sig] {
		if q.Matches(n.tuple) {
			if destructive {
				s.unlinkLocked(n, -1)
			}
			return n, true
		}
	}
	return nil, false
}

// Insert adds t to the store and wakes any goroutine blocked in Read or
// Remove waiting for a matching tuple to appear.
func (s *Store) Insert(t value.Tuple) {
	s.mu.Lock()
	s.insertLocked(t)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// InsertNoSignal is Insert without the wakeup broadcast. It exists for the
// two-phase remove protocol's reinsert-on-vote-failure path, where
// repeatedly waking every blocked reader for a tuple that is reappearing
// exactly where it was a moment ago would only add churn under contention.
func (s *Store) InsertNoSignal(t value.Tuple) {
	s.mu.Lock()
	s.insertLocked(t)
	s.mu.Unlock()
}

// Read returns a tuple matching q, blocking until one is inserted if none
// is currently present. It panics with ErrTerminated if the store is
// Close()d while waiting or before being called.
func (s *Store) Read(q query.Query) value.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			panic(ErrTerminated)
		}
		if node, ok := s.performMatch(q, false); ok {
			return node.tuple
		}
		s.cond.Wait()
	}
}

// TryRead is the non-blocking counterpart of Read.
func (s *Store) TryRead(q query.Query) (value.Tuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return value.Tuple{}, false
	}
	node, ok := s.performMatch(q, false)
	if !ok {
		return value.Tuple{}, false
	}
	return node.tuple, true
}

// Remove returns and deletes a tuple matching q, blocking until one is
// inserted if none is currently present.
func (s *Store) Remove(q query.Query) value.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			panic(ErrTerminated)
		}
		if node, ok := s.performMatch(q, true); ok {
			return node.tuple
		}
		s.cond.Wait()
	}
}

// TryRemove is the non-blocking counterpart of Remove.
func (s *Store) TryRemove(q query.Query) (value.Tuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return value.Tuple{}, false
	}
	return s.tryRemoveLocked(q)
}

func (s *Store) tryRemoveLocked(q query.Query) (value.Tuple, bool) {
	node, ok := s.performMatch(q, true)
	if !ok {
		return value.Tuple{}, false
	}
	return node.tuple, true
}

// RemoveNoSignal is the two-phase remove protocol's tentative-removal
// primitive. It behaves exactly like TryRemove -- removal never needs to
// wake anyone, since nothing blocks waiting for a slot to free up -- kept
// as its own named method to mirror the vote/commit/abort call sites in
// runtime's remove protocol rather than reusing the public TryRemove name
// for an internal step.
func (s *Store) RemoveNoSignal(q query.Query) (value.Tuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return value.Tuple{}, false
	}
	return s.tryRemoveLocked(q)
}

// Close marks the store terminated and wakes every blocked Read/Remove so
// they can unwind via ErrTerminated instead of hanging forever.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Len reports how many tuples the store currently holds. Used by
// runtime's debug stats rendering.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.Len()
}

// OldestTimestamp returns the brimtime.v1 insertion timestamp of the
// longest-resident tuple, or ok=false if the store is empty. Used by
// runtime's debug stats rendering to surface how stale the oldest
// unmatched tuple is.
func (s *Store) OldestTimestamp() (ts int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := s.primary.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(*tupleNode).timestamp, true
}
