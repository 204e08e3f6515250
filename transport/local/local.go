// Package local implements an in-process transport.Transport for tests and
// single-process deployments: peers exchange Envelopes over Go channels
// instead of a socket, and AllReduceAND is a simple barrier rendezvous
// instead of a network protocol.
package local

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bodand/lindadb/transport"
)

const inboxSize = 64

// hub is the shared state every peer spawned by NewNetwork holds a
// reference to: per-rank inboxes and the AllReduceAND barrier table.
type hub struct {
	worldSize int
	inboxes   []chan transport.Envelope
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	barriers map[string]*barrier
}

type barrier struct {
	total int
	count int
	and   bool
	done  chan struct{}
}

// NewNetwork builds worldSize peers sharing one in-process hub, indexed by
// rank [0, worldSize).
func NewNetwork(worldSize int) []transport.Transport {
	if worldSize < 1 {
		panic("local: NewNetwork requires worldSize >= 1")
	}
	h := &hub{
		worldSize: worldSize,
		inboxes:   make([]chan transport.Envelope, worldSize),
		closed:    make(chan struct{}),
		barriers:  make(map[string]*barrier),
	}
	for i := range h.inboxes {
		h.inboxes[i] = make(chan transport.Envelope, inboxSize)
	}
	peers := make([]transport.Transport, worldSize)
	for i := 0; i < worldSize; i++ {
		peers[i] = &Transport{hub: h, rank: i}
	}
	return peers
}

// Transport is one peer's view of an in-process network.
type Transport struct {
	hub  *hub
	rank int
}

func (t *Transport) Rank() int      { return t.rank }
func (t *Transport) WorldSize() int { return t.hub.worldSize }

func (t *Transport) Send(ctx context.Context, to int, env transport.Envelope) error {
	env.From = t.rank
	select {
	case <-t.hub.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case t.hub.inboxes[to] <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.hub.closed:
		return transport.ErrClosed
	}
}

func (t *Transport) Recv(ctx context.Context) (transport.Envelope, error) {
	select {
	case env := <-t.hub.inboxes[t.rank]:
		return env, nil
	case <-ctx.Done():
		return transport.Envelope{}, ctx.Err()
	case <-t.hub.closed:
		return transport.Envelope{}, transport.ErrClosed
	}
}

func groupKey(group []int) string {
	sorted := append([]int(nil), group...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = fmt.Sprintf("%d", r)
	}
	return strings.Join(parts, ",")
}

// AllReduceAND implements a round barrier: the group's participants each
// call in with their vote; the last arrival computes the AND and wakes
// everyone waiting on it. Rounds for the same group are sequential --
// exactly how the two-phase remove protocol drives this transport, one
// vote round at a time.
func (t *Transport) AllReduceAND(ctx context.Context, group []int, vote bool) (bool, bool) {
	key := groupKey(group)
	t.hub.mu.Lock()
	b, ok := t.hub.barriers[key]
	if !ok {
		b = &barrier{total: len(group), and: true, done: make(chan struct{})}
		t.hub.barriers[key] = b
	}
	b.and = b.and && vote
	b.count++
	reached := b.count == b.total
	if reached {
		delete(t.hub.barriers, key)
	}
	t.hub.mu.Unlock()

	if reached {
		close(b.done)
		return b.and, true
	}

	select {
	case <-b.done:
		return b.and, true
	case <-ctx.Done():
		return false, false
	case <-t.hub.closed:
		return false, false
	}
}

func (t *Transport) Close() error {
	t.hub.closeOnce.Do(func() { close(t.hub.closed) })
	return nil
}
