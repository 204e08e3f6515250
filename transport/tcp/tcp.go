// Package tcp implements transport.Transport over real net.Conn
// connections: one reader goroutine and one writer goroutine per
// connection, a type-then-length wire frame, read/write deadlines so a
// wedged peer doesn't hang the connection forever, and stdlib *log.Logger
// for connection-level errors instead of a structured logging library.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bodand/lindadb/transport"
	"github.com/bodand/lindadb/wire"
)

const ioDeadline = 5 * time.Second

// conn wraps one net.Conn to a single peer rank with an async write
// channel paired to a blocking read loop.
type conn struct {
	peerRank int
	nc       net.Conn
	writeCh  chan transport.Envelope
	closeCh  chan struct{}
	closeOnce sync.Once
}

func newConn(peerRank int, nc net.Conn) *conn {
	return &conn{peerRank: peerRank, nc: nc, writeCh: make(chan transport.Envelope, 64), closeCh: make(chan struct{})}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.nc.Close()
	})
}

// Transport is a multi-peer TCP transport.Transport. Construct with Dial,
// which both accepts inbound connections and dials outbound ones until
// every peer in [0, worldSize) is reachable.
type Transport struct {
	rank      int
	worldSize int

	mu    sync.RWMutex
	conns map[int]*conn

	recvCh chan transport.Envelope
	closed chan struct{}
	closeOnce sync.Once

	roundCounters sync.Map // groupKey string -> *uint64

	aggMu sync.Mutex
	aggregates map[uint64]*voteAgg

	pendingMu sync.Mutex
	pending   map[uint64]chan bool

	logError *log.Logger
}

type voteAgg struct {
	group []int
	and   bool
	count int
}

// Dial builds a Transport for rank, accepting inbound connections on
// listener and dialing out to every peer address in addrs (addrs[rank]
// is this peer's own listen address and is never dialed). It blocks until
// a connection to every other rank has been established or ctx expires.
func Dial(ctx context.Context, rank int, addrs []string, listener net.Listener) (*Transport, error) {
	t := &Transport{
		rank:       rank,
		worldSize:  len(addrs),
		conns:      make(map[int]*conn),
		recvCh:     make(chan transport.Envelope, 256),
		closed:     make(chan struct{}),
		aggregates: make(map[uint64]*voteAgg),
		pending:    make(map[uint64]chan bool),
		logError:   log.New(os.Stderr, "transport/tcp: ", log.LstdFlags),
	}

	go t.acceptLoop(listener)

	for peer, addr := range addrs {
		if peer == rank {
			continue
		}
		if peer < rank {
			// Lower ranks dial higher ranks; higher ranks wait to accept,
			// so exactly one connection forms per pair.
			continue
		}
		nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("transport/tcp: dial rank %d at %s: %w", peer, addr, err)
		}
		if err := handshakeOutbound(nc, rank); err != nil {
			return nil, err
		}
		t.adopt(peer, nc)
	}

	for {
		if t.connectedToAll() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (t *Transport) connectedToAll() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns) == t.worldSize-1
}

func handshakeOutbound(nc net.Conn, rank int) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(rank))
	_, err := nc.Write(b[:])
	return err
}

func (t *Transport) acceptLoop(listener net.Listener) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				t.logError.Printf("accept: %v", err)
				return
			}
		}
		go t.acceptOne(nc)
	}
}

func (t *Transport) acceptOne(nc net.Conn) {
	var b [4]byte
	if _, err := io.ReadFull(nc, b[:]); err != nil {
		t.logError.Printf("handshake read: %v", err)
		nc.Close()
		return
	}
	peer := int(binary.BigEndian.Uint32(b[:]))
	t.adopt(peer, nc)
}

func (t *Transport) adopt(peer int, nc net.Conn) {
	c := newConn(peer, nc)
	t.mu.Lock()
	t.conns[peer] = c
	t.mu.Unlock()
	go t.writeLoop(c)
	go t.readLoop(c)
}

func (t *Transport) writeLoop(c *conn) {
	for {
		select {
		case <-c.closeCh:
			return
		case env := <-c.writeCh:
			c.nc.SetWriteDeadline(time.Now().Add(ioDeadline))
			if err := writeEnvelope(c.nc, env); err != nil {
				t.logError.Printf("write to rank %d: %v", c.peerRank, err)
				c.close()
				return
			}
		}
	}
}

func (t *Transport) readLoop(c *conn) {
	for {
		c.nc.SetReadDeadline(time.Now().Add(ioDeadline * 6))
		env, err := readEnvelope(c.nc)
		if err != nil {
			if err != io.EOF {
				t.logError.Printf("read from rank %d: %v", c.peerRank, err)
			}
			c.close()
			return
		}
		env.From = c.peerRank
		switch env.Tag {
		case transport.MsgTerminate:
			fallthrough
		default:
			t.dispatch(env)
		}
	}
}

// dispatch routes an inbound envelope: vote traffic is intercepted for
// AllReduceAND bookkeeping, everything else is handed to the runtime via
// Recv.
func (t *Transport) dispatch(env transport.Envelope) {
	switch env.Tag {
	case transport.MsgVote:
		t.handleVote(env)
	case transport.MsgVoteResult:
		t.handleVoteResult(env)
	default:
		select {
		case t.recvCh <- env:
		case <-t.closed:
		}
	}
}

func (t *Transport) Rank() int      { return t.rank }
func (t *Transport) WorldSize() int { return t.worldSize }

func (t *Transport) Send(ctx context.Context, to int, env transport.Envelope) error {
	t.mu.RLock()
	c, ok := t.conns[to]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport/tcp: no connection to rank %d", to)
	}
	select {
	case c.writeCh <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return transport.ErrClosed
	}
}

func (t *Transport) Recv(ctx context.Context) (transport.Envelope, error) {
	select {
	case env := <-t.recvCh:
		return env, nil
	case <-ctx.Done():
		return transport.Envelope{}, ctx.Err()
	case <-t.closed:
		return transport.Envelope{}, transport.ErrClosed
	}
}

func groupKeyHash(group []int, round uint64) uint64 {
	h := fnv.New64a()
	for _, r := range group {
		fmt.Fprintf(h, "%d,", r)
	}
	fmt.Fprintf(h, ":%d", round)
	return h.Sum64()
}

func groupLeader(group []int) int {
	leader := group[0]
	for _, r := range group[1:] {
		if r < leader {
			leader = r
		}
	}
	return leader
}

func (t *Transport) nextRound(key string) uint64 {
	v, _ := t.roundCounters.LoadOrStore(key, new(uint64))
	counter := v.(*uint64)
	return atomic.AddUint64(counter, 1)
}

// AllReduceAND elects the lowest rank in group as aggregator: every other
// participant sends it a vote, it computes the AND once every vote has
// arrived, and broadcasts the result back. Rounds for a given group are
// correlated purely by call order (the Nth AllReduceAND call for a group
// at every participant is the same logical round), the same convention a
// real MPI-style collective relies on -- there is no out-of-band round
// handshake.
func (t *Transport) AllReduceAND(ctx context.Context, group []int, vote bool) (bool, bool) {
	key := groupKeyOf(group)
	round := t.nextRound(key)
	reqID := groupKeyHash(group, round)
	leader := groupLeader(group)

	if leader == t.rank {
		return t.aggregate(ctx, reqID, group, vote)
	}

	result := make(chan bool, 1)
	t.pendingMu.Lock()
	t.pending[reqID] = result
	t.pendingMu.Unlock()

	if err := t.Send(ctx, leader, transport.Envelope{Tag: transport.MsgVote, ReqID: reqID, Vote: vote}); err != nil {
		t.pendingMu.Lock()
		delete(t.pending, reqID)
		t.pendingMu.Unlock()
		return false, false
	}

	select {
	case consensus := <-result:
		return consensus, true
	case <-ctx.Done():
		return false, false
	case <-t.closed:
		return false, false
	}
}

func (t *Transport) aggregate(ctx context.Context, reqID uint64, group []int, ownVote bool) (bool, bool) {
	t.aggMu.Lock()
	t.aggregates[reqID] = &voteAgg{group: group, and: ownVote, count: 1}
	complete := len(group) == 1
	t.aggMu.Unlock()

	if !complete {
		waited := make(chan bool, 1)
		t.pendingMu.Lock()
		t.pending[reqID] = waited
		t.pendingMu.Unlock()
		select {
		case consensus := <-waited:
			return consensus, true
		case <-ctx.Done():
			return false, false
		case <-t.closed:
			return false, false
		}
	}

	t.aggMu.Lock()
	and := t.aggregates[reqID].and
	delete(t.aggregates, reqID)
	t.aggMu.Unlock()
	return and, true
}

func (t *Transport) handleVote(env transport.Envelope) {
	t.aggMu.Lock()
	agg, ok := t.aggregates[env.ReqID]
	if !ok {
		t.aggMu.Unlock()
		return
	}
	agg.and = agg.and && env.Vote
	agg.count++
	done := agg.count == len(agg.group)
	var and bool
	var group []int
	if done {
		and = agg.and
		group = agg.group
		delete(t.aggregates, env.ReqID)
	}
	t.aggMu.Unlock()

	if !done {
		return
	}
	// Resolve the leader's own pending wait, if it registered one, and
	// broadcast the result to every other participant.
	t.pendingMu.Lock()
	if ch, ok := t.pending[env.ReqID]; ok {
		ch <- and
		delete(t.pending, env.ReqID)
	}
	t.pendingMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioDeadline)
	defer cancel()
	for _, r := range group {
		if r == t.rank {
			continue
		}
		t.Send(ctx, r, transport.Envelope{Tag: transport.MsgVoteResult, ReqID: env.ReqID, Vote: and})
	}
}

func (t *Transport) handleVoteResult(env transport.Envelope) {
	t.pendingMu.Lock()
	ch, ok := t.pending[env.ReqID]
	if ok {
		delete(t.pending, env.ReqID)
	}
	t.pendingMu.Unlock()
	if ok {
		ch <- env.Vote
	}
}

func groupKeyOf(group []int) string {
	s := ""
	for _, r := range group {
		s += fmt.Sprintf("%d,", r)
	}
	return s
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for _, c := range t.conns {
			c.close()
		}
		t.mu.Unlock()
	})
	return nil
}

func writeEnvelope(w io.Writer, env transport.Envelope) error {
	var hdr [18]byte
	hdr[0] = byte(env.Tag)
	binary.BigEndian.PutUint64(hdr[1:9], env.ReqID)
	if env.Vote {
		hdr[9] = 1
	}
	binary.BigEndian.PutUint64(hdr[10:18], env.WildcardMask)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return wire.NewEncoder(w).Encode(env.Tuple)
}

func readEnvelope(r io.Reader) (transport.Envelope, error) {
	var hdr [18]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return transport.Envelope{}, err
	}
	env := transport.Envelope{
		Tag:          transport.MsgTag(hdr[0]),
		ReqID:        binary.BigEndian.Uint64(hdr[1:9]),
		Vote:         hdr[9] == 1,
		WildcardMask: binary.BigEndian.Uint64(hdr[10:18]),
	}
	tup, err := wire.NewDecoder(r).Decode()
	if err != nil {
		return transport.Envelope{}, err
	}
	env.Tuple = tup
	return env, nil
}
