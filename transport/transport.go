// Package transport defines the peer-to-peer collaborator a coordination
// runtime needs but doesn't own: the channel that carries tuple
// placements, blocking/non-blocking queries, eval dispatch and the
// two-phase remove protocol's votes between ranks.
//
// It is a concrete, swappable component: transport/local backs tests and
// single-process deployments with in-memory channels, transport/tcp backs
// a real multi-process deployment over framed net.Conn messages.
package transport

import (
	"context"
	"errors"

	"github.com/bodand/lindadb/value"
)

// MsgTag identifies the kind of operation an Envelope carries.
type MsgTag uint8

const (
	MsgInsert MsgTag = iota
	MsgDelete
	MsgTryDelete
	MsgSearch
	MsgTrySearch
	MsgEval
	MsgTerminate
	// MsgVote and MsgVoteResult are the two-phase remove protocol's own
	// auxiliary messages; they are still MsgTag values so they share
	// Envelope's framing.
	MsgVote
	MsgVoteResult
)

func (t MsgTag) String() string {
	switch t {
	case MsgInsert:
		return "insert"
	case MsgDelete:
		return "delete"
	case MsgTryDelete:
		return "try_delete"
	case MsgSearch:
		return "search"
	case MsgTrySearch:
		return "try_search"
	case MsgEval:
		return "eval"
	case MsgTerminate:
		return "terminate"
	case MsgVote:
		return "vote"
	case MsgVoteResult:
		return "vote_result"
	default:
		return "unknown"
	}
}

// Envelope is one message exchanged between peers.
type Envelope struct {
	Tag   MsgTag
	From  int
	ReqID uint64
	Tuple value.Tuple
	// Vote carries MsgVote/MsgVoteResult's boolean payload; also doubles
	// as the found/not-found result flag on MsgSearch/MsgDelete/etc.
	// responses.
	Vote bool
	// WildcardMask marks which positions of Tuple are a query's wildcards
	// rather than concrete values: bit i set means position i travels as
	// a Kind-only placeholder (Tuple.At(i) still carries that Kind via
	// its zero value) rather than a value to match exactly. Unused for
	// concrete tuples (out's payload, eval's payload, responses).
	WildcardMask uint64
}

// ErrClosed is returned by Send/Recv once the transport has been Close()d;
// AllReduceAND reports the same condition as ok=false.
var ErrClosed = errors.New("transport: closed")

// Transport is the peer-to-peer collaborator the coordination runtime is
// built on: point-to-point messaging plus a logical-AND all-reduce used by
// the two-phase remove protocol to agree on whether a tentative removal
// commits.
type Transport interface {
	// Rank is this peer's position in [0, WorldSize()).
	Rank() int
	// WorldSize is the fixed number of peers in the deployment.
	WorldSize() int
	// Send delivers env to peer `to`. It does not wait for the peer to
	// process it.
	Send(ctx context.Context, to int, env Envelope) error
	// Recv blocks until a message addressed to this peer arrives.
	Recv(ctx context.Context) (Envelope, error)
	// AllReduceAND computes the logical AND of vote across every rank in
	// group and returns it to every participant. ok is false if ctx
	// expired or the transport closed before consensus was reached.
	AllReduceAND(ctx context.Context, group []int, vote bool) (consensus bool, ok bool)
	// Close releases the transport's resources. Blocked Recv calls unblock
	// and return ErrClosed; blocked AllReduceAND calls return ok=false.
	Close() error
}
