package runtime

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/bodand/lindadb/balancer"
)

// Opts configures a Runtime. The zero Opts is not meaningful; build one
// with NewOpts, which applies environment overrides and then fills in
// defaults for anything left unset.
type Opts struct {
	// Workers is the work pool's worker goroutine count. <= 0 defaults to
	// runtime.GOMAXPROCS(0).
	Workers int
	// QueueSize bounds the work pool's job queue.
	QueueSize int
	// VoteAttempts is how many times the two-phase remove protocol polls
	// for AllReduceAND consensus before failing closed.
	VoteAttempts int
	// VoteInterval is the delay between poll attempts.
	VoteInterval time.Duration
	// VoteTimeout bounds a single AllReduceAND round-trip.
	VoteTimeout time.Duration
	// VoteGroup is the set of ranks whose AllReduceAND vote decides
	// whether a tentative remove commits. Defaults to {0} (the
	// coordinator alone), which makes the two-phase protocol degenerate
	// to a trivial single-voter consensus in the default single-shard
	// deployment; a future multi-shard deployment would set this to every
	// shard-owning rank.
	VoteGroup []int
	// Balancer picks which worker rank executes the next eval dispatch.
	// Selected by NewOpts from envPrefix+"BALANCER"; New uses this when
	// its own bal argument is nil.
	Balancer balancer.Balancer
}

// NewOpts builds Opts from envPrefix+"WORKERS", envPrefix+"QUEUE_SIZE",
// envPrefix+"VOTE_ATTEMPTS", envPrefix+"VOTE_INTERVAL_MS" and
// envPrefix+"BALANCER" ("round-robin"|"uniform-random"), falling back
// to "LINDADB_" when envPrefix is empty.
func NewOpts(envPrefix string) *Opts {
	if envPrefix == "" {
		envPrefix = "LINDADB_"
	}
	o := &Opts{}
	if v := os.Getenv(envPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.Workers = n
		}
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if v := os.Getenv(envPrefix + "QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.QueueSize = n
		}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if v := os.Getenv(envPrefix + "VOTE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.VoteAttempts = n
		}
	}
	if o.VoteAttempts <= 0 {
		o.VoteAttempts = 3
	}
	if v := os.Getenv(envPrefix + "VOTE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.VoteInterval = time.Duration(n) * time.Millisecond
		}
	}
	if o.VoteInterval <= 0 {
		o.VoteInterval = time.Millisecond
	}
	if v := os.Getenv(envPrefix + "VOTE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.VoteTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if o.VoteTimeout <= 0 {
		o.VoteTimeout = 50 * time.Millisecond
	}
	if len(o.VoteGroup) == 0 {
		o.VoteGroup = []int{0}
	}
	// UniformRandom is seeded from the wall clock here, not shared across
	// peers -- each peer's placement stream is independent, which is all
	// the balancer contract requires.
	switch os.Getenv(envPrefix + "BALANCER") {
	case "uniform-random":
		o.Balancer = balancer.NewUniformRandom(time.Now().UnixNano())
	case "round-robin", "":
		o.Balancer = balancer.NewRoundRobin()
	default:
		o.Balancer = balancer.NewRoundRobin()
	}
	return o
}
