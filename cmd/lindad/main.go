// Command lindad runs one peer of a linda tuple-space deployment: the
// coordinator at rank 0 owning the indexed store, every other rank
// forwarding operations to it and standing by to run eval dispatches.
//
// Uses go-flags for argument parsing, a GOMAXPROCS-from-Cores knob, and
// prints a final stats dump on exit: a long-running daemon that serves
// until signaled.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/bodand/lindadb/dispatch"
	"github.com/bodand/lindadb/linda"
	lindaruntime "github.com/bodand/lindadb/runtime"
	"github.com/bodand/lindadb/transport"
	"github.com/bodand/lindadb/transport/local"
	"github.com/bodand/lindadb/transport/tcp"
)

type optsStruct struct {
	Rank          int           `long:"rank" description:"This peer's rank in the deployment. 0 owns the tuple store." default:"0"`
	Peers         string        `long:"peers" description:"Comma-separated host:port list, one per rank, in rank order. Omit to run a single-process, single-rank deployment over an in-memory transport."`
	Cores         int           `long:"cores" description:"Worker pool size. Default: CPU core count."`
	QueueSize     int           `long:"queue-size" description:"Work pool queue depth." default:"256"`
	VoteAttempts  int           `long:"vote-attempts" description:"Two-phase remove poll attempts before failing closed." default:"3"`
	VoteInterval  time.Duration `long:"vote-interval" description:"Delay between two-phase remove poll attempts." default:"1ms"`
	VoteTimeout   time.Duration `long:"vote-timeout" description:"Per round-trip timeout for requests and votes." default:"50ms"`
	ExtendedStats bool          `long:"extended-stats" description:"Print extended stats on shutdown."`
	DialTimeout   time.Duration `long:"dial-timeout" description:"How long to wait for every peer to connect at startup." default:"10s"`
}

var opts optsStruct
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	if opts.Cores > 0 {
		runtime.GOMAXPROCS(opts.Cores)
	}
	opts.Cores = runtime.GOMAXPROCS(0)

	t, err := buildTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lindad: %v\n", err)
		os.Exit(1)
	}

	// NewOpts picks up LINDADB_BALANCER (and any other env override) as a
	// base; the explicit flags above take precedence over its env-derived
	// numeric defaults.
	ropts := lindaruntime.NewOpts("")
	ropts.Workers = opts.Cores
	ropts.QueueSize = opts.QueueSize
	ropts.VoteAttempts = opts.VoteAttempts
	ropts.VoteInterval = opts.VoteInterval
	ropts.VoteTimeout = opts.VoteTimeout
	ropts.VoteGroup = []int{0}

	reg := dispatch.NewRegistry()
	registerBuiltins(reg)
	space := linda.Open(t, nil, reg, ropts)

	fmt.Printf("lindad: rank %d of %d, %d workers\n", t.Rank(), t.WorldSize(), opts.Cores)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("lindad: shutting down")
	space.Close()
	stats := space.Stats()
	if rs, ok := stats.(*lindaruntime.Stats); ok {
		rs.Extended(opts.ExtendedStats)
	}
	fmt.Println(stats.String())
}

// buildTransport constructs an in-process transport when opts.Peers is
// empty (a single-rank deployment, useful for local development and the
// test-in-a-box case) or a real transport/tcp deployment otherwise.
func buildTransport() (transport.Transport, error) {
	if opts.Peers == "" {
		return local.NewNetwork(1)[0], nil
	}

	addrs := strings.Split(opts.Peers, ",")
	if opts.Rank < 0 || opts.Rank >= len(addrs) {
		return nil, fmt.Errorf("rank %d out of range for %d peers", opts.Rank, len(addrs))
	}

	listener, err := net.Listen("tcp", addrs[opts.Rank])
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addrs[opts.Rank], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	return tcp.Dial(ctx, opts.Rank, addrs, listener)
}
