package dataplane

// TraceFunc receives the diagnostic trace emitted when the permissive
// policy matches a registered port.
type TraceFunc func(port uint16, pid uint32)

// Engine classifies one packet per call. It holds no per-packet state;
// the only shared state is the redirect table (read-only here) and the
// per-worker counter shards, so concurrent Classify calls on distinct
// shards never contend.
type Engine struct {
	table  *Table
	stats  *Stats
	policy Policy
	trace  TraceFunc
}

// NewEngine creates a classification engine. trace may be nil.
func NewEngine(table *Table, stats *Stats, policy Policy, trace TraceFunc) *Engine {
	return &Engine{table: table, stats: stats, policy: policy, trace: trace}
}

// Policy returns the engine's miss policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Classify runs the full pipeline for one received frame on the given
// worker shard and returns the verdict. Every failure folds into a
// terminal verdict: an unparseable packet passes, a table miss passes
// or drops depending on policy, and nothing is retried or surfaced as
// an error. The non-match path performs no allocation and no blocking
// call.
func (e *Engine) Classify(shard int, pkt []byte) Verdict {
	e.stats.Inc(shard, CtrPacketsTotal)

	port := DestPort(pkt)
	if port == 0 {
		// Not IPv4 TCP/UDP, or a header fell outside the frame.
		e.stats.Inc(shard, CtrPacketsPassed)
		return VerdictPass
	}

	val, ok := e.table.Lookup(port)
	if !ok {
		if e.policy == PolicyStrict {
			e.stats.Inc(shard, CtrPacketsDropped)
			return VerdictDrop
		}
		e.stats.Inc(shard, CtrPacketsPassed)
		return VerdictPass
	}

	e.stats.Inc(shard, CtrPacketsMatched)

	// A match never drops: the packet is still forwarded through the
	// normal stack where the handler is already listening. Direct
	// socket redirection is a deferred capability.
	if e.policy == PolicyPermissive && e.trace != nil {
		e.trace(port, val.PID)
	}
	return VerdictPass
}
