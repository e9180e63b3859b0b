package dataplane

import "sync/atomic"

// shard holds one worker's private counter block. The padding fills the
// struct out to a cache line so adjacent shards never share one.
type shard struct {
	ctrs [CtrMax]atomic.Uint64
	_    [32]byte
}

// Stats holds the four classification counters, sharded per worker.
// Each worker increments only its own shard, so the write path carries
// no cross-core synchronization; aggregation happens only when a
// reader samples the counters.
type Stats struct {
	shards []shard
}

// NewStats creates counters with one shard per worker.
func NewStats(shards int) *Stats {
	if shards < 1 {
		shards = 1
	}
	return &Stats{shards: make([]shard, shards)}
}

// Inc increments one counter on the given worker's shard. The add is
// an uncontended atomic so the read side can merge without tearing.
func (s *Stats) Inc(shard, ctr int) {
	s.shards[shard].ctrs[ctr].Add(1)
}

// Shards returns the number of shards.
func (s *Stats) Shards() int {
	return len(s.shards)
}

// Shard returns one shard's counters.
func (s *Stats) Shard(i int) Counters {
	sh := &s.shards[i]
	return Counters{
		Total:   sh.ctrs[CtrPacketsTotal].Load(),
		Matched: sh.ctrs[CtrPacketsMatched].Load(),
		Passed:  sh.ctrs[CtrPacketsPassed].Load(),
		Dropped: sh.ctrs[CtrPacketsDropped].Load(),
	}
}

// Totals sums every shard. This is the external-reader operation; the
// engine itself never aggregates.
func (s *Stats) Totals() Counters {
	var out Counters
	for i := range s.shards {
		sh := &s.shards[i]
		out.Total += sh.ctrs[CtrPacketsTotal].Load()
		out.Matched += sh.ctrs[CtrPacketsMatched].Load()
		out.Passed += sh.ctrs[CtrPacketsPassed].Load()
		out.Dropped += sh.ctrs[CtrPacketsDropped].Load()
	}
	return out
}

// Reset zeroes all counters. The engine never resets its own counters;
// this serves the operator's clear command only.
func (s *Stats) Reset() {
	for i := range s.shards {
		for c := 0; c < CtrMax; c++ {
			s.shards[i].ctrs[c].Store(0)
		}
	}
}
