package node

import (
	"sync/atomic"
	"time"
)

// op is a public operation of a node.
type op int

const (
	opGet op = iota
	opWrite
	opGetAll
	opEval
	opGroup
	opClear
	opCount
)

func (o op) String() string {
	switch o {
	case opGet:
		return "get"
	case opWrite:
		return "write"
	case opGetAll:
		return "get_all"
	case opEval:
		return "eval"
	case opGroup:
		return "group"
	case opClear:
		return "clear"
	case opCount:
	}

	return "unknown"
}

// latencyBuckets are the upper bounds of the histogram buckets, roughly exponential.
//
//nolint:gochecknoglobals,mnd
var latencyBuckets = [...]time.Duration{
	50 * time.Microsecond,
	100 * time.Microsecond,
	250 * time.Microsecond,
	500 * time.Microsecond,
	1 * time.Millisecond,
	2 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
}

// latencyCollector keeps one lock-free fixed-bucket histogram per operation.
type latencyCollector struct {
	// buckets[op][bucket]; the last bucket is +Inf
	buckets [opCount][len(latencyBuckets) + 1]atomic.Uint64
}

func newLatencyCollector() *latencyCollector { return &latencyCollector{} }

func (c *latencyCollector) observe(o op, d time.Duration) {
	for i, ub := range latencyBuckets {
		if d <= ub {
			c.buckets[o][i].Add(1)

			return
		}
	}

	c.buckets[o][len(latencyBuckets)].Add(1)
}

// since records the time elapsed from start; meant to be deferred.
func (c *latencyCollector) since(o op, start time.Time) { c.observe(o, time.Since(start)) }

func (c *latencyCollector) snapshot() map[string][]uint64 {
	out := make(map[string][]uint64, opCount)

	for o := range opCount {
		counts := make([]uint64, len(latencyBuckets)+1)
		for b := range counts {
			counts[b] = c.buckets[o][b].Load()
		}

		out[o.String()] = counts
	}

	return out
}
