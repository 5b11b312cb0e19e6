package sqldb

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts statements executed through a DB. Safe for concurrent use.
type Stats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	errors   atomic.Int64
	slow     atomic.Int64
	duration atomic.Int64 // nanoseconds
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Queries  int64
	Execs    int64
	Errors   int64
	Slow     int64
	Duration time.Duration
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:  s.queries.Load(),
		Execs:    s.execs.Load(),
		Errors:   s.errors.Load(),
		Slow:     s.slow.Load(),
		Duration: time.Duration(s.duration.Load()),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	s.errors.Store(0)
	s.slow.Store(0)
	s.duration.Store(0)
}

func (s *Stats) record(query bool, d time.Duration, err error, slow bool) {
	if query {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.duration.Add(int64(d))
	if err != nil {
		s.errors.Add(1)
	}
	if slow {
		s.slow.Add(1)
	}
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d errors=%d slow=%d duration=%s",
		s.Queries, s.Execs, s.Errors, s.Slow, s.Duration)
}
