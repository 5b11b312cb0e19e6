package testutil

import (
	"fmt"
	"sync"
)

// Sequence hands out deterministic handle ids for tests.
//
// Unlike the uuid ids of the sql backend, Sequence can be reset so the same
// test produces the same ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequence creates a sequence. The first id is prefix-1.
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "h"
	}
	return &Sequence{prefix: prefix}
}

// Next returns the next id.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", s.prefix, s.seq)
}

// Current returns the number of ids handed out.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence at 1.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
