// Package retention implements the minimal memory backend: an append-only,
// size-bounded sequence of turns with strict FIFO eviction.
package retention

import (
	"sync"

	"github.com/shark8848/convmem-go-sdk/core"
)

// Store keeps at most max turns, evicting the oldest first. Turn indices are
// assigned monotonically and keep increasing across evictions and Clear, so
// an index never refers to two different logical turns within a session.
type Store struct {
	mu    sync.Mutex
	max   int
	next  int
	turns []*core.Turn
}

// New creates a store retaining at most maxHistory turns.
func New(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Store{max: maxHistory}
}

// Append adds a turn, assigns its index, and returns it together with the
// evicted turn when the retention bound forced one out. Append never fails.
func (s *Store) Append(turn *core.Turn) (int, *core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn.Index = s.next
	s.next++

	s.turns = append(s.turns, turn)
	var evicted *core.Turn
	if len(s.turns) > s.max {
		evicted = s.turns[0]
		s.turns = s.turns[1:]
	}
	return turn.Index, evicted
}

// All returns the retained turns oldest-first.
func (s *Store) All() []*core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*core.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of retained turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Clear removes all retained turns. Index assignment is not reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Restore replaces the retained turns with a previously persisted history,
// trimming to the retention bound if needed. Index assignment resumes after
// the highest restored index.
func (s *Store) Restore(turns []*core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(turns) > s.max {
		turns = turns[len(turns)-s.max:]
	}
	s.turns = make([]*core.Turn, len(turns))
	copy(s.turns, turns)

	s.next = 0
	for _, t := range turns {
		if t.Index >= s.next {
			s.next = t.Index + 1
		}
	}
}
