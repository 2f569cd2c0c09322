package retention_test

import (
	"fmt"
	"testing"

	"github.com/shark8848/convmem-go-sdk/core"
	"github.com/shark8848/convmem-go-sdk/memory/store/retention"
)

func makeTurn(input string) *core.Turn {
	return &core.Turn{UserInput: input, AgentResponse: "ok"}
}

func TestStore_AppendAssignsIncreasingIndices(t *testing.T) {
	s := retention.New(10)

	for i := 0; i < 5; i++ {
		idx, _ := s.Append(makeTurn(fmt.Sprintf("turn %d", i)))
		if idx != i {
			t.Errorf("append %d: got index %d", i, idx)
		}
	}

	turns := s.All()
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].Index <= turns[i-1].Index {
			t.Errorf("indices not strictly increasing: %d then %d", turns[i-1].Index, turns[i].Index)
		}
	}
}

func TestStore_FIFOEviction(t *testing.T) {
	s := retention.New(3)

	for i := 1; i <= 4; i++ {
		s.Append(makeTurn(fmt.Sprintf("turn %d", i)))
	}

	turns := s.All()
	if len(turns) != 3 {
		t.Fatalf("retention bound exceeded: %d turns", len(turns))
	}
	want := []string{"turn 2", "turn 3", "turn 4"}
	for i, w := range want {
		if turns[i].UserInput != w {
			t.Errorf("turns[%d] = %q, want %q", i, turns[i].UserInput, w)
		}
	}
}

func TestStore_BoundNeverExceeded(t *testing.T) {
	const k = 5
	s := retention.New(k)

	for i := 0; i < 20; i++ {
		s.Append(makeTurn(fmt.Sprintf("turn %d", i)))
		if s.Len() > k {
			t.Fatalf("after %d appends store holds %d > %d turns", i+1, s.Len(), k)
		}
	}

	// Last k turns, oldest first.
	turns := s.All()
	for i, turn := range turns {
		want := fmt.Sprintf("turn %d", 15+i)
		if turn.UserInput != want {
			t.Errorf("turns[%d] = %q, want %q", i, turn.UserInput, want)
		}
	}
}

func TestStore_AppendReportsEvictedTurn(t *testing.T) {
	s := retention.New(2)

	if _, evicted := s.Append(makeTurn("a")); evicted != nil {
		t.Errorf("append within bound reported eviction of %q", evicted.UserInput)
	}
	s.Append(makeTurn("b"))

	_, evicted := s.Append(makeTurn("c"))
	if evicted == nil {
		t.Fatal("append beyond bound reported no eviction")
	}
	if evicted.UserInput != "a" || evicted.Index != 0 {
		t.Errorf("evicted turn = %q (#%d), want \"a\" (#0)", evicted.UserInput, evicted.Index)
	}
}

func TestStore_ClearKeepsIndexAssignment(t *testing.T) {
	s := retention.New(10)
	s.Append(makeTurn("a"))
	s.Append(makeTurn("b"))
	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("expected empty store after clear")
	}
	if idx, _ := s.Append(makeTurn("c")); idx != 2 {
		t.Errorf("index restarted after clear: got %d, want 2", idx)
	}
}

func TestStore_RestoreResumesIndices(t *testing.T) {
	s := retention.New(10)
	s.Restore([]*core.Turn{
		{Index: 7, UserInput: "x"},
		{Index: 8, UserInput: "y"},
	})

	if s.Len() != 2 {
		t.Fatalf("expected 2 restored turns, got %d", s.Len())
	}
	if idx, _ := s.Append(makeTurn("z")); idx != 9 {
		t.Errorf("append after restore: got index %d, want 9", idx)
	}
}

func TestStore_RestoreTrimsToBound(t *testing.T) {
	s := retention.New(2)
	s.Restore([]*core.Turn{
		{Index: 0, UserInput: "a"},
		{Index: 1, UserInput: "b"},
		{Index: 2, UserInput: "c"},
	})

	turns := s.All()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after trimmed restore, got %d", len(turns))
	}
	if turns[0].UserInput != "b" || turns[1].UserInput != "c" {
		t.Errorf("restore kept wrong turns: %q, %q", turns[0].UserInput, turns[1].UserInput)
	}
}
