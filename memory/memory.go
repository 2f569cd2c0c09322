package memory

import (
	"context"

	"github.com/shark8848/convmem-go-sdk/core"
)

// Store is the minimal retention backend: an append-only, size-bounded
// sequence of turns with strict FIFO eviction.
//
// Implementations: retention.Store (SDK-provided, in-memory slice).
type Store interface {
	// Append adds a turn, assigns its monotonic index, and returns it along
	// with the turn evicted to honor the retention bound, if any. Append
	// never fails for capacity; the oldest turn is evicted instead.
	Append(turn *core.Turn) (index int, evicted *core.Turn)

	// All returns the retained turns oldest-first. The returned slice is a
	// copy; the turns themselves are shared and must not be mutated.
	All() []*core.Turn

	// Len returns the number of retained turns.
	Len() int

	// Clear removes all retained turns without resetting index assignment.
	Clear()
}

// Index is the optional similarity backend wrapping the retention store with
// vector embeddings, enabling relevance-ranked retrieval instead of pure
// recency.
//
// Implementations: chromem.Index (embedded vector database).
type Index interface {
	// Index embeds and stores a turn for later similarity retrieval.
	Index(ctx context.Context, turn *core.Turn) error

	// IndexAll bulk-indexes turns, used when rebuilding after a Load.
	IndexAll(ctx context.Context, turns []*core.Turn) error

	// Delete removes the turn with the given index. The index mirrors the
	// retention store: a turn evicted there is deleted here too.
	Delete(ctx context.Context, index int) error

	// Query embeds the text and returns turns scoring at or above threshold,
	// sorted descending by score, truncated to topK. Equal scores prefer the
	// more recent turn.
	Query(ctx context.Context, text string, topK int, threshold float32) ([]core.RetrievalResult, error)

	// Clear drops the session's indexed turns.
	Clear(ctx context.Context) error
}

// Summarizer turns a single turn into a bounded-length text digest.
//
// Summarize never fails: the rule-based strategy is a pure function, and the
// model-assisted strategy falls back to the rule-based one internally when
// the generation capability errors. Memory is never silently empty.
type Summarizer interface {
	Summarize(ctx context.Context, turn *core.Turn) string

	// Name identifies the strategy for logging.
	Name() string
}
