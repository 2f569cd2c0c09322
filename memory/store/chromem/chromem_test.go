package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shark8848/convmem-go-sdk/core"
	"github.com/shark8848/convmem-go-sdk/memory/embedder/mock"
	"github.com/shark8848/convmem-go-sdk/memory/store/chromem"
)

func newIndex(t *testing.T) *chromem.Index {
	t.Helper()
	embedder := mock.New(64)
	ix, err := chromem.New(chromem.Config{
		SessionID: "test",
		Embed:     embedder.Embed,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestNew_RequiresEmbedCapability(t *testing.T) {
	_, err := chromem.New(chromem.Config{SessionID: "test"})
	if err == nil {
		t.Fatal("expected construction to fail closed without an embedding capability")
	}
}

func TestIndex_SelfSimilarityRanksFirst(t *testing.T) {
	ix := newIndex(t)
	ctx := context.Background()

	turns := []*core.Turn{
		{Index: 0, UserInput: "I need winter boots", Summary: "user: I need winter boots -> ok"},
		{Index: 1, UserInput: "recommend a laptop", Summary: "user: recommend a laptop -> ok"},
		{Index: 2, UserInput: "track my order", Summary: "user: track my order -> ok"},
	}
	for _, turn := range turns {
		if err := ix.Index(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	results, err := ix.Query(ctx, "recommend a laptop", 3, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected the identical turn to pass the threshold")
	}
	if results[0].Turn.Index != 1 {
		t.Errorf("top result index = %d, want 1", results[0].Turn.Index)
	}
	if results[0].Score < 0.99 {
		t.Errorf("self-similarity = %f, want >= 0.99", results[0].Score)
	}
}

func TestIndex_ThresholdFilters(t *testing.T) {
	ix := newIndex(t)
	ctx := context.Background()

	if err := ix.Index(ctx, &core.Turn{Index: 0, UserInput: "completely unrelated text"}); err != nil {
		t.Fatal(err)
	}

	// The mock embedder gives unrelated texts near-zero similarity, so a
	// high threshold must filter everything.
	results, err := ix.Query(ctx, "something else entirely", 5, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results above threshold, got %d", len(results))
	}
}

func TestIndex_EmptyCollection(t *testing.T) {
	ix := newIndex(t)
	results, err := ix.Query(context.Background(), "anything", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Errorf("expected nil results on empty collection, got %v", results)
	}
}

func TestIndex_TopKTruncation(t *testing.T) {
	ix := newIndex(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		turn := &core.Turn{Index: i, UserInput: "the same text every time"}
		if err := ix.Index(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	results, err := ix.Query(ctx, "the same text every time", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 3 {
		t.Errorf("topK not enforced: got %d results", len(results))
	}
	// All scores tie at self-similarity, so recency must break the tie.
	for i := 1; i < len(results); i++ {
		if results[i-1].Score == results[i].Score &&
			results[i-1].Turn.Index < results[i].Turn.Index {
			t.Errorf("tie not broken toward recent turns: %d before %d",
				results[i-1].Turn.Index, results[i].Turn.Index)
		}
	}
}

func TestIndex_QueryPropagatesEmbedFailure(t *testing.T) {
	calls := 0
	embed := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("embedding service down")
		}
		return mock.New(64).Embed(ctx, text)
	}
	ix, err := chromem.New(chromem.Config{SessionID: "test", Embed: embed})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := ix.Index(ctx, &core.Turn{Index: 0, UserInput: "hello"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Query(ctx, "hello", 1, 0); err == nil {
		t.Error("expected query to report the embed failure so the facade can degrade")
	}
}

func TestIndex_DeleteRemovesTurn(t *testing.T) {
	ix := newIndex(t)
	ctx := context.Background()

	turns := []*core.Turn{
		{Index: 0, UserInput: "tell me about zebras"},
		{Index: 1, UserInput: "tell me about lions"},
	}
	for _, turn := range turns {
		if err := ix.Index(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	if err := ix.Delete(ctx, 0); err != nil {
		t.Fatal(err)
	}

	results, err := ix.Query(ctx, "tell me about zebras", 2, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted turn still retrievable: %+v", results[0].Turn)
	}

	results, err = ix.Query(ctx, "tell me about lions", 2, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Turn.Index != 1 {
		t.Errorf("remaining turn not retrievable after delete: %v", results)
	}
}

func TestIndex_ClearEmptiesCollection(t *testing.T) {
	ix := newIndex(t)
	ctx := context.Background()

	if err := ix.Index(ctx, &core.Turn{Index: 0, UserInput: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := ix.Query(ctx, "hello", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty index after clear, got %d results", len(results))
	}
}

func TestIndex_PersistentStore(t *testing.T) {
	dir := t.TempDir()
	embedder := mock.New(64)
	ctx := context.Background()

	ix, err := chromem.New(chromem.Config{
		PersistDir: dir,
		SessionID:  "persist",
		Embed:      embedder.Embed,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Index(ctx, &core.Turn{Index: 0, UserInput: "durable memory"}); err != nil {
		t.Fatal(err)
	}

	// Reopen against the same directory: the collection must survive.
	ix2, err := chromem.New(chromem.Config{
		PersistDir: dir,
		SessionID:  "persist",
		Embed:      embedder.Embed,
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := ix2.Query(ctx, "durable memory", 1, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the persisted turn, got %d results", len(results))
	}
}
