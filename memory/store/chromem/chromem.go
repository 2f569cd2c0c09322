// Package chromem implements the similarity index on chromem-go, an
// embedded, pure Go vector database. Each session gets its own collection;
// with a persist directory configured the collection store is durable across
// restarts.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/shark8848/convmem-go-sdk/core"
)

// Config configures the index.
type Config struct {
	// PersistDir is the directory for the durable collection store.
	// Empty keeps everything in memory.
	PersistDir string

	// Collection is the collection name prefix; the session ID is appended.
	Collection string

	// SessionID namespaces this index's collection.
	SessionID string

	// Embed is the embedding capability. Required; the index fails closed
	// at construction without it so the facade can degrade to recency
	// retrieval.
	Embed core.EmbedFunc

	// Concurrency bounds parallel embedding during bulk indexing.
	Concurrency int
}

// Index stores turn embeddings in a chromem-go collection and answers
// relevance-ranked queries.
type Index struct {
	db      *chromem.DB
	col     *chromem.Collection
	colName string
	embed   core.EmbedFunc
	conc    int
}

// New creates the index. It returns an error when the embedding capability
// is missing or the collection store cannot be opened; callers treat that as
// a backend-unavailable condition, not a fatal one.
func New(cfg Config) (*Index, error) {
	if cfg.Embed == nil {
		return nil, fmt.Errorf("chromem: embedding capability is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "conversation_memory"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	var db *chromem.DB
	var err error
	if cfg.PersistDir != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistDir, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: open persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if cfg.SessionID != "" {
		name = fmt.Sprintf("%s_%s", cfg.Collection, cfg.SessionID)
	}

	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}

	log.Printf("[CHROMEM] collection %s ready (persist=%v)", name, cfg.PersistDir != "")
	return &Index{
		db:      db,
		col:     col,
		colName: name,
		embed:   cfg.Embed,
		conc:    cfg.Concurrency,
	}, nil
}

// Index embeds and stores one turn.
func (x *Index) Index(ctx context.Context, turn *core.Turn) error {
	doc, err := x.toDocument(ctx, turn)
	if err != nil {
		return err
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document: %w", err)
	}
	return nil
}

// IndexAll bulk-indexes turns, embedding up to the configured concurrency in
// flight. Used when rebuilding the index after loading a snapshot.
func (x *Index) IndexAll(ctx context.Context, turns []*core.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(turns))
	for _, t := range turns {
		doc, err := x.toDocument(ctx, t)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if err := x.col.AddDocuments(ctx, docs, x.conc); err != nil {
		return fmt.Errorf("chromem: add documents: %w", err)
	}
	return nil
}

// Query returns turns scoring at or above threshold for the text, sorted
// descending by similarity, truncated to topK. Ties prefer the more recent
// turn (higher index).
func (x *Index) Query(ctx context.Context, text string, topK int, threshold float32) ([]core.RetrievalResult, error) {
	count := x.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	embedding, err := x.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("chromem: embed query: %w", err)
	}

	raw, err := x.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	var results []core.RetrievalResult
	for _, r := range raw {
		if r.Similarity < threshold {
			continue
		}
		turn, err := fromResult(r)
		if err != nil {
			log.Printf("[CHROMEM] skipping result %s: %v", r.ID, err)
			continue
		}
		results = append(results, core.RetrievalResult{Turn: turn, Score: r.Similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Turn.Index > results[j].Turn.Index
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

// Delete removes one turn's document. The index mirrors the retention
// store, so a turn evicted there is deleted here and can no longer surface
// through similarity queries.
func (x *Index) Delete(ctx context.Context, index int) error {
	if err := x.col.Delete(ctx, nil, nil, strconv.Itoa(index)); err != nil {
		return fmt.Errorf("chromem: delete document %d: %w", index, err)
	}
	return nil
}

// Clear drops the session's collection and recreates it empty.
func (x *Index) Clear(ctx context.Context) error {
	if err := x.db.DeleteCollection(x.colName); err != nil {
		return fmt.Errorf("chromem: delete collection: %w", err)
	}
	col, err := x.db.GetOrCreateCollection(x.colName, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: recreate collection: %w", err)
	}
	x.col = col
	return nil
}

func (x *Index) toDocument(ctx context.Context, turn *core.Turn) (chromem.Document, error) {
	embedding := turn.Embedding
	if embedding == nil {
		var err error
		embedding, err = x.embed(ctx, embeddingText(turn))
		if err != nil {
			return chromem.Document{}, fmt.Errorf("chromem: embed turn #%d: %w", turn.Index, err)
		}
	}

	content, err := json.Marshal(turn)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("chromem: marshal turn #%d: %w", turn.Index, err)
	}

	return chromem.Document{
		ID:        strconv.Itoa(turn.Index),
		Content:   string(content),
		Embedding: embedding,
		Metadata: map[string]string{
			"turn_index": strconv.Itoa(turn.Index),
			"timestamp":  turn.Timestamp.Format(time.RFC3339),
		},
	}, nil
}

// embeddingText is the text a turn is embedded under. Queries are user
// inputs, so turns embed under their user input to share one embedding
// space; an identical query then scores self-similarity against its turn.
func embeddingText(turn *core.Turn) string {
	if turn.UserInput != "" {
		return turn.UserInput
	}
	return turn.Summary
}

func fromResult(r chromem.Result) (*core.Turn, error) {
	var turn core.Turn
	if err := json.Unmarshal([]byte(r.Content), &turn); err != nil {
		return nil, fmt.Errorf("unmarshal turn: %w", err)
	}
	turn.Embedding = r.Embedding
	return &turn, nil
}
