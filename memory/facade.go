package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/shark8848/convmem-go-sdk/config"
	"github.com/shark8848/convmem-go-sdk/core"
	chromemstore "github.com/shark8848/convmem-go-sdk/memory/store/chromem"
	"github.com/shark8848/convmem-go-sdk/memory/store/retention"
	"github.com/shark8848/convmem-go-sdk/stage"
)

// Facade unifies the retention store and the optional similarity index
// behind one configuration-selected interface. It owns persistence and
// degrade logic: when the similarity backend is unavailable, retrieval
// silently behaves as recency retrieval.
//
// One Facade is scoped to one session. Its methods are serialized behind a
// single mutex, but the design still assumes at most one in-flight
// RecordTurn per session (request-response cadence). Callers must not record
// the same logical turn twice; duplicate detection is out of scope.
type Facade struct {
	mu  sync.Mutex
	cfg *config.Config

	store *retention.Store
	index Index

	rule Summarizer
	llm  Summarizer

	generate core.GenerateFunc
	embed    core.EmbedFunc

	tracker *stage.Tracker
	cache   *ristretto.Cache

	sessionID    string
	createdAt    time.Time
	lastActiveAt time.Time

	// summary trigger accounting
	turnsSinceSummary int
	bytesSinceSummary int

	degraded bool
}

// Option configures the facade.
type Option func(*Facade)

// WithGenerate supplies the text-generation capability used by
// model-assisted summarization.
func WithGenerate(g core.GenerateFunc) Option {
	return func(f *Facade) { f.generate = g }
}

// WithEmbed supplies the embedding capability used by the similarity index.
func WithEmbed(e core.EmbedFunc) Option {
	return func(f *Facade) { f.embed = e }
}

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(f *Facade) { f.sessionID = id }
}

// WithStageTracker attaches a stage tracker whose state is persisted and
// restored together with the session turns.
func WithStageTracker(t *stage.Tracker) Option {
	return func(f *Facade) { f.tracker = t }
}

// WithIndex substitutes the similarity index, replacing the chromem-go one
// the facade would otherwise construct. Intended for tests.
func WithIndex(ix Index) Option {
	return func(f *Facade) { f.index = ix }
}

// New constructs a facade for one session. Backend selection happens here,
// once: the vector backend requires the embedding capability, and when it is
// missing or fails to initialize the facade degrades to the retention store
// alone. The selected mode is fixed for the facade's lifetime.
func New(cfg *config.Config, opts ...Option) (*Facade, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	f := &Facade{
		cfg:          cfg,
		store:        retention.New(cfg.Strategy.MaxHistory),
		rule:         NewRuleSummarizer(),
		createdAt:    now,
		lastActiveAt: now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.sessionID == "" {
		f.sessionID = fmt.Sprintf("%s-%s", cfg.Session.DefaultSessionPrefix, uuid.New().String())
	}

	if cfg.Strategy.EnableLLMSummary {
		f.llm = NewLLMSummarizer(f.generate, cfg.Summary.MaxSummaryLength, 10*time.Second)
		if f.generate == nil {
			log.Printf("[MEMORY] enable_llm_summary set but no generation capability supplied, digests stay rule-based")
		}
	}

	if cfg.Backend == config.BackendVector && f.index == nil {
		f.initIndex()
	}

	if cfg.Performance.EnableCache {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(cfg.Performance.CacheSize) * 10,
			MaxCost:     int64(cfg.Performance.CacheSize),
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("memory: create cache: %w", err)
		}
		f.cache = cache
	}

	log.Printf("[MEMORY] facade ready: session=%s, backend=%s, mode=%s, max_history=%d",
		f.sessionID, cfg.Backend, f.effectiveMode(), cfg.Strategy.MaxHistory)
	return f, nil
}

// initIndex builds the chromem index, degrading to retention-only on any
// failure. Degradation is recorded once and not retried per query.
func (f *Facade) initIndex() {
	if f.embed == nil {
		f.degrade("embedding capability unavailable")
		return
	}
	ix, err := chromemstore.New(chromemstore.Config{
		PersistDir:  f.cfg.Store.PersistDir,
		Collection:  f.cfg.Store.Collection,
		SessionID:   f.sessionID,
		Embed:       f.embed,
		Concurrency: f.cfg.Performance.BatchSize,
	})
	if err != nil {
		f.degrade(fmt.Sprintf("similarity index init failed: %v", err))
		return
	}
	f.index = ix
}

func (f *Facade) degrade(reason string) {
	if !f.degraded {
		log.Printf("[MEMORY] degrading to recency retrieval: %s (session=%s)", reason, f.sessionID)
	}
	f.degraded = true
	f.index = nil
}

// effectiveMode is the retrieval mode actually in use after degradation.
func (f *Facade) effectiveMode() string {
	if f.cfg.Strategy.RetrievalMode == config.RetrieveSimilarity && f.index != nil {
		return config.RetrieveSimilarity
	}
	return config.RetrieveRecent
}

// SessionID returns the session identifier this facade owns.
func (f *Facade) SessionID() string {
	return f.sessionID
}

// RecordTurn stores a completed turn. It always succeeds from the caller's
// perspective: summarization falls back to the rule-based strategy and
// indexing failures degrade retrieval rather than propagate. The recorded
// turn (with its assigned index and digest) is returned, or nil when the
// subsystem is disabled.
func (f *Facade) RecordTurn(ctx context.Context, userInput, agentResponse string, toolCalls []core.ToolCall) *core.Turn {
	if !f.cfg.Enabled {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	turn := &core.Turn{
		Timestamp:     time.Now(),
		UserInput:     userInput,
		AgentResponse: agentResponse,
		ToolCalls:     toolCalls,
	}
	// Append first so the turn carries its index during summarization.
	index, evicted := f.store.Append(turn)
	turn.Summary = f.summarize(ctx, turn)
	f.lastActiveAt = time.Now()

	// The similarity index mirrors the retention store: an eviction there
	// removes the turn here too, so retrieval never resurrects it.
	if f.index != nil && evicted != nil {
		if err := f.index.Delete(ctx, evicted.Index); err != nil {
			f.degrade(fmt.Sprintf("delete evicted turn #%d failed: %v", evicted.Index, err))
		}
	}
	if f.index != nil {
		if err := f.index.Index(ctx, turn); err != nil {
			f.degrade(fmt.Sprintf("index turn #%d failed: %v", index, err))
		}
	}

	log.Printf("[MEMORY] recorded turn #%d: input=%d bytes, response=%d bytes, tools=%d (session=%s)",
		index, len(userInput), len(agentResponse), len(toolCalls), f.sessionID)
	return turn.Clone()
}

// summarize picks the digest strategy for a turn under the trigger policy.
// The rule-based digest is always available; the model-assisted strategy is
// applied only when enabled and triggered, and falls back internally.
func (f *Facade) summarize(ctx context.Context, turn *core.Turn) string {
	f.turnsSinceSummary++
	f.bytesSinceSummary += turn.TextLen()

	if f.llm == nil || f.generate == nil {
		return f.rule.Summarize(ctx, turn)
	}

	triggered := false
	switch f.cfg.Summary.Trigger {
	case config.TriggerAlways:
		triggered = true
	case config.TriggerThreshold:
		triggered = f.turnsSinceSummary > f.cfg.Summary.TurnsThreshold ||
			f.bytesSinceSummary > f.cfg.Summary.TextLengthThreshold
	case config.TriggerManual:
		// only via Summarize()
	}

	if !triggered {
		return f.rule.Summarize(ctx, turn)
	}

	f.turnsSinceSummary = 0
	f.bytesSinceSummary = 0
	return f.llm.Summarize(ctx, turn)
}

// Summarize recomputes digests for all retained turns with the model-assisted
// strategy. This is the caller-invoked path of the "manual" trigger policy;
// it is a no-op when model-assisted summarization is not configured.
func (f *Facade) Summarize(ctx context.Context) {
	if !f.cfg.Enabled || f.llm == nil || f.generate == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	turns := f.store.All()
	for _, turn := range turns {
		turn.Summary = f.llm.Summarize(ctx, turn)
	}
	f.turnsSinceSummary = 0
	f.bytesSinceSummary = 0
	if f.cache != nil {
		f.cache.Clear()
	}
	log.Printf("[MEMORY] resummarized %d turns (session=%s)", len(turns), f.sessionID)
}

// ContextForPrompt returns the formatted memory digest to inject into the
// next prompt, or "" when there is no history. query is the current user
// input; in similarity mode it drives relevance ranking, in recency mode it
// is ignored. The just-recorded turn is part of the result only for turns
// already completed, never for an in-flight one: retrieval happens before
// the turn is recorded.
func (f *Facade) ContextForPrompt(ctx context.Context, query string) string {
	if !f.cfg.Enabled {
		return ""
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.store.Len()
	if count == 0 {
		return ""
	}

	cacheKey := fmt.Sprintf("%s|%d|%s", f.sessionID, count, query)
	if f.cache != nil {
		if v, ok := f.cache.Get(cacheKey); ok {
			return v.(string)
		}
	}

	block := f.buildContext(ctx, query)

	if f.cache != nil {
		f.cache.Set(cacheKey, block, 1)
	}
	return block
}

func (f *Facade) buildContext(ctx context.Context, query string) string {
	if f.effectiveMode() == config.RetrieveSimilarity && query != "" {
		results, err := f.index.Query(ctx, query,
			f.cfg.Strategy.MaxSimilarityResults,
			float32(f.cfg.Strategy.SimilarityThreshold))
		if err != nil {
			f.degrade(fmt.Sprintf("similarity query failed: %v", err))
		} else {
			digests := make([]string, 0, len(results))
			for _, r := range results {
				digests = append(digests, r.Turn.Summary)
			}
			return FormatDigest(digests, f.cfg.Strategy.MaxSimilarityResults)
		}
	}

	turns := f.store.All()
	digests := make([]string, 0, len(turns))
	for _, t := range turns {
		digests = append(digests, t.Summary)
	}
	return FormatDigest(digests, f.cfg.Strategy.MaxRecentTurns)
}

// Retrieve returns the raw retrieval results for a query: relevance-ranked
// in similarity mode, recency-ranked otherwise. Results are recomputed per
// call and never persisted.
func (f *Facade) Retrieve(ctx context.Context, query string) []core.RetrievalResult {
	if !f.cfg.Enabled {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.effectiveMode() == config.RetrieveSimilarity && query != "" {
		results, err := f.index.Query(ctx, query,
			f.cfg.Strategy.MaxSimilarityResults,
			float32(f.cfg.Strategy.SimilarityThreshold))
		if err == nil {
			return results
		}
		f.degrade(fmt.Sprintf("similarity query failed: %v", err))
	}

	turns := f.store.All()
	limit := f.cfg.Strategy.MaxRecentTurns
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	results := make([]core.RetrievalResult, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		results = append(results, core.RetrievalResult{
			Turn: turns[i].Clone(),
			Rank: len(turns) - 1 - i,
		})
	}
	return results
}

// FullHistory returns a read-only view (deep copies) of the retained turns,
// oldest-first.
func (f *Facade) FullHistory() []*core.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()

	turns := f.store.All()
	out := make([]*core.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// Clear removes all retained and indexed turns for the session.
func (f *Facade) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.store.Len()
	f.store.Clear()
	if f.index != nil {
		if err := f.index.Clear(context.Background()); err != nil {
			log.Printf("[MEMORY] clearing similarity index failed: %v", err)
		}
	}
	if f.cache != nil {
		f.cache.Clear()
	}
	f.turnsSinceSummary = 0
	f.bytesSinceSummary = 0
	log.Printf("[MEMORY] cleared %d turns (session=%s)", count, f.sessionID)
}
