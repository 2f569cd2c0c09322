// Package memory is the conversation memory engine: it retains prior turns,
// decides which of them are relevant to the current turn, compresses long
// histories into bounded digests, and hands the result back for prompt
// injection without unbounded cost growth.
//
// Architecture:
//   - Store: append-only, size-bounded turn retention (store/retention)
//   - Index: optional similarity retrieval over embeddings (store/chromem)
//   - Summarizer: per-turn digest generation (rule-based or model-assisted)
//   - Facade: unifies store and index behind configuration-selected retrieval,
//     owns persistence and degrade logic
//
// External capabilities (text generation, embedding) are injected as plain
// functions (core.GenerateFunc, core.EmbedFunc). Their failure degrades
// memory quality but never surfaces to the conversational caller: a failed
// model-assisted summary falls back to the rule-based digest, and a failed
// embedding capability demotes similarity retrieval to recency retrieval.
//
// A Facade is scoped to one session and assumes at most one in-flight
// RecordTurn at a time; RecordTurn, retrieval, and Save/Load are serialized
// behind a single mutex. Distinct sessions are fully independent.
package memory
