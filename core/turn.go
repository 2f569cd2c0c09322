package core

import (
	"encoding/json"
	"time"
)

// ToolCall records one tool invocation made while producing a response.
// Input is kept as raw JSON so the memory layer never has to understand
// tool-specific schemas; Output is the observation text returned by the tool.
type ToolCall struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output string          `json:"output,omitempty"`
}

// Turn is one user-input/agent-response exchange, the atomic unit of memory.
//
// A Turn is immutable once recorded: the facade assigns Index and Summary at
// record time and hands out copies, never the retained instance. Embedding is
// populated only when a similarity backend is active and is never persisted
// in snapshots.
type Turn struct {
	Index         int        `json:"index"`
	Timestamp     time.Time  `json:"timestamp"`
	UserInput     string     `json:"user_input"`
	AgentResponse string     `json:"agent_response"`
	ToolCalls     []ToolCall `json:"tool_calls,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Embedding     []float32  `json:"-"`
}

// ToolNames returns the ordered tool names invoked during this turn.
func (t *Turn) ToolNames() []string {
	if len(t.ToolCalls) == 0 {
		return nil
	}
	names := make([]string, len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		names[i] = tc.Name
	}
	return names
}

// TextLen returns the combined length of the user input and agent response,
// used by threshold-based summarization triggers.
func (t *Turn) TextLen() int {
	return len(t.UserInput) + len(t.AgentResponse)
}

// Clone returns a deep copy of the turn. Read-only views hand out clones so
// callers cannot mutate retained history.
func (t *Turn) Clone() *Turn {
	cp := *t
	if t.ToolCalls != nil {
		cp.ToolCalls = make([]ToolCall, len(t.ToolCalls))
		copy(cp.ToolCalls, t.ToolCalls)
	}
	if t.Embedding != nil {
		cp.Embedding = make([]float32, len(t.Embedding))
		copy(cp.Embedding, t.Embedding)
	}
	return &cp
}

// RetrievalResult pairs a retrieved turn with its relevance. For similarity
// retrieval Score is the cosine similarity in [0,1]; for recency retrieval
// Score is zero and Rank carries the recency order (0 = most recent).
// Results are recomputed per query and never persisted.
type RetrievalResult struct {
	Turn  *Turn
	Score float32
	Rank  int
}
