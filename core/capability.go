package core

import "context"

// GenerateFunc is the externally supplied text-generation capability:
// prompt in, completion out, fallible. The memory subsystem never constructs
// a model client itself; callers adapt whatever provider they use
// (see llm/anthropic for a ready-made adapter).
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// EmbedFunc is the externally supplied embedding capability. A nil EmbedFunc
// means semantic retrieval is unavailable and the facade degrades to
// recency-based retrieval.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)
