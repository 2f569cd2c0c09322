// Package assembler is the external-facing entry point of the memory engine.
// It pairs a memory facade with a stage tracker for one session: before each
// reasoning step it hands back the conversation stage and the memory digest
// for prompt construction, and after the step it records the completed turn
// and advances the stage machine.
package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shark8848/convmem-go-sdk/config"
	"github.com/shark8848/convmem-go-sdk/core"
	"github.com/shark8848/convmem-go-sdk/memory"
	"github.com/shark8848/convmem-go-sdk/stage"
)

// TurnContext is what the caller injects into the next prompt.
type TurnContext struct {
	// Stage is the current conversation stage, used to select prompt
	// variants. Always defined.
	Stage stage.Stage

	// Memory is the formatted digest of relevant prior turns; empty when
	// there is no history.
	Memory string

	// StateSummary is a one-line digest of the session state (stage, cart,
	// recent order).
	StateSummary string
}

// Assembler drives one session's memory and stage state. Like its parts it
// assumes request-response cadence: one Prepare/Complete pair in flight at a
// time.
type Assembler struct {
	facade  *memory.Facade
	tracker *stage.Tracker
}

// Option configures the assembler.
type Option func(*settings)

type settings struct {
	sessionID string
	generate  core.GenerateFunc
	embed     core.EmbedFunc
}

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(s *settings) { s.sessionID = id }
}

// WithGenerate supplies the text-generation capability.
func WithGenerate(g core.GenerateFunc) Option {
	return func(s *settings) { s.generate = g }
}

// WithEmbed supplies the embedding capability.
func WithEmbed(e core.EmbedFunc) Option {
	return func(s *settings) { s.embed = e }
}

// New wires a facade and tracker for a fresh session from the configuration.
func New(cfg *config.Config, opts ...Option) (*Assembler, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.sessionID == "" {
		s.sessionID = fmt.Sprintf("%s-%s", cfg.Session.DefaultSessionPrefix, uuid.New().String())
	}

	tracker := stage.NewTracker(s.sessionID, time.Duration(cfg.Session.Timeout)*time.Second)

	facade, err := memory.New(cfg,
		memory.WithSessionID(s.sessionID),
		memory.WithGenerate(s.generate),
		memory.WithEmbed(s.embed),
		memory.WithStageTracker(tracker),
	)
	if err != nil {
		return nil, err
	}

	return &Assembler{facade: facade, tracker: tracker}, nil
}

// Prepare returns the context for reasoning over input: the current stage
// and the memory digest. The in-flight turn is not part of the digest; it
// has not been recorded yet.
func (a *Assembler) Prepare(ctx context.Context, input string) TurnContext {
	return TurnContext{
		Stage:        a.tracker.Current(),
		Memory:       a.facade.ContextForPrompt(ctx, input),
		StateSummary: a.tracker.ContextSummary(),
	}
}

// Complete reports a finished turn: the facade records it and the tracker
// re-evaluates the stage and extracts user context from tool outputs.
// It returns the stage after the turn.
func (a *Assembler) Complete(ctx context.Context, input, response string, toolCalls []core.ToolCall) stage.Stage {
	a.facade.RecordTurn(ctx, input, response, toolCalls)
	return a.tracker.Advance(input, toolCalls)
}

// Facade exposes the session's memory facade (persistence, history, clear).
func (a *Assembler) Facade() *memory.Facade {
	return a.facade
}

// Tracker exposes the session's stage tracker.
func (a *Assembler) Tracker() *stage.Tracker {
	return a.tracker
}
