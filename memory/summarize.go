package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shark8848/convmem-go-sdk/core"
)

// Prefix budgets for the rule-based digest line, in characters.
const (
	ruleInputPrefix    = 100
	ruleResponsePrefix = 50
)

// RuleSummarizer builds a digest from the turn's input prefix, the invoked
// tool names, and the response prefix. Deterministic, no external calls,
// cannot fail.
type RuleSummarizer struct{}

func NewRuleSummarizer() *RuleSummarizer {
	return &RuleSummarizer{}
}

func (s *RuleSummarizer) Name() string { return "rule" }

// Summarize produces a single line:
//
//	user: <input-prefix>, tools: <tool-names> -> <response-prefix>
//
// The tools segment is omitted when the turn made no tool calls.
func (s *RuleSummarizer) Summarize(_ context.Context, turn *core.Turn) string {
	input := prefix(turn.UserInput, ruleInputPrefix)

	var tools string
	if names := turn.ToolNames(); len(names) > 0 {
		tools = ", tools: " + strings.Join(names, ", ")
	}

	response := prefix(turn.AgentResponse, ruleResponsePrefix)
	if utf8.RuneCountInString(turn.AgentResponse) > ruleResponsePrefix {
		response += "..."
	}

	return fmt.Sprintf("user: %s%s -> %s", input, tools, response)
}

// LLMSummarizer compresses a turn with the external text-generation
// capability. Any failure (timeout, error, empty result) falls back to the
// rule-based strategy and logs the degradation; the fallback is mandatory so
// a recorded turn always carries a digest.
type LLMSummarizer struct {
	generate core.GenerateFunc
	fallback Summarizer
	maxChars int
	timeout  time.Duration
}

// NewLLMSummarizer creates the model-assisted strategy. maxChars is the
// target character budget for the digest; timeout bounds each generation
// call.
func NewLLMSummarizer(generate core.GenerateFunc, maxChars int, timeout time.Duration) *LLMSummarizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMSummarizer{
		generate: generate,
		fallback: NewRuleSummarizer(),
		maxChars: maxChars,
		timeout:  timeout,
	}
}

func (s *LLMSummarizer) Name() string { return "llm" }

func (s *LLMSummarizer) Summarize(ctx context.Context, turn *core.Turn) string {
	if s.generate == nil {
		return s.fallback.Summarize(ctx, turn)
	}

	prompt := fmt.Sprintf(
		"Summarize this exchange in one line of at most %d characters. Keep concrete entities (products, orders, amounts).\n\nUser: %s\nAssistant: %s\n\nSummary:",
		s.maxChars, turn.UserInput, turn.AgentResponse)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.generate(ctx, prompt)
	if err != nil {
		log.Printf("[MEMORY] llm summary failed for turn #%d: %v, falling back to rule-based digest", turn.Index, err)
		return s.fallback.Summarize(ctx, turn)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		log.Printf("[MEMORY] llm summary empty for turn #%d, falling back to rule-based digest", turn.Index)
		return s.fallback.Summarize(ctx, turn)
	}

	if runes := []rune(out); len(runes) > s.maxChars {
		out = strings.TrimSpace(string(runes[:s.maxChars]))
	}
	return out
}

// FormatDigest joins ordered digests into a single block for prompt
// injection, keeping at most limit entries (the most recent ones).
// Returns "" when there is nothing to inject.
func FormatDigest(digests []string, limit int) string {
	if len(digests) == 0 {
		return ""
	}
	if limit > 0 && len(digests) > limit {
		digests = digests[len(digests)-limit:]
	}

	lines := make([]string, 0, len(digests)+1)
	lines = append(lines, "# Conversation so far")
	for i, d := range digests {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, d))
	}
	return strings.Join(lines, "\n")
}

// prefix returns the first n characters of s, never splitting a rune.
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
