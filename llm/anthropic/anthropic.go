// Package anthropic adapts the Anthropic API client to the text-generation
// capability the memory engine consumes. The engine itself only sees a
// core.GenerateFunc; any provider can be substituted the same way.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/shark8848/convmem-go-sdk/core"
)

// DefaultModel is used when no model is specified.
const DefaultModel = "claude-sonnet-4-20250514"

const maxSummaryTokens = 1024

// Generator wraps a client into a core.GenerateFunc suitable for
// model-assisted summarization.
func Generator(client *anthropic.Client, model string) core.GenerateFunc {
	if model == "" {
		model = DefaultModel
	}
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxSummaryTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("anthropic: %w", err)
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return sb.String(), nil
	}
}
