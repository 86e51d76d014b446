// anthropic_api backend - streaming via the official anthropic-sdk-go.
//
// Information Hiding:
// - Messages API request shape and event stream handling
// - Usage capture from message_start / message_delta events
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
)

func (d *Dispatcher) executeAnthropic(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(d.cfg.AnthropicModel),
		MaxTokens: int64(d.cfg.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(contextText, op.Task))),
		},
		Temperature: anthropic.Float(float64(d.cfg.Temperature)),
	}
	if agent.BasePrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: agent.BasePrompt},
		}
	}

	stream := d.anthropicClient.Messages.NewStreaming(ctx, params)

	var full strings.Builder
	var promptTokens, completionTokens int64

	for stream.Next() {
		event := stream.Current()

		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			if eventVariant.Message.Usage.InputTokens > 0 {
				promptTokens = eventVariant.Message.Usage.InputTokens
			}
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					full.WriteString(deltaVariant.Text)
					d.events.AgentOutput(op.AgentID, op.ID, deltaVariant.Text, false)
				}
			}
		case anthropic.MessageDeltaEvent:
			if eventVariant.Usage.OutputTokens > 0 {
				completionTokens = eventVariant.Usage.OutputTokens
			}
		}
	}
	if stream.Err() != nil {
		return model.OperationResult{}, fault.Backend(fmt.Errorf("anthropic stream failed: %w", stream.Err()))
	}

	d.events.AgentOutput(op.AgentID, op.ID, "", true)

	cost := usageCost(model.ToolAnthropicAPI, promptTokens, completionTokens)
	if cost == 0 {
		cost = op.CostEstimate
	}

	return model.OperationResult{
		Output:   full.String(),
		Cost:     cost,
		Duration: durationSince(op, start),
	}, nil
}
