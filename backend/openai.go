// openai_api backend - streaming chat completion via go-openai.
//
// Information Hiding:
// - Request/response format for the Chat Completions API
// - Usage capture from the final stream chunk
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
)

func (d *Dispatcher) executeOpenAI(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model: d.cfg.OpenAIModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: agent.BasePrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(contextText, op.Task)},
		},
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxOutputTokens,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := d.openaiClient.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return model.OperationResult{}, fault.Backend(fmt.Errorf("openai stream creation failed: %w", err))
	}
	defer stream.Close()

	var full strings.Builder
	var promptTokens, completionTokens int64

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.OperationResult{}, fault.Backend(fmt.Errorf("openai stream recv failed: %w", err))
		}

		// Usage arrives in the final chunk when IncludeUsage is set.
		if response.Usage != nil {
			promptTokens = int64(response.Usage.PromptTokens)
			completionTokens = int64(response.Usage.CompletionTokens)
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				full.WriteString(content)
				d.events.AgentOutput(op.AgentID, op.ID, content, false)
			}
		}
	}

	d.events.AgentOutput(op.AgentID, op.ID, "", true)

	cost := usageCost(model.ToolOpenAIAPI, promptTokens, completionTokens)
	if cost == 0 {
		cost = op.CostEstimate
	}

	return model.OperationResult{
		Output:   full.String(),
		Cost:     cost,
		Duration: durationSince(op, start),
	}, nil
}
