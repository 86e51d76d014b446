// gemini_api backend - streaming via the official google.golang.org/genai SDK.
//
// Information Hiding:
// - Client creation deferred to first use (construction needs a context)
// - System instruction handling via config
// - Usage metadata capture from streamed responses
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
)

func (d *Dispatcher) gemini(ctx context.Context) (*genai.Client, error) {
	d.geminiOnce.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  d.cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			d.geminiInitErr = fmt.Errorf("failed to initialize gemini client: %w", err)
			return
		}
		d.geminiClient = client
	})
	if d.geminiInitErr != nil {
		return nil, d.geminiInitErr
	}
	return d.geminiClient, nil
}

func (d *Dispatcher) executeGemini(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	start := time.Now()

	client, err := d.gemini(ctx)
	if err != nil {
		return model.OperationResult{}, fault.Backend(err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(d.cfg.Temperature),
		MaxOutputTokens: int32(d.cfg.MaxOutputTokens),
	}
	if agent.BasePrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(agent.BasePrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt(contextText, op.Task), genai.RoleUser),
	}

	var full strings.Builder
	var promptTokens, completionTokens int64

	for response, err := range client.Models.GenerateContentStream(ctx, d.cfg.GeminiModel, contents, config) {
		if err != nil {
			return model.OperationResult{}, fault.Backend(fmt.Errorf("gemini stream failed: %w", err))
		}

		if response.UsageMetadata != nil {
			promptTokens = int64(response.UsageMetadata.PromptTokenCount)
			completionTokens = int64(response.UsageMetadata.CandidatesTokenCount)
		}

		text := response.Text()
		if text != "" {
			full.WriteString(text)
			d.events.AgentOutput(op.AgentID, op.ID, text, false)
		}
	}

	d.events.AgentOutput(op.AgentID, op.ID, "", true)

	cost := usageCost(model.ToolGeminiAPI, promptTokens, completionTokens)
	if cost == 0 {
		cost = op.CostEstimate
	}

	return model.OperationResult{
		Output:   full.String(),
		Cost:     cost,
		Duration: durationSince(op, start),
	}, nil
}
