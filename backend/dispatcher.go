// Package backend dispatches approved operations to their execution
// backends and normalizes heterogeneous outcomes into one result shape.
//
// Information Hiding:
// - Per-backend transport (subprocess, streaming API, manual handoff) hidden
// - Cost models and pricing tables internal
// - Scratch-file lifecycle internal to the subprocess backend
package backend

import (
	"context"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/storage"
)

// Config carries backend credentials, models and paths.
type Config struct {
	// ClaudeCodePath is the claude-code binary; ProjectsPath holds one
	// working tree per project id.
	ClaudeCodePath string
	ProjectsPath   string

	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string

	Temperature     float32
	MaxOutputTokens int
}

// ContextCreator saves imported findings as new context items.
type ContextCreator interface {
	CreateItem(ctx context.Context, projectID, name string, itemType model.ContextType, content, filePath string) (model.ContextItem, error)
}

// Dispatcher routes an operation to its backend by tool.
type Dispatcher struct {
	cfg      Config
	events   *notify.Emitter
	eventLog storage.EventStore
	ops      storage.OperationStore
	contexts ContextCreator

	openaiClient    *openai.Client
	anthropicClient anthropic.Client

	// The gemini client needs a context to construct, so it is resolved
	// once on first use.
	geminiOnce    sync.Once
	geminiClient  *genai.Client
	geminiInitErr error
}

// NewDispatcher creates a dispatcher. API clients are constructed up front;
// backends whose credentials are missing fail at execution time, not here.
func NewDispatcher(cfg Config, events *notify.Emitter, eventLog storage.EventStore, ops storage.OperationStore, contexts ContextCreator) *Dispatcher {
	return &Dispatcher{
		cfg:             cfg,
		events:          events,
		eventLog:        eventLog,
		ops:             ops,
		contexts:        contexts,
		openaiClient:    openai.NewClient(cfg.OpenAIAPIKey),
		anthropicClient: anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
	}
}

// Execute runs the operation's task against its backend. Backend-reported
// failures come back as classified errors, never panics; the caller decides
// how to persist them.
func (d *Dispatcher) Execute(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	switch op.Tool {
	case model.ToolClaudeCode:
		return d.executeClaudeCode(ctx, op, agent, contextText)
	case model.ToolOpenAIAPI:
		return d.executeOpenAI(ctx, op, agent, contextText)
	case model.ToolAnthropicAPI:
		return d.executeAnthropic(ctx, op, agent, contextText)
	case model.ToolGeminiAPI:
		return d.executeGemini(ctx, op, agent, contextText)
	case model.ToolWebChat:
		return d.generateWebChatHandoff(ctx, op, agent, contextText)
	default:
		return model.OperationResult{}, fault.Validation("unknown tool %q", op.Tool)
	}
}

// userPrompt combines selected context and the task into the user-facing
// message shared by all API backends.
func userPrompt(contextText, task string) string {
	return "Context:\n" + contextText + "\n\nTask: " + task
}

// tokenPricing is expressed in cents per million tokens so cost arithmetic
// stays in integers until the final rounding.
type tokenPricing struct {
	promptCentsPerM     int64
	completionCentsPerM int64
}

var pricing = map[model.ToolType]tokenPricing{
	model.ToolOpenAIAPI:    {promptCentsPerM: 3000, completionCentsPerM: 6000},
	model.ToolAnthropicAPI: {promptCentsPerM: 300, completionCentsPerM: 1500},
	model.ToolGeminiAPI:    {promptCentsPerM: 30, completionCentsPerM: 250},
}

// usageCost converts stream usage metadata into cents, rounding once.
// Returns zero when usage is absent, which callers treat as "fall back to
// the estimate".
func usageCost(tool model.ToolType, promptTokens, completionTokens int64) model.Cents {
	p, ok := pricing[tool]
	if !ok {
		return 0
	}
	microCents := promptTokens*p.promptCentsPerM + completionTokens*p.completionCentsPerM
	return model.Cents((microCents + 500000) / 1000000)
}

// durationSince measures execution time from the operation's start
// timestamp when one exists.
func durationSince(op model.Operation, fallback time.Time) time.Duration {
	start := fallback
	if op.StartedAt != nil {
		start = *op.StartedAt
	}
	return time.Since(start)
}
