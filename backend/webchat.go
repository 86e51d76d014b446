// web_chat backend - manual human-in-the-loop handoff.
//
// No external call happens here: the backend renders a handoff document the
// operator pastes into a web chat, and a separate import path brings the
// response back.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
)

// handoffDocument is the structured payload handed to the operator.
type handoffDocument struct {
	Task         string    `json:"task"`
	Context      string    `json:"context"`
	Agent        string    `json:"agent"`
	AgentPrompt  string    `json:"agentPrompt"`
	ProjectID    string    `json:"projectId"`
	OperationID  string    `json:"operationId"`
	Timestamp    time.Time `json:"timestamp"`
	ReturnFormat string    `json:"returnFormat"`
}

func (d *Dispatcher) generateWebChatHandoff(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error) {
	handoff := handoffDocument{
		Task:        op.Task,
		Context:     contextText,
		Agent:       agent.Name,
		AgentPrompt: agent.BasePrompt,
		ProjectID:   op.ProjectID,
		OperationID: op.ID,
		Timestamp:   time.Now().UTC(),
		ReturnFormat: fmt.Sprintf(`Please paste your complete response back into the app using the "Import Web Chat Response" feature.

Expected format:
{
  "operationId": "%s",
  "response": "Your complete response here",
  "additionalContext": "Any new context or findings that should be saved"
}`, op.ID),
	}

	if err := d.eventLog.AppendEvent(ctx, "web_chat.handoff_created", op.ID, handoff); err != nil {
		return model.OperationResult{}, fmt.Errorf("log handoff: %w", err)
	}

	doc, err := json.MarshalIndent(handoff, "", "  ")
	if err != nil {
		return model.OperationResult{}, fmt.Errorf("marshal handoff: %w", err)
	}

	output := fmt.Sprintf(`Web Chat Handoff Document Generated:

%s

Instructions:
1. Copy the above JSON document
2. Open your web chat interface (Claude.ai, ChatGPT, etc.)
3. Paste the document as your first message
4. After receiving the response, copy it back into this app
5. Use the "Import Web Chat Response" feature to complete this operation`, doc)

	d.events.AgentOutput(op.AgentID, op.ID, output, true)

	// Manual work carries no API cost and no measurable duration.
	return model.OperationResult{Output: output, Cost: 0, Duration: 0}, nil
}

// ImportPayload is the operator's pasted-back web chat response.
type ImportPayload struct {
	Response          string `json:"response"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// ImportWebChatResponse validates and records a manually returned web chat
// response for a running web_chat operation.
func (d *Dispatcher) ImportWebChatResponse(ctx context.Context, operationID string, payload ImportPayload) (model.OperationResult, error) {
	op, err := d.ops.GetOperation(ctx, operationID)
	if err != nil {
		return model.OperationResult{}, fmt.Errorf("load operation: %w", err)
	}
	if op == nil {
		return model.OperationResult{}, fault.NotFound("operation", operationID)
	}
	if op.Tool != model.ToolWebChat {
		return model.OperationResult{}, fault.Validation("operation %s does not use web chat", operationID)
	}
	if op.Status != model.StatusRunning {
		return model.OperationResult{}, fault.Precondition("operation %s is not in running state", operationID)
	}
	if payload.Response == "" {
		return model.OperationResult{}, fault.Validation("invalid response format - missing response field")
	}

	if payload.AdditionalContext != "" {
		name := fmt.Sprintf("Web Chat Response - %s", time.Now().UTC().Format(time.RFC3339))
		if _, err := d.contexts.CreateItem(ctx, op.ProjectID, name, model.ContextDocument, payload.AdditionalContext, ""); err != nil {
			return model.OperationResult{}, fmt.Errorf("save additional context: %w", err)
		}
	}

	if err := d.eventLog.AppendEvent(ctx, "web_chat.response_imported", operationID, payload); err != nil {
		return model.OperationResult{}, fmt.Errorf("log import: %w", err)
	}

	return model.OperationResult{
		Output:   payload.Response,
		Cost:     0,
		Duration: durationSince(*op, op.CreatedAt),
	}, nil
}
