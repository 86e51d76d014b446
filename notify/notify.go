// Package notify pushes named events to a single connected observer.
//
// Delivery is fire-and-forget: no acknowledgement, no replay, and events
// sent while no observer is connected are silently dropped.
package notify

import (
	"time"

	"github.com/forgeworks/forge/model"
)

// Notifier sends one named event with an arbitrary JSON payload.
type Notifier interface {
	Send(event string, payload any)
}

// Message is the wire shape of a pushed event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Nop discards every event.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(string, any) {}

var _ Notifier = Nop{}

// Emitter wraps a Notifier with the event vocabulary the core uses.
type Emitter struct {
	Notifier
}

// NewEmitter wraps n. A nil n behaves like Nop.
func NewEmitter(n Notifier) *Emitter {
	if n == nil {
		n = Nop{}
	}
	return &Emitter{Notifier: n}
}

// OperationCreated announces a newly persisted operation.
func (e *Emitter) OperationCreated(op model.Operation) {
	e.Send("operation.created", op)
}

// OperationUpdate announces a status change.
func (e *Emitter) OperationUpdate(operationID string, status model.OperationStatus) {
	e.Send("operation.update", map[string]any{
		"operationId": operationID,
		"status":      status,
	})
}

// OperationComplete announces a terminal success with its result.
func (e *Emitter) OperationComplete(operationID string, result model.OperationResult) {
	e.Send("operation.complete", map[string]any{
		"operationId": operationID,
		"output":      result.Output,
		"cost":        result.Cost,
		"durationMs":  result.Duration.Milliseconds(),
	})
}

// OperationFailed announces a terminal failure.
func (e *Emitter) OperationFailed(operationID, errMsg string) {
	e.Send("operation.failed", map[string]any{
		"operationId": operationID,
		"error":       errMsg,
	})
}

// AgentOutput forwards a chunk of backend output.
func (e *Emitter) AgentOutput(agentID, operationID, output string, complete bool) {
	e.Send("agent.output", map[string]any{
		"agentId":     agentID,
		"operationId": operationID,
		"output":      output,
		"isComplete":  complete,
	})
}

// CostUpdate announces a committed spend delta for a project.
func (e *Emitter) CostUpdate(projectID, operationID string, totalCost, increment model.Cents) {
	e.Send("cost.update", map[string]any{
		"projectId":   projectID,
		"operationId": operationID,
		"totalCost":   totalCost,
		"increment":   increment,
	})
}

// ContextUpdate pushes the refreshed context list for a project.
func (e *Emitter) ContextUpdate(projectID string, items []model.ContextItem) {
	e.Send("context.update", map[string]any{
		"projectId":    projectID,
		"contextItems": items,
	})
}

// SnapshotCreated announces a new git snapshot.
func (e *Emitter) SnapshotCreated(projectID string, snap model.Snapshot) {
	e.Send("git.snapshot", map[string]any{
		"projectId": projectID,
		"snapshot":  snap,
	})
}

// RollbackCompleted announces a finished rollback.
func (e *Emitter) RollbackCompleted(projectID, snapshotID, commitHash string) {
	e.Send("git.rollback", map[string]any{
		"projectId":  projectID,
		"snapshotId": snapshotID,
		"commitHash": commitHash,
		"status":     "completed",
	})
}

// Error pushes a client-visible error notice.
func (e *Emitter) Error(message string) {
	e.Send("error", map[string]any{
		"message": message,
		"time":    time.Now().UTC(),
	})
}
