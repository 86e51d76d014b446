package notify

import (
	"testing"

	"github.com/forgeworks/forge/model"
)

type recorder struct {
	events   []string
	payloads []any
}

func (r *recorder) Send(event string, payload any) {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
}

func TestNewEmitterNilNotifier(t *testing.T) {
	e := NewEmitter(nil)
	// Must not panic.
	e.OperationUpdate("op1", model.StatusRunning)
	e.Error("boom")
}

func TestEmitterEventNames(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec)

	e.OperationCreated(model.Operation{ID: "op1"})
	e.OperationUpdate("op1", model.StatusRunning)
	e.OperationComplete("op1", model.OperationResult{Output: "done", Cost: 75})
	e.OperationFailed("op1", "boom")
	e.AgentOutput("a1", "op1", "chunk", false)
	e.CostUpdate("p1", "op1", 500, 75)
	e.ContextUpdate("p1", nil)
	e.SnapshotCreated("p1", model.Snapshot{ID: "s1"})
	e.RollbackCompleted("p1", "s1", "deadbeef")
	e.Error("boom")

	want := []string{
		"operation.created",
		"operation.update",
		"operation.complete",
		"operation.failed",
		"agent.output",
		"cost.update",
		"context.update",
		"git.snapshot",
		"git.rollback",
		"error",
	}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(rec.events))
	}
	for i, name := range want {
		if rec.events[i] != name {
			t.Errorf("event %d: expected %s, got %s", i, name, rec.events[i])
		}
	}
}

func TestOperationUpdatePayload(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec)

	e.OperationUpdate("op1", model.StatusApproved)

	payload, ok := rec.payloads[0].(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload type %T", rec.payloads[0])
	}
	if payload["operationId"] != "op1" {
		t.Errorf("expected operation id, got %v", payload["operationId"])
	}
	if payload["status"] != model.StatusApproved {
		t.Errorf("expected approved status, got %v", payload["status"])
	}
}
