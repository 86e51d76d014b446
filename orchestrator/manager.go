// Package orchestrator owns the operation lifecycle state machine, the
// budget reservation ledger, and the end-to-end execution pipeline.
//
// Information Hiding:
// - State-machine transitions and their guards internal
// - Reservation accounting internal to the ledger
// - Collaborators (context selection, dispatch, snapshots) behind interfaces
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/storage"
)

// ContextGatherer selects and renders the context handed to an operation.
type ContextGatherer interface {
	GatherContext(ctx context.Context, op model.Operation) (string, error)
}

// Executor dispatches an operation to its backend.
type Executor interface {
	Execute(ctx context.Context, op model.Operation, agent model.Agent, contextText string) (model.OperationResult, error)
}

// Snapshotter captures a project's file tree before execution.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, projectID, description, operationID string) (string, error)
}

// Manager drives operations from creation through terminal state.
type Manager struct {
	store      storage.Store
	ledger     *Ledger
	contexts   ContextGatherer
	dispatcher Executor
	snapshots  Snapshotter
	events     *notify.Emitter
	runner     *Runner
	now        func() time.Time
}

// NewManager wires the orchestrator. snapshots may be nil, in which case the
// pre-execution snapshot step is skipped. workers bounds concurrent
// executions launched through EnqueueExecution.
func NewManager(store storage.Store, contexts ContextGatherer, dispatcher Executor, snapshots Snapshotter, events *notify.Emitter, workers int) *Manager {
	m := &Manager{
		store:      store,
		ledger:     NewLedger(),
		contexts:   contexts,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		events:     events,
		now:        time.Now,
	}
	m.runner = newRunner(workers, func(operationID string) {
		// Failures surface through persisted state and notifications; the
		// enqueueing caller has already returned.
		_, _ = m.Execute(context.Background(), operationID)
	})
	return m
}

// Close stops the execution workers after draining queued work.
func (m *Manager) Close() {
	m.runner.close()
}

// Ledger exposes the reservation ledger for inspection.
func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// CreateInput is the caller's request for a new operation.
type CreateInput struct {
	ProjectID  string
	AgentID    string
	Task       string
	Tool       model.ToolType
	ContextIDs []string
}

// Base cost estimates per tool, in cents. Manual web chat work costs
// nothing; unknown tools get a conservative middle rate.
var baseCostCents = map[model.ToolType]model.Cents{
	model.ToolClaudeCode:   200,
	model.ToolOpenAIAPI:    50,
	model.ToolAnthropicAPI: 75,
	model.ToolGeminiAPI:    40,
	model.ToolWebChat:      0,
}

const defaultBaseCostCents = model.Cents(100)

// EstimateCost prices an operation before execution: tool base rate scaled
// by task length (x1.5 above 500 characters, x2 above 1000), rounded to
// cents.
func EstimateCost(tool model.ToolType, task string) model.Cents {
	base, ok := baseCostCents[tool]
	if !ok {
		base = defaultBaseCostCents
	}

	dollars := float64(base) / 100
	if len(task) > 500 {
		dollars *= 1.5
	}
	if len(task) > 1000 {
		dollars *= 2
	}
	return model.Cents(math.Round(dollars * 100))
}

// Create estimates, reserves budget and persists a new pending_approval
// operation. A rejected budget check leaves no state behind.
func (m *Manager) Create(ctx context.Context, input CreateInput) (model.Operation, error) {
	if input.Task == "" {
		return model.Operation{}, fault.Validation("task is required")
	}
	if _, err := model.ParseToolType(string(input.Tool)); err != nil {
		return model.Operation{}, fault.Validation("invalid tool %q", input.Tool)
	}

	estimate := EstimateCost(input.Tool, input.Task)

	project, err := m.store.GetProject(ctx, input.ProjectID)
	if err != nil {
		return model.Operation{}, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return model.Operation{}, fault.NotFound("project", input.ProjectID)
	}
	agent, err := m.store.GetAgent(ctx, input.AgentID)
	if err != nil {
		return model.Operation{}, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil {
		return model.Operation{}, fault.NotFound("agent", input.AgentID)
	}

	overage, ok := m.ledger.TryReserve(input.ProjectID, project.BudgetSpent, project.BudgetLimit, estimate)
	if !ok {
		return model.Operation{}, fault.BudgetExceeded(overage)
	}

	op := model.Operation{
		ID:           uuid.NewString(),
		ProjectID:    input.ProjectID,
		AgentID:      input.AgentID,
		Task:         input.Task,
		Tool:         input.Tool,
		Status:       model.StatusPendingApproval,
		CostEstimate: estimate,
		ContextIDs:   input.ContextIDs,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.store.CreateOperation(ctx, op); err != nil {
		// A failed persist must not leave the reservation behind.
		m.ledger.Release(input.ProjectID, estimate)
		return model.Operation{}, fmt.Errorf("persist operation: %w", err)
	}

	m.logEvent(ctx, "operation.created", op.ID, map[string]any{
		"operation":  op,
		"contextIds": input.ContextIDs,
	})
	m.events.OperationCreated(op)
	return op, nil
}

// Approve moves a pending_approval operation to approved. Execution is not
// started here; the caller enqueues it separately.
func (m *Manager) Approve(ctx context.Context, operationID string) (model.Operation, error) {
	op, err := m.store.GetOperation(ctx, operationID)
	if err != nil {
		return model.Operation{}, fmt.Errorf("load operation: %w", err)
	}
	if op == nil {
		return model.Operation{}, fault.NotFound("operation", operationID)
	}
	if op.Status != model.StatusPendingApproval {
		return model.Operation{}, fault.Precondition("operation %s is %s, not pending_approval", operationID, op.Status)
	}

	op.Status = model.StatusApproved
	if err := m.store.UpdateOperation(ctx, *op); err != nil {
		return model.Operation{}, fmt.Errorf("persist approval: %w", err)
	}

	m.logEvent(ctx, "operation.approved", operationID, nil)
	m.events.OperationUpdate(operationID, model.StatusApproved)
	return *op, nil
}

// EnqueueExecution hands an approved operation to the worker pool and
// returns immediately. The execution outcome is observed through the
// notification channel and persisted state only.
func (m *Manager) EnqueueExecution(operationID string) {
	m.runner.enqueue(operationID)
}

// Execute runs an approved operation to a terminal state. Whatever the
// backend does, the operation ends complete or failed; only a process
// crash can leave it running.
func (m *Manager) Execute(ctx context.Context, operationID string) (model.OperationResult, error) {
	op, err := m.store.GetOperation(ctx, operationID)
	if err != nil {
		return model.OperationResult{}, fmt.Errorf("load operation: %w", err)
	}
	if op == nil {
		return model.OperationResult{}, fault.NotFound("operation", operationID)
	}
	if op.Status != model.StatusApproved {
		return model.OperationResult{}, fault.Precondition("operation must be approved before execution")
	}

	started := m.now().UTC()
	op.Status = model.StatusRunning
	op.StartedAt = &started
	if err := m.store.UpdateOperation(ctx, *op); err != nil {
		return model.OperationResult{}, fmt.Errorf("persist running state: %w", err)
	}
	m.events.OperationUpdate(operationID, model.StatusRunning)
	m.logEvent(ctx, "operation.started", operationID, nil)

	// Pre-execution snapshot is best-effort: a failure is logged and
	// execution continues.
	if m.snapshots != nil {
		description := "Before: " + truncate(op.Task, 50)
		if _, err := m.snapshots.CreateSnapshot(ctx, op.ProjectID, description, op.ID); err != nil {
			m.logEvent(ctx, "git.snapshot_failed", operationID, map[string]any{"error": err.Error()})
		}
	}

	contextText, err := m.contexts.GatherContext(ctx, *op)
	if err != nil {
		return model.OperationResult{}, m.failExecution(ctx, *op, err)
	}

	agent, err := m.store.GetAgent(ctx, op.AgentID)
	if err == nil && agent == nil {
		err = fault.NotFound("agent", op.AgentID)
	}
	if err != nil {
		return model.OperationResult{}, m.failExecution(ctx, *op, err)
	}

	result, err := m.dispatcher.Execute(ctx, *op, *agent, contextText)
	if err != nil {
		return model.OperationResult{}, m.failExecution(ctx, *op, err)
	}

	completed := m.now().UTC()
	op.Status = model.StatusComplete
	op.ActualCost = &result.Cost
	op.CompletedAt = &completed
	if err := m.store.UpdateOperation(ctx, *op); err != nil {
		return model.OperationResult{}, m.failExecution(ctx, *op, fmt.Errorf("persist completion: %w", err))
	}

	if err := m.store.AddProjectSpend(ctx, op.ProjectID, result.Cost); err != nil {
		return model.OperationResult{}, m.failExecution(ctx, *op, fmt.Errorf("commit spend: %w", err))
	}

	// The reservation tracked the commitment, not the outcome: release by
	// the estimate regardless of actual cost.
	m.ledger.Release(op.ProjectID, op.CostEstimate)

	m.updateAgentStats(ctx, op.AgentID, true)

	m.logEvent(ctx, "operation.completed", operationID, map[string]any{"result": result})
	m.events.OperationComplete(operationID, result)
	if project, err := m.store.GetProject(ctx, op.ProjectID); err == nil && project != nil {
		m.events.CostUpdate(op.ProjectID, operationID, project.BudgetSpent, result.Cost)
	}

	return result, nil
}

// failExecution moves a running operation to failed, settles accounting and
// re-raises the cause.
func (m *Manager) failExecution(ctx context.Context, op model.Operation, cause error) error {
	// The operation is leaving the running state either way; the in-memory
	// reservation must not outlive it even when the persist below fails.
	m.ledger.Release(op.ProjectID, op.CostEstimate)
	m.updateAgentStats(ctx, op.AgentID, false)

	completed := m.now().UTC()
	op.Status = model.StatusFailed
	op.ErrorMessage = cause.Error()
	op.ActualCost = nil
	op.CompletedAt = &completed
	if err := m.store.UpdateOperation(ctx, op); err != nil {
		return fmt.Errorf("persist failure state after %v: %w", cause, err)
	}

	m.logEvent(ctx, "operation.failed", op.ID, map[string]any{"error": cause.Error()})
	m.events.OperationFailed(op.ID, cause.Error())
	return cause
}

// Cancel aborts an operation that has not started executing. Reservations
// held by pending_approval or approved operations are returned.
func (m *Manager) Cancel(ctx context.Context, operationID string) (model.Operation, error) {
	op, err := m.store.GetOperation(ctx, operationID)
	if err != nil {
		return model.Operation{}, fmt.Errorf("load operation: %w", err)
	}
	if op == nil {
		return model.Operation{}, fault.NotFound("operation", operationID)
	}
	if op.Status.Terminal() {
		return model.Operation{}, fault.Precondition("cannot cancel %s operation", op.Status)
	}
	if op.Status == model.StatusRunning {
		return model.Operation{}, fault.Precondition("cannot cancel a running operation")
	}

	priorStatus := op.Status
	completed := m.now().UTC()
	op.Status = model.StatusCancelled
	op.CompletedAt = &completed
	if err := m.store.UpdateOperation(ctx, *op); err != nil {
		return model.Operation{}, fmt.Errorf("persist cancellation: %w", err)
	}

	if priorStatus == model.StatusPendingApproval || priorStatus == model.StatusApproved {
		m.ledger.Release(op.ProjectID, op.CostEstimate)
	}

	m.logEvent(ctx, "operation.cancelled", operationID, nil)
	m.events.OperationUpdate(operationID, model.StatusCancelled)
	return *op, nil
}

// ProjectOperations returns a project's operations, newest first.
func (m *Manager) ProjectOperations(ctx context.Context, projectID string) ([]model.Operation, error) {
	return m.store.ListProjectOperations(ctx, projectID)
}

// PendingApprovals returns pending_approval operations across all projects,
// oldest first.
func (m *Manager) PendingApprovals(ctx context.Context) ([]model.Operation, error) {
	return m.store.ListPendingApprovals(ctx)
}

// updateAgentStats advances the agent's rolling success estimator. The
// prior success count is reconstructed from the stored rounded rate, so the
// estimator is lossy over long histories; raw counts were never persisted
// upstream and the reconstruction is kept as-is.
func (m *Manager) updateAgentStats(ctx context.Context, agentID string, success bool) {
	agent, err := m.store.GetAgent(ctx, agentID)
	if err != nil || agent == nil {
		return
	}

	newTotal := agent.TotalOperations + 1
	successCount := int(math.Round(float64(agent.SuccessRate) * float64(agent.TotalOperations) / 100))
	if success {
		successCount++
	}
	newRate := int(math.Round(float64(successCount) * 100 / float64(newTotal)))

	_ = m.store.UpdateAgentStats(ctx, agentID, newTotal, newRate)
}

// logEvent appends an audit record. Event-log failures never interrupt the
// operation flow.
func (m *Manager) logEvent(ctx context.Context, eventType, operationID string, payload map[string]any) {
	_ = m.store.AppendEvent(ctx, eventType, operationID, payload)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
