// Package storage provides the SQLite record store for all persisted
// entities.
//
// Information Hiding:
// - SQLite connection management hidden behind interfaces
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling
package storage

import (
	"context"
	"time"

	"github.com/forgeworks/forge/model"
)

// ProjectStore persists projects. Budget spend only moves through the
// atomic increment, never through a read-modify-write of the row.
type ProjectStore interface {
	CreateProject(ctx context.Context, p model.Project) error
	// GetProject returns nil, nil when the project does not exist.
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) error
	// AddProjectSpend atomically increments budget_spent.
	AddProjectSpend(ctx context.Context, id string, delta model.Cents) error
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// AgentStore persists agents and their rolling counters.
type AgentStore interface {
	CreateAgent(ctx context.Context, a model.Agent) error
	// GetAgent returns nil, nil when the agent does not exist.
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	UpdateAgentStats(ctx context.Context, id string, totalOperations, successRate int) error
	ListAgents(ctx context.Context) ([]model.Agent, error)
}

// OperationStore persists operations.
type OperationStore interface {
	CreateOperation(ctx context.Context, op model.Operation) error
	// GetOperation returns nil, nil when the operation does not exist.
	GetOperation(ctx context.Context, id string) (*model.Operation, error)
	UpdateOperation(ctx context.Context, op model.Operation) error
	// ListProjectOperations returns a project's operations, newest first.
	ListProjectOperations(ctx context.Context, projectID string) ([]model.Operation, error)
	// ListPendingApprovals returns pending_approval operations across all
	// projects, oldest first.
	ListPendingApprovals(ctx context.Context) ([]model.Operation, error)
}

// ContextStore persists context items and rules.
type ContextStore interface {
	CreateContextItem(ctx context.Context, item model.ContextItem) error
	// GetContextItem returns nil, nil when the item does not exist.
	GetContextItem(ctx context.Context, id string) (*model.ContextItem, error)
	UpdateContextItem(ctx context.Context, item model.ContextItem) error
	// ListContextItems returns a project's items ordered by last_used desc
	// (unset last), then usage_count desc, then created_at desc.
	ListContextItems(ctx context.Context, projectID string) ([]model.ContextItem, error)
	// BumpContextUsage atomically increments usage_count and sets last_used.
	BumpContextUsage(ctx context.Context, id string, usedAt time.Time) error
	// SearchContextItems matches query case-insensitively against name and
	// content.
	SearchContextItems(ctx context.Context, projectID, query string) ([]model.ContextItem, error)

	CreateContextRule(ctx context.Context, rule model.ContextRule) error
	// ListContextRules returns a project's rules in stored order.
	ListContextRules(ctx context.Context, projectID string) ([]model.ContextRule, error)
}

// EventStore appends audit records. The core never reads them back.
type EventStore interface {
	AppendEvent(ctx context.Context, eventType, operationID string, payload any) error
}

// SnapshotStore persists git snapshot references.
type SnapshotStore interface {
	CreateSnapshotRecord(ctx context.Context, s model.Snapshot) error
	// GetSnapshot returns nil, nil when the snapshot does not exist.
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	// ListSnapshots returns a project's snapshots, newest first, capped at limit.
	ListSnapshots(ctx context.Context, projectID string, limit int) ([]model.Snapshot, error)
}

// Store is the full record-store surface the application wires together.
type Store interface {
	ProjectStore
	AgentStore
	OperationStore
	ContextStore
	EventStore
	SnapshotStore
	Close() error
}
