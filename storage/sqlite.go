package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forgeworks/forge/model"
)

// SqliteStore implements Store using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_phase TEXT,
			budget_limit INTEGER NOT NULL,
			budget_spent INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			capability TEXT NOT NULL,
			base_prompt TEXT NOT NULL,
			success_rate INTEGER NOT NULL DEFAULT 0,
			total_operations INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			task TEXT NOT NULL,
			tool TEXT NOT NULL,
			status TEXT NOT NULL,
			cost_estimate INTEGER NOT NULL,
			actual_cost INTEGER,
			error_message TEXT,
			context_ids TEXT,
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER,
			FOREIGN KEY (project_id) REFERENCES projects(id),
			FOREIGN KEY (agent_id) REFERENCES agents(id)
		);

		CREATE INDEX IF NOT EXISTS idx_operations_project
		ON operations(project_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_operations_status
		ON operations(status, created_at ASC);

		CREATE TABLE IF NOT EXISTS context_items (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			file_path TEXT,
			tokens INTEGER NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0,
			last_used INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_context_items_project
		ON context_items(project_id);

		CREATE TABLE IF NOT EXISTS context_rules (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			pattern TEXT,
			action TEXT NOT NULL,
			context_item_id TEXT,
			agent_id TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_context_rules_project
		ON context_rules(project_id, seq);

		CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			operation_id TEXT,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			description TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_project
		ON snapshots(project_id, created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Timestamps are stored as unix nanoseconds so ordering is exact.

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func scanNullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Project store

// CreateProject inserts a project row.
func (s *SqliteStore) CreateProject(ctx context.Context, p model.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, status, current_phase, budget_limit, budget_spent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Status), nullableString(p.CurrentPhase),
		int64(p.BudgetLimit), int64(p.BudgetSpent), toNanos(p.CreatedAt), toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject loads a project. Returns nil, nil if not found.
func (s *SqliteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	var status string
	var phase sql.NullString
	var limit, spent, created, updated int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, current_phase, budget_limit, budget_spent, created_at, updated_at
		FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &status, &phase, &limit, &spent, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.Status = model.ProjectStatus(status)
	if phase.Valid {
		p.CurrentPhase = phase.String
	}
	p.BudgetLimit = model.Cents(limit)
	p.BudgetSpent = model.Cents(spent)
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// UpdateProject rewrites a project's mutable fields.
func (s *SqliteStore) UpdateProject(ctx context.Context, p model.Project) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, status = ?, current_phase = ?, budget_limit = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, string(p.Status), nullableString(p.CurrentPhase),
		int64(p.BudgetLimit), toNanos(time.Now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// AddProjectSpend atomically increments budget_spent.
func (s *SqliteStore) AddProjectSpend(ctx context.Context, id string, delta model.Cents) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET budget_spent = budget_spent + ?, updated_at = ? WHERE id = ?`,
		int64(delta), toNanos(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment budget spend: %w", err)
	}
	return nil
}

// ListProjects returns all projects, newest first.
func (s *SqliteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, current_phase, budget_limit, budget_spent, created_at, updated_at
		FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var p model.Project
		var status string
		var phase sql.NullString
		var limit, spent, created, updated int64
		if err := rows.Scan(&p.ID, &p.Name, &status, &phase, &limit, &spent, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Status = model.ProjectStatus(status)
		if phase.Valid {
			p.CurrentPhase = phase.String
		}
		p.BudgetLimit = model.Cents(limit)
		p.BudgetSpent = model.Cents(spent)
		p.CreatedAt = fromNanos(created)
		p.UpdatedAt = fromNanos(updated)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// Agent store

// CreateAgent inserts an agent row.
func (s *SqliteStore) CreateAgent(ctx context.Context, a model.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, capability, base_prompt, success_rate, total_operations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Capability, a.BasePrompt, a.SuccessRate, a.TotalOperations, toNanos(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// GetAgent loads an agent. Returns nil, nil if not found.
func (s *SqliteStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, capability, base_prompt, success_rate, total_operations, created_at
		FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Capability, &a.BasePrompt, &a.SuccessRate, &a.TotalOperations, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	a.CreatedAt = fromNanos(created)
	return &a, nil
}

// UpdateAgentStats writes the rolling counters.
func (s *SqliteStore) UpdateAgentStats(ctx context.Context, id string, totalOperations, successRate int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET total_operations = ?, success_rate = ? WHERE id = ?`,
		totalOperations, successRate, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent stats: %w", err)
	}
	return nil
}

// ListAgents returns all agents in creation order.
func (s *SqliteStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, capability, base_prompt, success_rate, total_operations, created_at
		FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := []model.Agent{}
	for rows.Next() {
		var a model.Agent
		var created int64
		if err := rows.Scan(&a.ID, &a.Name, &a.Capability, &a.BasePrompt, &a.SuccessRate, &a.TotalOperations, &created); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.CreatedAt = fromNanos(created)
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// Operation store

const operationColumns = `id, project_id, agent_id, task, tool, status, cost_estimate,
	actual_cost, error_message, context_ids, created_at, started_at, completed_at`

// CreateOperation inserts an operation row.
func (s *SqliteStore) CreateOperation(ctx context.Context, op model.Operation) error {
	contextIDs, err := marshalContextIDs(op.ContextIDs)
	if err != nil {
		return err
	}
	var actual any
	if op.ActualCost != nil {
		actual = int64(*op.ActualCost)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.ProjectID, op.AgentID, op.Task, string(op.Tool), string(op.Status),
		int64(op.CostEstimate), actual, nullableString(op.ErrorMessage), contextIDs,
		toNanos(op.CreatedAt), nullableTime(op.StartedAt), nullableTime(op.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

// GetOperation loads an operation. Returns nil, nil if not found.
func (s *SqliteStore) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// UpdateOperation rewrites an operation row.
func (s *SqliteStore) UpdateOperation(ctx context.Context, op model.Operation) error {
	contextIDs, err := marshalContextIDs(op.ContextIDs)
	if err != nil {
		return err
	}
	var actual any
	if op.ActualCost != nil {
		actual = int64(*op.ActualCost)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, cost_estimate = ?, actual_cost = ?, error_message = ?,
			context_ids = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		string(op.Status), int64(op.CostEstimate), actual, nullableString(op.ErrorMessage),
		contextIDs, nullableTime(op.StartedAt), nullableTime(op.CompletedAt), op.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	return nil
}

// ListProjectOperations returns a project's operations, newest first.
func (s *SqliteStore) ListProjectOperations(ctx context.Context, projectID string) ([]model.Operation, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE project_id = ? ORDER BY created_at DESC`,
		projectID)
}

// ListPendingApprovals returns pending_approval operations, oldest first.
func (s *SqliteStore) ListPendingApprovals(ctx context.Context) ([]model.Operation, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE status = ? ORDER BY created_at ASC`,
		string(model.StatusPendingApproval))
}

func (s *SqliteStore) queryOperations(ctx context.Context, query string, args ...any) ([]model.Operation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	ops := []model.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*model.Operation, error) {
	var op model.Operation
	var tool, status string
	var estimate, created int64
	var actual, started, completed sql.NullInt64
	var errMsg, contextIDs sql.NullString

	err := row.Scan(&op.ID, &op.ProjectID, &op.AgentID, &op.Task, &tool, &status,
		&estimate, &actual, &errMsg, &contextIDs, &created, &started, &completed)
	if err != nil {
		return nil, err
	}

	op.Tool = model.ToolType(tool)
	op.Status = model.OperationStatus(status)
	op.CostEstimate = model.Cents(estimate)
	if actual.Valid {
		c := model.Cents(actual.Int64)
		op.ActualCost = &c
	}
	if errMsg.Valid {
		op.ErrorMessage = errMsg.String
	}
	if contextIDs.Valid && contextIDs.String != "" {
		if err := json.Unmarshal([]byte(contextIDs.String), &op.ContextIDs); err != nil {
			return nil, fmt.Errorf("invalid context_ids in database: %w", err)
		}
	}
	op.CreatedAt = fromNanos(created)
	op.StartedAt = scanNullableTime(started)
	op.CompletedAt = scanNullableTime(completed)
	return &op, nil
}

func marshalContextIDs(ids []string) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context ids: %w", err)
	}
	return string(data), nil
}

// Context store

const contextItemColumns = `id, project_id, name, type, content, file_path, tokens,
	usage_count, last_used, created_at, updated_at`

// CreateContextItem inserts a context item row.
func (s *SqliteStore) CreateContextItem(ctx context.Context, item model.ContextItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_items (`+contextItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProjectID, item.Name, string(item.Type), item.Content,
		nullableString(item.FilePath), item.Tokens, item.UsageCount,
		nullableTime(item.LastUsed), toNanos(item.CreatedAt), toNanos(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert context item: %w", err)
	}
	return nil
}

// GetContextItem loads a context item. Returns nil, nil if not found.
func (s *SqliteStore) GetContextItem(ctx context.Context, id string) (*model.ContextItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contextItemColumns+` FROM context_items WHERE id = ?`, id)
	item, err := scanContextItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context item: %w", err)
	}
	return item, nil
}

// UpdateContextItem rewrites a context item's content-derived fields.
func (s *SqliteStore) UpdateContextItem(ctx context.Context, item model.ContextItem) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE context_items SET name = ?, type = ?, content = ?, file_path = ?, tokens = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, string(item.Type), item.Content, nullableString(item.FilePath),
		item.Tokens, toNanos(time.Now()), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update context item: %w", err)
	}
	return nil
}

// ListContextItems returns a project's items ordered by last_used desc
// (never-used last), then usage_count desc, then created_at desc.
func (s *SqliteStore) ListContextItems(ctx context.Context, projectID string) ([]model.ContextItem, error) {
	return s.queryContextItems(ctx, `
		SELECT `+contextItemColumns+` FROM context_items
		WHERE project_id = ?
		ORDER BY last_used IS NULL, last_used DESC, usage_count DESC, created_at DESC`,
		projectID)
}

// BumpContextUsage atomically updates usage tracking.
func (s *SqliteStore) BumpContextUsage(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE context_items SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		toNanos(usedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update context usage: %w", err)
	}
	return nil
}

// SearchContextItems matches query case-insensitively against name and content.
func (s *SqliteStore) SearchContextItems(ctx context.Context, projectID, query string) ([]model.ContextItem, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.queryContextItems(ctx, `
		SELECT `+contextItemColumns+` FROM context_items
		WHERE project_id = ? AND (LOWER(name) LIKE ? OR LOWER(content) LIKE ?)
		ORDER BY last_used IS NULL, last_used DESC`,
		projectID, pattern, pattern)
}

func (s *SqliteStore) queryContextItems(ctx context.Context, query string, args ...any) ([]model.ContextItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query context items: %w", err)
	}
	defer rows.Close()

	items := []model.ContextItem{}
	for rows.Next() {
		item, err := scanContextItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating context items: %w", err)
	}
	return items, nil
}

func scanContextItem(row rowScanner) (*model.ContextItem, error) {
	var item model.ContextItem
	var itemType string
	var filePath sql.NullString
	var lastUsed sql.NullInt64
	var created, updated int64

	err := row.Scan(&item.ID, &item.ProjectID, &item.Name, &itemType, &item.Content,
		&filePath, &item.Tokens, &item.UsageCount, &lastUsed, &created, &updated)
	if err != nil {
		return nil, err
	}

	item.Type = model.ContextType(itemType)
	if filePath.Valid {
		item.FilePath = filePath.String
	}
	item.LastUsed = scanNullableTime(lastUsed)
	item.CreatedAt = fromNanos(created)
	item.UpdatedAt = fromNanos(updated)
	return &item, nil
}

// CreateContextRule inserts a rule row. Rules keep their insertion order.
func (s *SqliteStore) CreateContextRule(ctx context.Context, rule model.ContextRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_rules (id, project_id, pattern, action, context_item_id, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.ProjectID, nullableString(rule.Pattern), string(rule.Action),
		nullableString(rule.ContextItemID), nullableString(rule.AgentID), toNanos(rule.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert context rule: %w", err)
	}
	return nil
}

// ListContextRules returns a project's rules in stored order.
func (s *SqliteStore) ListContextRules(ctx context.Context, projectID string) ([]model.ContextRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, pattern, action, context_item_id, agent_id, created_at
		FROM context_rules WHERE project_id = ? ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query context rules: %w", err)
	}
	defer rows.Close()

	rules := []model.ContextRule{}
	for rows.Next() {
		var rule model.ContextRule
		var action string
		var pattern, itemID, agentID sql.NullString
		var created int64
		if err := rows.Scan(&rule.ID, &rule.ProjectID, &pattern, &action, &itemID, &agentID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan context rule: %w", err)
		}
		rule.Action = model.RuleAction(action)
		if pattern.Valid {
			rule.Pattern = pattern.String
		}
		if itemID.Valid {
			rule.ContextItemID = itemID.String
		}
		if agentID.Valid {
			rule.AgentID = agentID.String
		}
		rule.CreatedAt = fromNanos(created)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating context rules: %w", err)
	}
	return rules, nil
}

// Event store

// AppendEvent writes one audit record. Payload is marshaled to JSON.
func (s *SqliteStore) AppendEvent(ctx context.Context, eventType, operationID string, payload any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_log (event_type, operation_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		eventType, nullableString(operationID), string(data), toNanos(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Snapshot store

// CreateSnapshotRecord inserts a snapshot reference row.
func (s *SqliteStore) CreateSnapshotRecord(ctx context.Context, snap model.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, project_id, commit_hash, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.ProjectID, snap.CommitHash, snap.Description, toNanos(snap.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot loads a snapshot reference. Returns nil, nil if not found.
func (s *SqliteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var snap model.Snapshot
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, commit_hash, description, created_at
		FROM snapshots WHERE id = ?`, id).
		Scan(&snap.ID, &snap.ProjectID, &snap.CommitHash, &snap.Description, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.CreatedAt = fromNanos(created)
	return &snap, nil
}

// ListSnapshots returns a project's snapshots, newest first.
func (s *SqliteStore) ListSnapshots(ctx context.Context, projectID string, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, commit_hash, description, created_at
		FROM snapshots WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []model.Snapshot{}
	for rows.Next() {
		var snap model.Snapshot
		var created int64
		if err := rows.Scan(&snap.ID, &snap.ProjectID, &snap.CommitHash, &snap.Description, &created); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.CreatedAt = fromNanos(created)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// Verify SqliteStore implements the full store surface
var _ Store = (*SqliteStore)(nil)
