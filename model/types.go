// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"time"
)

// Cents is a fixed-point currency amount in US cents.
// All budget arithmetic happens in cents so that rounding is explicit.
type Cents int64

// String formats the amount as dollars, e.g. "$2.50".
func (c Cents) String() string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}

// ToolType identifies an execution backend.
type ToolType string

const (
	ToolClaudeCode   ToolType = "claude_code"
	ToolOpenAIAPI    ToolType = "openai_api"
	ToolAnthropicAPI ToolType = "anthropic_api"
	ToolGeminiAPI    ToolType = "gemini_api"
	ToolWebChat      ToolType = "web_chat"
)

// ParseToolType validates a tool name.
func ParseToolType(s string) (ToolType, error) {
	switch ToolType(s) {
	case ToolClaudeCode, ToolOpenAIAPI, ToolAnthropicAPI, ToolGeminiAPI, ToolWebChat:
		return ToolType(s), nil
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	StatusPendingApproval OperationStatus = "pending_approval"
	StatusApproved        OperationStatus = "approved"
	StatusRunning         OperationStatus = "running"
	StatusComplete        OperationStatus = "complete"
	StatusFailed          OperationStatus = "failed"
	StatusCancelled       OperationStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s OperationStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// ContextType classifies a context item.
type ContextType string

const (
	ContextDocument      ContextType = "document"
	ContextCode          ContextType = "code"
	ContextPrompt        ContextType = "prompt"
	ContextSpecification ContextType = "specification"
)

// ParseContextType validates a context item type.
func ParseContextType(s string) (ContextType, error) {
	switch ContextType(s) {
	case ContextDocument, ContextCode, ContextPrompt, ContextSpecification:
		return ContextType(s), nil
	}
	return "", fmt.Errorf("unknown context type %q", s)
}

// RuleAction is what a context rule does when it matches.
type RuleAction string

const (
	RuleAutoInclude RuleAction = "auto_include"
	RuleSuggest     RuleAction = "suggest"
	RuleExclude     RuleAction = "exclude"
)

// ParseRuleAction validates a rule action.
func ParseRuleAction(s string) (RuleAction, error) {
	switch RuleAction(s) {
	case RuleAutoInclude, RuleSuggest, RuleExclude:
		return RuleAction(s), nil
	}
	return "", fmt.Errorf("unknown rule action %q", s)
}

// Project owns a budget and a tree of work.
// BudgetSpent only ever grows, and only by committed operation cost.
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       ProjectStatus `json:"status"`
	CurrentPhase string        `json:"current_phase,omitempty"`
	BudgetLimit  Cents         `json:"budget_limit"`
	BudgetSpent  Cents         `json:"budget_spent"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Agent is a named worker persona with rolling performance counters.
type Agent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Capability      string    `json:"capability"`
	BasePrompt      string    `json:"base_prompt"`
	SuccessRate     int       `json:"success_rate"`
	TotalOperations int       `json:"total_operations"`
	CreatedAt       time.Time `json:"created_at"`
}

// Operation is one unit of delegated agent work tracked through the
// approval-and-execution lifecycle.
//
// ActualCost is set exactly when Status is complete; ErrorMessage is set
// exactly when Status is failed.
type Operation struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	AgentID      string          `json:"agent_id"`
	Task         string          `json:"task"`
	Tool         ToolType        `json:"tool"`
	Status       OperationStatus `json:"status"`
	CostEstimate Cents           `json:"cost_estimate"`
	ActualCost   *Cents          `json:"actual_cost,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ContextIDs   []string        `json:"context_ids,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ContextItem is a named piece of reusable project knowledge.
// Tokens is always derived from Content by the context manager.
type ContextItem struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"project_id"`
	Name       string      `json:"name"`
	Type       ContextType `json:"type"`
	Content    string      `json:"content"`
	FilePath   string      `json:"file_path,omitempty"`
	Tokens     int         `json:"tokens"`
	UsageCount int         `json:"usage_count"`
	LastUsed   *time.Time  `json:"last_used,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ContextRule forces inclusion or exclusion of a context item for
// matching tasks or agents. Rules are pure filters with no mutable state.
type ContextRule struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Pattern       string     `json:"pattern,omitempty"`
	Action        RuleAction `json:"action"`
	ContextItemID string     `json:"context_item_id,omitempty"`
	AgentID       string     `json:"agent_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EventEntry is an append-only audit record. The core only ever writes these.
type EventEntry struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	OperationID string    `json:"operation_id,omitempty"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot references a git commit capturing a project's file tree.
type Snapshot struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	CommitHash  string    `json:"commit_hash"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// OperationResult is the normalized outcome shape every backend produces.
type OperationResult struct {
	Output   string        `json:"output"`
	Cost     Cents         `json:"cost"`
	Duration time.Duration `json:"duration"`
}
