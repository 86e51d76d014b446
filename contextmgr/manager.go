// Package contextmgr owns context items and rules and selects the slice of
// project knowledge handed to each operation.
//
// Information Hiding:
// - Token accounting hidden behind the counter
// - Rule evaluation order and exclusion semantics internal
// - Usage statistics updated as a side effect of selection
package contextmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/storage"
	"github.com/forgeworks/forge/token"
)

// Maximum context windows per tool, in tokens. Unknown tools get a small
// conservative default.
var toolMaxTokens = map[model.ToolType]int{
	model.ToolClaudeCode:   100000,
	model.ToolOpenAIAPI:    120000,
	model.ToolWebChat:      150000,
	model.ToolAnthropicAPI: 200000,
	model.ToolGeminiAPI:    250000,
}

const defaultMaxTokens = 50000

// headroomPercent of the window stays free for agent instructions and task
// text, which are added outside this selection.
const headroomPercent = 80

// MaxTokensForTool returns the context window ceiling for a tool.
func MaxTokensForTool(tool model.ToolType) int {
	if max, ok := toolMaxTokens[tool]; ok {
		return max
	}
	return defaultMaxTokens
}

// Manager creates, selects and reports on context items. All item writes go
// through the manager so token counts are always derived from content.
type Manager struct {
	store   storage.ContextStore
	counter *token.Counter
	events  *notify.Emitter
	now     func() time.Time
}

// NewManager creates a context manager.
func NewManager(store storage.ContextStore, counter *token.Counter, events *notify.Emitter) *Manager {
	return &Manager{
		store:   store,
		counter: counter,
		events:  events,
		now:     time.Now,
	}
}

// CreateItem counts tokens for content, persists the item and pushes the
// refreshed project context to the observer.
func (m *Manager) CreateItem(ctx context.Context, projectID, name string, itemType model.ContextType, content, filePath string) (model.ContextItem, error) {
	if name == "" {
		return model.ContextItem{}, fault.Validation("context item name is required")
	}
	if _, err := model.ParseContextType(string(itemType)); err != nil {
		return model.ContextItem{}, fault.Validation("invalid context type %q", itemType)
	}

	now := m.now().UTC()
	item := model.ContextItem{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Type:      itemType,
		Content:   content,
		FilePath:  filePath,
		Tokens:    m.counter.Count(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateContextItem(ctx, item); err != nil {
		return model.ContextItem{}, fmt.Errorf("create context item: %w", err)
	}

	m.notifyContextUpdate(ctx, projectID)
	return item, nil
}

// UpdateItem replaces an item's content, recomputing its token count.
func (m *Manager) UpdateItem(ctx context.Context, id, content string) (model.ContextItem, error) {
	item, err := m.store.GetContextItem(ctx, id)
	if err != nil {
		return model.ContextItem{}, fmt.Errorf("load context item: %w", err)
	}
	if item == nil {
		return model.ContextItem{}, fault.NotFound("context item", id)
	}

	item.Content = content
	item.Tokens = m.counter.Count(content)
	item.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateContextItem(ctx, *item); err != nil {
		return model.ContextItem{}, fmt.Errorf("update context item: %w", err)
	}

	m.notifyContextUpdate(ctx, item.ProjectID)
	return *item, nil
}

// CreateRule persists a context rule. Rules are evaluated in creation order.
func (m *Manager) CreateRule(ctx context.Context, projectID, pattern string, action model.RuleAction, contextItemID, agentID string) (model.ContextRule, error) {
	if _, err := model.ParseRuleAction(string(action)); err != nil {
		return model.ContextRule{}, fault.Validation("invalid rule action %q", action)
	}

	rule := model.ContextRule{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Pattern:       pattern,
		Action:        action,
		ContextItemID: contextItemID,
		AgentID:       agentID,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.store.CreateContextRule(ctx, rule); err != nil {
		return model.ContextRule{}, fmt.Errorf("create context rule: %w", err)
	}
	return rule, nil
}

// ProjectContext returns a project's items in priority order.
func (m *Manager) ProjectContext(ctx context.Context, projectID string) ([]model.ContextItem, error) {
	return m.store.ListContextItems(ctx, projectID)
}

// Search matches query case-insensitively against item names and content.
func (m *Manager) Search(ctx context.Context, projectID, query string) ([]model.ContextItem, error) {
	return m.store.SearchContextItems(ctx, projectID, query)
}

// GatherContext selects and renders the context handed to an operation.
//
// Rule-forced and explicitly requested items are always present; the
// remaining candidates are packed best-effort into 80% of the tool's
// window. Every selected item gets a usage-count and last-used update.
func (m *Manager) GatherContext(ctx context.Context, op model.Operation) (string, error) {
	items, err := m.store.ListContextItems(ctx, op.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load context items: %w", err)
	}
	rules, err := m.store.ListContextRules(ctx, op.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load context rules: %w", err)
	}

	forced, excluded := applyRules(items, rules, op)

	// Explicit augmentation: requested ids join the forced set unless a
	// matching exclusion rule already named them.
	inForced := make(map[string]bool, len(forced))
	for _, item := range forced {
		inForced[item.ID] = true
	}
	byID := make(map[string]model.ContextItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, id := range op.ContextIDs {
		if item, ok := byID[id]; ok && !excluded[id] && !inForced[id] {
			forced = append(forced, item)
			inForced[id] = true
		}
	}

	// Remaining candidates are budget-trimmed; forced items are not.
	budget := MaxTokensForTool(op.Tool) * headroomPercent / 100
	var candidates []model.ContextItem
	for _, item := range items {
		if !inForced[item.ID] && !excluded[item.ID] {
			candidates = append(candidates, item)
		}
	}
	selected := append(forced, packCandidates(candidates, budget)...)

	usedAt := m.now().UTC()
	for _, item := range selected {
		if err := m.store.BumpContextUsage(ctx, item.ID, usedAt); err != nil {
			// Partial usage updates stand; the caller retries, nothing
			// is rolled back.
			return "", fmt.Errorf("update context usage: %w", err)
		}
	}

	return renderContext(selected), nil
}

// applyRules evaluates rules in stored order. An exclusion only shields
// against auto-includes evaluated after it; it is never retroactive, and
// once recorded it is irrevocable for this pass.
func applyRules(items []model.ContextItem, rules []model.ContextRule, op model.Operation) ([]model.ContextItem, map[string]bool) {
	byID := make(map[string]model.ContextItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var forced []model.ContextItem
	included := make(map[string]bool)
	excluded := make(map[string]bool)
	taskLower := strings.ToLower(op.Task)

	include := func(itemID string) {
		item, ok := byID[itemID]
		if !ok || excluded[itemID] || included[itemID] {
			return
		}
		forced = append(forced, item)
		included[itemID] = true
	}

	for _, rule := range rules {
		if rule.Pattern != "" && strings.Contains(taskLower, strings.ToLower(rule.Pattern)) {
			switch rule.Action {
			case model.RuleExclude:
				if rule.ContextItemID != "" {
					excluded[rule.ContextItemID] = true
				}
			case model.RuleAutoInclude:
				if rule.ContextItemID != "" {
					include(rule.ContextItemID)
				}
			}
			// suggest rules are advisory; they never change the selection.
		}

		if rule.AgentID != "" && rule.AgentID == op.AgentID && rule.Action == model.RuleAutoInclude && rule.ContextItemID != "" {
			include(rule.ContextItemID)
		}
	}

	return forced, excluded
}

// packCandidates sorts candidates by recency, then usage, then size, and
// accepts them greedily within budget. A rejection does not stop the scan:
// later, smaller items are still attempted.
func packCandidates(candidates []model.ContextItem, budget int) []model.ContextItem {
	sorted := make([]model.ContextItem, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.LastUsed != nil && b.LastUsed != nil:
			if !a.LastUsed.Equal(*b.LastUsed) {
				return a.LastUsed.After(*b.LastUsed)
			}
		case a.LastUsed != nil:
			return true
		case b.LastUsed != nil:
			return false
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.Tokens < b.Tokens
	})

	var accepted []model.ContextItem
	total := 0
	for _, item := range sorted {
		if total+item.Tokens <= budget {
			accepted = append(accepted, item)
			total += item.Tokens
		}
	}
	return accepted
}

// renderContext formats selected items as named blocks.
func renderContext(items []model.ContextItem) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		blocks[i] = fmt.Sprintf("### %s\n\n%s", item.Name, item.Content)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func (m *Manager) notifyContextUpdate(ctx context.Context, projectID string) {
	if m.events == nil {
		return
	}
	items, err := m.store.ListContextItems(ctx, projectID)
	if err != nil {
		// The refreshed list is a courtesy push; a load failure here must
		// not fail the write that triggered it.
		return
	}
	m.events.ContextUpdate(projectID, items)
}
