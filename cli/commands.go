// Command execution for CLI commands.
//
// Information Hiding:
// - Output formatting hidden
// - Money and enum parsing hidden

package cli

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/backend"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/orchestrator"
)

// CreateProject registers a project with a budget limit given in dollars,
// and initializes its git working tree.
func CreateProject(ctx context.Context, app *App, name, budget string) error {
	limit, err := parseDollars(budget)
	if err != nil {
		return fmt.Errorf("invalid budget %q: %w", budget, err)
	}

	now := time.Now().UTC()
	project := model.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      model.ProjectActive,
		BudgetLimit: limit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := app.Store.CreateProject(ctx, project); err != nil {
		return err
	}
	if err := app.Snapshots.EnsureRepo(ctx, project.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: git init failed: %v\n", err)
	}

	fmt.Printf("Created project %s (%s, budget %s)\n", project.Name, project.ID, project.BudgetLimit)
	return nil
}

// ListProjects prints all projects with their budget position.
func ListProjects(ctx context.Context, app *App) error {
	projects, err := app.Store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Printf("%s  %-20s %-8s spent %s of %s\n", p.ID, p.Name, p.Status, p.BudgetSpent, p.BudgetLimit)
	}
	return nil
}

// CreateAgent registers an agent profile.
func CreateAgent(ctx context.Context, app *App, name, capability, basePrompt string) error {
	agent := model.Agent{
		ID:          uuid.NewString(),
		Name:        name,
		Capability:  capability,
		BasePrompt:  basePrompt,
		SuccessRate: 100,
		CreatedAt:   time.Now().UTC(),
	}
	if err := app.Store.CreateAgent(ctx, agent); err != nil {
		return err
	}
	fmt.Printf("Created agent %s (%s)\n", agent.Name, agent.ID)
	return nil
}

// ListAgents prints all agent profiles with their track record.
func ListAgents(ctx context.Context, app *App) error {
	agents, err := app.Store.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		fmt.Printf("%s  %-22s %-40s %d ops, %d%% success\n", a.ID, a.Name, a.Capability, a.TotalOperations, a.SuccessRate)
	}
	return nil
}

// CreateOperation submits a new operation for approval.
func CreateOperation(ctx context.Context, app *App, projectID, agentID, task, tool string, contextIDs []string) error {
	toolType, err := model.ParseToolType(tool)
	if err != nil {
		return err
	}

	op, err := app.Operations.Create(ctx, orchestrator.CreateInput{
		ProjectID:  projectID,
		AgentID:    agentID,
		Task:       task,
		Tool:       toolType,
		ContextIDs: contextIDs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created operation %s (%s, estimated %s) awaiting approval\n", op.ID, op.Tool, op.CostEstimate)
	return nil
}

// ApproveOperation approves an operation and, when run is set, hands it to
// the execution workers. App.Close drains the pool, so a queued execution
// finishes before the process exits.
func ApproveOperation(ctx context.Context, app *App, operationID string, run bool) error {
	op, err := app.Operations.Approve(ctx, operationID)
	if err != nil {
		return err
	}
	fmt.Printf("Approved operation %s\n", op.ID)

	if run {
		app.Operations.EnqueueExecution(op.ID)
		fmt.Printf("Queued operation %s for execution\n", op.ID)
	}
	return nil
}

// ExecuteOperation runs an approved operation and prints its result.
func ExecuteOperation(ctx context.Context, app *App, operationID string) error {
	result, err := app.Operations.Execute(ctx, operationID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n\nCost: %s  Duration: %s\n", result.Output, result.Cost, result.Duration.Round(time.Millisecond))
	return nil
}

// CancelOperation cancels an operation that has not started executing.
func CancelOperation(ctx context.Context, app *App, operationID string) error {
	op, err := app.Operations.Cancel(ctx, operationID)
	if err != nil {
		return err
	}
	fmt.Printf("Cancelled operation %s\n", op.ID)
	return nil
}

// ImportResponse completes a web_chat operation with a manually pasted
// response.
func ImportResponse(ctx context.Context, app *App, operationID, response, additionalContext string) error {
	result, err := app.Dispatcher.ImportWebChatResponse(ctx, operationID, backend.ImportPayload{
		Response:          response,
		AdditionalContext: additionalContext,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Imported response for operation %s (%d bytes)\n", operationID, len(result.Output))
	return nil
}

// ListOperations prints a project's operations, newest first.
func ListOperations(ctx context.Context, app *App, projectID string) error {
	ops, err := app.Operations.ProjectOperations(ctx, projectID)
	if err != nil {
		return err
	}
	for _, op := range ops {
		printOperation(op)
	}
	return nil
}

// PendingApprovals prints operations awaiting approval, oldest first.
func PendingApprovals(ctx context.Context, app *App) error {
	ops, err := app.Operations.PendingApprovals(ctx)
	if err != nil {
		return err
	}
	for _, op := range ops {
		printOperation(op)
	}
	return nil
}

// AddContext stores a context item, reading content from filePath when
// content is empty.
func AddContext(ctx context.Context, app *App, projectID, name, itemType, content, filePath string) error {
	parsed, err := model.ParseContextType(itemType)
	if err != nil {
		return err
	}
	if content == "" && filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", filePath, err)
		}
		content = string(data)
	}

	item, err := app.Contexts.CreateItem(ctx, projectID, name, parsed, content, filePath)
	if err != nil {
		return err
	}
	fmt.Printf("Added context item %s (%s, %d tokens)\n", item.Name, item.ID, item.Tokens)
	return nil
}

// AddRule stores a context selection rule.
func AddRule(ctx context.Context, app *App, projectID, pattern, action, contextItemID, agentID string) error {
	parsed, err := model.ParseRuleAction(action)
	if err != nil {
		return err
	}

	rule, err := app.Contexts.CreateRule(ctx, projectID, pattern, parsed, contextItemID, agentID)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s rule %s for pattern %q\n", rule.Action, rule.ID, rule.Pattern)
	return nil
}

// SearchContext prints context items matching a query.
func SearchContext(ctx context.Context, app *App, projectID, query string) error {
	items, err := app.Contexts.Search(ctx, projectID, query)
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%s  %-30s %-12s %d tokens, used %d times\n", item.ID, item.Name, item.Type, item.Tokens, item.UsageCount)
	}
	return nil
}

// ContextStats prints a project's context inventory summary.
func ContextStats(ctx context.Context, app *App, projectID string) error {
	stats, err := app.Contexts.Stats(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("Items: %d  Tokens: %d  Average: %d\n", stats.TotalItems, stats.TotalTokens, stats.AverageTokens)
	for itemType, count := range stats.ByType {
		fmt.Printf("  %-12s %d\n", itemType, count)
	}
	if len(stats.MostUsed) > 0 {
		fmt.Println("Most used:")
		for _, item := range stats.MostUsed {
			fmt.Printf("  %-30s %d times\n", item.Name, item.UsageCount)
		}
	}
	return nil
}

// CreateSnapshot captures the project's current file tree.
func CreateSnapshot(ctx context.Context, app *App, projectID, description string) error {
	id, err := app.Snapshots.CreateSnapshot(ctx, projectID, description, "")
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Println("Nothing to snapshot")
		return nil
	}
	fmt.Printf("Created snapshot %s\n", id)
	return nil
}

// Rollback restores the project's file tree to a snapshot.
func Rollback(ctx context.Context, app *App, snapshotID string) error {
	if err := app.Snapshots.Rollback(ctx, snapshotID); err != nil {
		return err
	}
	fmt.Printf("Rolled back to snapshot %s\n", snapshotID)
	return nil
}

// ProjectStatus prints the git tree status and recent snapshots.
func ProjectStatus(ctx context.Context, app *App, projectID string) error {
	status, err := app.Snapshots.Status(ctx, projectID)
	if err != nil {
		return err
	}
	fmt.Printf("Branch: %s  Changed files: %d\n", status.Branch, status.ChangedFiles)

	snapshots, err := app.Snapshots.Snapshots(ctx, projectID)
	if err != nil {
		return err
	}
	for _, s := range snapshots {
		fmt.Printf("%s  %s  %s\n", s.ID, s.CreatedAt.Format(time.RFC3339), s.Description)
	}
	return nil
}

func printOperation(op model.Operation) {
	cost := op.CostEstimate.String() + " (est)"
	if op.ActualCost != nil {
		cost = op.ActualCost.String()
	}
	fmt.Printf("%s  %-16s %-12s %-8s %s\n", op.ID, op.Status, op.Tool, cost, truncateTask(op.Task, 60))
}

func truncateTask(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseDollars converts a decimal dollar amount to cents.
func parseDollars(s string) (model.Cents, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return model.Cents(math.Round(f * 100)), nil
}
