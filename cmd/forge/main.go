// Package main provides the forge CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/cli"
	"github.com/forgeworks/forge/config"
	"github.com/forgeworks/forge/notify"
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Budget-governed AI agent operation orchestration",
		Long: `Forge coordinates AI agent operations across multiple execution backends.

Every operation carries a cost estimate that is reserved against the project
budget at creation, requires explicit approval, and runs with token-budgeted
context selected from the project's knowledge base. File trees are
snapshotted with git before each execution.`,
	}

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(operationCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp wires the application for a single command invocation.
func withApp(fn func(ctx context.Context, app *cli.App) error) error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	app, err := cli.NewApp(settings, notify.Nop{})
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(context.Background(), app)
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the default agent profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cli.Seed)
		},
	}
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var budget string
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project with a budget limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.CreateProject(ctx, app, args[0], budget)
			})
		},
	}
	create.Flags().StringVar(&budget, "budget", "10.00", "Budget limit in dollars")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects with their budget position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cli.ListProjects)
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent profiles",
	}

	var capability, prompt string
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an agent profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.CreateAgent(ctx, app, args[0], capability, prompt)
			})
		},
	}
	create.Flags().StringVar(&capability, "capability", "", "One-line capability summary")
	create.Flags().StringVar(&prompt, "prompt", "", "Base system prompt")

	list := &cobra.Command{
		Use:   "list",
		Short: "List agent profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cli.ListAgents)
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func operationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op",
		Short: "Manage operations",
	}

	var projectID, agentID, tool string
	var contextIDs []string
	create := &cobra.Command{
		Use:   "create [task]",
		Short: "Submit an operation for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.CreateOperation(ctx, app, projectID, agentID, args[0], tool, contextIDs)
			})
		},
	}
	create.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
	create.Flags().StringVarP(&agentID, "agent", "a", "", "Agent ID")
	create.Flags().StringVarP(&tool, "tool", "t", "claude_code", "Execution backend (claude_code, openai_api, anthropic_api, gemini_api, web_chat)")
	create.Flags().StringSliceVar(&contextIDs, "context", nil, "Context item IDs to force-include")
	create.MarkFlagRequired("project")
	create.MarkFlagRequired("agent")

	var run bool
	approve := &cobra.Command{
		Use:   "approve [operation-id]",
		Short: "Approve a pending operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ApproveOperation(ctx, app, args[0], run)
			})
		},
	}
	approve.Flags().BoolVar(&run, "run", false, "Queue for execution after approval")

	execute := &cobra.Command{
		Use:   "execute [operation-id]",
		Short: "Execute an approved operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ExecuteOperation(ctx, app, args[0])
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel [operation-id]",
		Short: "Cancel an operation that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.CancelOperation(ctx, app, args[0])
			})
		},
	}

	var response, additional string
	importCmd := &cobra.Command{
		Use:   "import-response [operation-id]",
		Short: "Complete a web_chat operation with a pasted response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ImportResponse(ctx, app, args[0], response, additional)
			})
		},
	}
	importCmd.Flags().StringVar(&response, "response", "", "The agent's response text")
	importCmd.Flags().StringVar(&additional, "context", "", "Additional context worth keeping")
	importCmd.MarkFlagRequired("response")

	var listProject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a project's operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ListOperations(ctx, app, listProject)
			})
		},
	}
	list.Flags().StringVarP(&listProject, "project", "p", "", "Project ID")
	list.MarkFlagRequired("project")

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List operations awaiting approval, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cli.PendingApprovals)
		},
	}

	cmd.AddCommand(create, approve, execute, cancel, importCmd, list, pending)
	return cmd
}

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage the project knowledge base",
	}

	var projectID, itemType, content, filePath string
	add := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a context item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.AddContext(ctx, app, projectID, args[0], itemType, content, filePath)
			})
		},
	}
	add.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
	add.Flags().StringVarP(&itemType, "type", "t", "document", "Item type (document, code, prompt, specification)")
	add.Flags().StringVar(&content, "content", "", "Item content")
	add.Flags().StringVar(&filePath, "file", "", "Read content from this file")
	add.MarkFlagRequired("project")

	var ruleProject, action, itemID, agentID string
	rule := &cobra.Command{
		Use:   "rule [pattern]",
		Short: "Add a context selection rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.AddRule(ctx, app, ruleProject, args[0], action, itemID, agentID)
			})
		},
	}
	rule.Flags().StringVarP(&ruleProject, "project", "p", "", "Project ID")
	rule.Flags().StringVar(&action, "action", "auto_include", "Rule action (auto_include, suggest, exclude)")
	rule.Flags().StringVar(&itemID, "item", "", "Context item the rule applies to")
	rule.Flags().StringVar(&agentID, "agent", "", "Restrict the rule to one agent")
	rule.MarkFlagRequired("project")

	var searchProject string
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search context items by name and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.SearchContext(ctx, app, searchProject, args[0])
			})
		},
	}
	search.Flags().StringVarP(&searchProject, "project", "p", "", "Project ID")
	search.MarkFlagRequired("project")

	var statsProject string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show context inventory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ContextStats(ctx, app, statsProject)
			})
		},
	}
	stats.Flags().StringVarP(&statsProject, "project", "p", "", "Project ID")
	stats.MarkFlagRequired("project")

	cmd.AddCommand(add, rule, search, stats)
	return cmd
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage git snapshots",
	}

	var projectID, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the project's file tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.CreateSnapshot(ctx, app, projectID, description)
			})
		},
	}
	create.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
	create.Flags().StringVarP(&description, "message", "m", "Manual snapshot", "Snapshot description")
	create.MarkFlagRequired("project")

	rollback := &cobra.Command{
		Use:   "rollback [snapshot-id]",
		Short: "Restore the file tree to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.Rollback(ctx, app, args[0])
			})
		},
	}

	var statusProject string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show git tree status and recent snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ProjectStatus(ctx, app, statusProject)
			})
		},
	}
	status.Flags().StringVarP(&statusProject, "project", "p", "", "Project ID")
	status.MarkFlagRequired("project")

	cmd.AddCommand(create, rollback, status)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket notification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.New()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = settings.Server.ListenAddr
			}

			hub := notify.NewHub()
			app, err := cli.NewApp(settings, hub)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Serve(ctx, hub, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from FORGE_LISTEN_ADDR)")
	return cmd
}
