package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forge/model"
)

// seedAgents are the default agent profiles installed by the seed command.
var seedAgents = []model.Agent{
	{
		Name:       "Lead Engineer",
		Capability: "Full-stack development and architecture",
		BasePrompt: "You are a senior software engineer with expertise in TypeScript, Node.js, React, and system architecture. You write clean, maintainable code following best practices. You consider performance, security, and scalability in your implementations.",
	},
	{
		Name:       "QA Specialist",
		Capability: "Testing and quality assurance",
		BasePrompt: "You are a QA specialist focused on creating comprehensive test suites, identifying edge cases, and ensuring code quality. You write unit tests, integration tests, and help establish testing best practices.",
	},
	{
		Name:       "Designer",
		Capability: "UI/UX design and user experience",
		BasePrompt: "You are a UI/UX designer who creates intuitive, accessible interfaces. You focus on user experience, visual hierarchy, and design systems. You provide detailed design specifications and consider usability in all recommendations.",
	},
	{
		Name:       "Security Specialist",
		Capability: "Security analysis and code review",
		BasePrompt: "You are a security specialist who reviews code for vulnerabilities, implements security best practices, and ensures applications are protected against common attack vectors. You focus on authentication, authorization, data protection, and secure coding practices.",
	},
	{
		Name:       "Documentation Writer",
		Capability: "Technical writing and documentation",
		BasePrompt: "You are a technical writer who creates clear, comprehensive documentation. You write API docs, user guides, and code comments that help developers understand and maintain systems effectively.",
	},
}

// Seed installs the default agent profiles, skipping names that already
// exist.
func Seed(ctx context.Context, app *App) error {
	existing, err := app.Store.ListAgents(ctx)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(existing))
	for _, a := range existing {
		taken[a.Name] = true
	}

	for _, agent := range seedAgents {
		if taken[agent.Name] {
			continue
		}
		agent.ID = uuid.NewString()
		agent.SuccessRate = 100
		agent.CreatedAt = time.Now().UTC()
		if err := app.Store.CreateAgent(ctx, agent); err != nil {
			return fmt.Errorf("seed agent %s: %w", agent.Name, err)
		}
		fmt.Printf("Created agent: %s\n", agent.Name)
	}
	return nil
}
