// Application wiring for CLI commands.
//
// Information Hiding:
// - Component construction order hidden
// - Storage lifecycle hidden
// - Notification transport selection hidden

package cli

import (
	"fmt"

	"github.com/forgeworks/forge/backend"
	"github.com/forgeworks/forge/config"
	"github.com/forgeworks/forge/contextmgr"
	"github.com/forgeworks/forge/gitsnap"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/orchestrator"
	"github.com/forgeworks/forge/storage"
	"github.com/forgeworks/forge/token"
)

// App holds the wired application components shared by all commands.
type App struct {
	Settings   config.Settings
	Store      storage.Store
	Contexts   *contextmgr.Manager
	Dispatcher *backend.Dispatcher
	Snapshots  *gitsnap.Manager
	Operations *orchestrator.Manager
	Events     *notify.Emitter
}

// NewApp opens storage and wires the full component graph. notifier
// receives every emitted event; pass notify.Nop{} for command-line use and
// a websocket hub when serving.
func NewApp(settings config.Settings, notifier notify.Notifier) (*App, error) {
	store, err := storage.OpenSqlite(settings.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	events := notify.NewEmitter(notifier)
	contexts := contextmgr.NewManager(store, token.NewCounter(), events)
	dispatcher := backend.NewDispatcher(backend.Config{
		ClaudeCodePath:  settings.Tools.ClaudeCodePath,
		ProjectsPath:    settings.Storage.ProjectsPath,
		OpenAIAPIKey:    settings.Tools.OpenAIKey,
		OpenAIModel:     settings.Tools.OpenAIModel,
		AnthropicAPIKey: settings.Tools.AnthropicKey,
		AnthropicModel:  settings.Tools.AnthropicModel,
		GeminiAPIKey:    settings.Tools.GeminiKey,
		GeminiModel:     settings.Tools.GeminiModel,
		Temperature:     float32(settings.Tools.Temperature),
		MaxOutputTokens: settings.Tools.MaxOutputTokens,
	}, events, store, store, contexts)
	snapshots := gitsnap.NewManager(store, events, settings.Storage.ProjectsPath)
	operations := orchestrator.NewManager(store, contexts, dispatcher, snapshots, events, settings.Server.Workers)

	return &App{
		Settings:   settings,
		Store:      store,
		Contexts:   contexts,
		Dispatcher: dispatcher,
		Snapshots:  snapshots,
		Operations: operations,
		Events:     events,
	}, nil
}

// Close drains execution workers and closes storage.
func (a *App) Close() error {
	a.Operations.Close()
	return a.Store.Close()
}
