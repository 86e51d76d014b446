package backend

import (
	"context"
	"testing"
	"time"

	"github.com/forgeworks/forge/contextmgr"
	"github.com/forgeworks/forge/fault"
	"github.com/forgeworks/forge/model"
	"github.com/forgeworks/forge/notify"
	"github.com/forgeworks/forge/storage"
	"github.com/forgeworks/forge/token"
)

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *storage.SqliteStore) {
	t.Helper()
	store, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	events := notify.NewEmitter(nil)
	contexts := contextmgr.NewManager(store, token.NewCounter(), events)
	return NewDispatcher(cfg, events, store, store, contexts), store
}

func TestExecuteUnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t, Config{})

	op := model.Operation{ID: "op1", Tool: model.ToolType("telepathy")}
	_, err := d.Execute(context.Background(), op, model.Agent{}, "")
	if !fault.IsKind(err, fault.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUserPrompt(t *testing.T) {
	got := userPrompt("the context", "the task")
	want := "Context:\nthe context\n\nTask: the task"
	if got != want {
		t.Errorf("prompt mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestUsageCost(t *testing.T) {
	cases := []struct {
		name       string
		tool       model.ToolType
		prompt     int64
		completion int64
		want       model.Cents
	}{
		{"openai", model.ToolOpenAIAPI, 1000, 500, 6},
		{"anthropic", model.ToolAnthropicAPI, 10000, 2000, 6},
		{"gemini cheap", model.ToolGeminiAPI, 1000, 1000, 0},
		{"gemini large", model.ToolGeminiAPI, 1000000, 1000000, 280},
		{"zero usage", model.ToolOpenAIAPI, 0, 0, 0},
		{"unpriced tool", model.ToolClaudeCode, 1000, 1000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := usageCost(tc.tool, tc.prompt, tc.completion); got != tc.want {
				t.Errorf("expected %d cents, got %d", tc.want, got)
			}
		})
	}
}

func TestUsageCostRounding(t *testing.T) {
	// 100 prompt tokens at 3000 cents/M is 0.3 cents: rounds to 0.
	if got := usageCost(model.ToolOpenAIAPI, 100, 0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	// 200 prompt tokens is 0.6 cents: rounds to 1.
	if got := usageCost(model.ToolOpenAIAPI, 200, 0); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestDurationSince(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	op := model.Operation{StartedAt: &started}

	if got := durationSince(op, time.Now()); got < 2*time.Second {
		t.Errorf("expected at least 2s from started_at, got %s", got)
	}

	fallback := time.Now().Add(-time.Second)
	if got := durationSince(model.Operation{}, fallback); got < time.Second {
		t.Errorf("expected at least 1s from fallback, got %s", got)
	}
}
