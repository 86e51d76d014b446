package config

import (
	"os"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	os.Unsetenv("FORGE_DB_PATH")
	os.Unsetenv("FORGE_WORKERS")

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Storage.DatabasePath != "data/forge.db" {
		t.Errorf("expected default db path, got %q", settings.Storage.DatabasePath)
	}
	if settings.Server.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", settings.Server.Workers)
	}
	if settings.Tools.OpenAIModel == "" {
		t.Error("expected non-empty default openai model")
	}
}

func TestNewOverrides(t *testing.T) {
	original := os.Getenv("FORGE_WORKERS")
	os.Setenv("FORGE_WORKERS", "8")
	defer os.Setenv("FORGE_WORKERS", original)

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Server.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", settings.Server.Workers)
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	original := os.Getenv("FORGE_WORKERS")
	os.Setenv("FORGE_WORKERS", "not-a-number")
	defer os.Setenv("FORGE_WORKERS", original)

	_, err := New()
	if err == nil {
		t.Error("expected error for invalid FORGE_WORKERS")
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Setenv("OPENAI_API_KEY", "test-key")
	defer os.Setenv("OPENAI_API_KEY", original)

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)

	_, err := APIKeyFor("anthropic")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) == 0 {
		t.Error("expected at least one supported provider")
	}
}
