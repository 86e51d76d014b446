// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific API key and model lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds all application configuration.
type Settings struct {
	Storage StorageConfig
	Server  ServerConfig
	Tools   ToolConfig
}

// StorageConfig holds database and workspace paths.
type StorageConfig struct {
	DatabasePath string
	ProjectsPath string
}

// ServerConfig holds the notification server and worker pool configuration.
type ServerConfig struct {
	ListenAddr string
	Workers    int
}

// ToolConfig holds execution backend configuration.
type ToolConfig struct {
	ClaudeCodePath  string
	OpenAIKey       string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	GeminiKey       string
	GeminiModel     string
	Temperature     float64
	MaxOutputTokens int
}

// providerInfo holds environment lookup for an API provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// API providers and their environment variables.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// New loads settings from environment variables.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	workers, err := getEnvInt("FORGE_WORKERS", 4)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxOutputTokens, err := getEnvInt("LLM_MAX_OUTPUT_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Storage: StorageConfig{
			DatabasePath: getEnv("FORGE_DB_PATH", "data/forge.db"),
			ProjectsPath: getEnv("FORGE_PROJECTS_PATH", "projects"),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("FORGE_LISTEN_ADDR", ":8090"),
			Workers:    workers,
		},
		Tools: ToolConfig{
			ClaudeCodePath:  getEnv("CLAUDE_CODE_PATH", "claude"),
			OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:     modelFor("openai"),
			AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel:  modelFor("anthropic"),
			GeminiKey:       os.Getenv("GEMINI_API_KEY"),
			GeminiModel:     modelFor("gemini"),
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	}, nil
}

// MustNew loads settings from environment variables.
// Panics on invalid values. Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	info, ok := providers[strings.ToLower(provider)]
	if !ok {
		return "", fmt.Errorf("unknown provider: %q", provider)
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// modelFor returns the model for a provider, checking environment first.
func modelFor(provider string) string {
	info := providers[provider]
	if val := os.Getenv(info.modelEnv); val != "" {
		return val
	}
	return info.defaultModel
}

// SupportedProviders returns the list of API provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
