package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Provider types accepted in configuration.
const (
	TypeOpenAI      = "openai"
	TypeAzureOpenAI = "azure-openai"
	TypeOpenRouter  = "openrouter"
	TypeGemini      = "gemini"
	TypeMock        = "mock"
)

// Registry holds named LLM clients and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	llmClients map[string]LLMClient
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients: make(map[string]LLMClient),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	if r.logger != nil {
		r.logger.Debug("registered LLM client", "name", name, "client", client.Name())
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// Close releases clients that hold connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, client := range r.llmClients {
		if rl, ok := client.(*RateLimitedClient); ok {
			client = rl.Unwrap()
		}
		if closer, ok := client.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", name, err)
			}
		}
	}
	return firstErr
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.LLMProviderCfg with resolved secrets.
type LLMProviderConfig struct {
	Type       string // "openai", "azure-openai", "openrouter", "gemini", "mock"
	Model      string // Model name, or deployment name on Azure
	APIKey     string // Resolved API key
	Endpoint   string // Azure endpoint or OpenAI-compatible base URL
	APIVersion string // Azure API version
	RateLimit  int    // Requests per minute; 0 disables throttling
	Timeout    time.Duration
	Enabled    bool
}

// NewRegistryFromConfig creates a registry with the enabled providers.
// Providers missing required settings are skipped with a warning.
func NewRegistryFromConfig(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	r := NewRegistry()
	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.Enabled {
			continue
		}
		client, err := createLLMClient(ctx, provCfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		if client == nil {
			r.logger.Warn("skipping provider with missing credentials", "name", name, "type", provCfg.Type)
			continue
		}
		if provCfg.RateLimit > 0 {
			client = NewRateLimitedClient(client, provCfg.RateLimit)
		}
		r.llmClients[name] = client
	}
	return r, nil
}

// createLLMClient returns nil, nil when credentials are absent.
func createLLMClient(ctx context.Context, cfg LLMProviderConfig) (LLMClient, error) {
	switch cfg.Type {
	case TypeMock:
		return NewMockClient(), nil
	case TypeOpenAI:
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
			Timeout: cfg.Timeout,
		}), nil
	case TypeOpenRouter:
		if cfg.APIKey == "" {
			return nil, nil
		}
		baseURL := cfg.Endpoint
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{
			Name:    OpenRouterName,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
			Timeout: cfg.Timeout,
		}), nil
	case TypeAzureOpenAI:
		if cfg.Endpoint == "" {
			return nil, nil
		}
		azCfg := OpenAIConfig{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			AzureEndpoint:   cfg.Endpoint,
			AzureAPIVersion: cfg.APIVersion,
			Timeout:         cfg.Timeout,
		}
		if cfg.APIKey == "" {
			// No key: authenticate through the environment, managed
			// identity or the Azure CLI login.
			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("azure credential: %w", err)
			}
			azCfg.AzureCredential = cred
		}
		return NewOpenAIClient(azCfg), nil
	case TypeGemini:
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
