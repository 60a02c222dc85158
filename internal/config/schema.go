package config

import (
	"fmt"
	"time"
)

// Config holds docextract configuration.
// Stored at: ./config.yaml or $HOME/.docextract/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Extraction   ExtractionCfg             `mapstructure:"extraction" yaml:"extraction"`
	Watch        WatchCfg                  `mapstructure:"watch" yaml:"watch"`
	OCR          OCRCfg                    `mapstructure:"ocr" yaml:"ocr"`
}

// LLMProviderCfg configures an LLM provider. String fields support ${ENV_VAR} syntax.
type LLMProviderCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`                         // "openai", "azure-openai", "openrouter", "gemini", "mock"
	Model          string `mapstructure:"model" yaml:"model"`                       // Model name, or deployment name on Azure
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`                   // API key
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`       // Azure endpoint or base URL
	APIVersion     string `mapstructure:"api_version" yaml:"api_version,omitempty"` // Azure API version
	RateLimit      int    `mapstructure:"rate_limit" yaml:"rate_limit"`             // Requests per minute (0 = unlimited)
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`   // HTTP timeout
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
	MaxWorkers  int    `mapstructure:"max_workers" yaml:"max_workers"`   // Concurrent extractions in watch mode
}

// ExtractionCfg holds the generation parameters for one extraction.
type ExtractionCfg struct {
	SchemaName            string  `mapstructure:"schema_name" yaml:"schema_name"`
	SchemaDescription     string  `mapstructure:"schema_description" yaml:"schema_description"`
	Strict                bool    `mapstructure:"strict" yaml:"strict"`
	MaxOutputTokens       int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature           float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP                  float64 `mapstructure:"top_p" yaml:"top_p"`
	Validate              bool    `mapstructure:"validate" yaml:"validate"`                               // Check replies against the schema locally
	NullObliviousNullable bool    `mapstructure:"null_oblivious_nullable" yaml:"null_oblivious_nullable"` // Unannotated fields admit null
	TimeoutSeconds        int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`                 // Per call, 0 = none
	PromptsDir            string  `mapstructure:"prompts_dir" yaml:"prompts_dir"`                         // Prompt override directory
}

// WatchCfg configures the watch command.
type WatchCfg struct {
	Extensions     []string `mapstructure:"extensions" yaml:"extensions"`           // Files to pick up
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`           // Empty = next to the source
	DebounceMillis int      `mapstructure:"debounce_millis" yaml:"debounce_millis"` // Quiet period before a file is processed
	LoadAttempts   int      `mapstructure:"load_attempts" yaml:"load_attempts"`     // Reads of a file still being copied
}

// OCRCfg configures the OCR fallback for PDFs without a text layer.
// String fields support ${ENV_VAR} syntax.
type OCRCfg struct {
	Type           string `mapstructure:"type" yaml:"type"` // "mistral"
	Model          string `mapstructure:"model" yaml:"model"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
}

// Timeout returns the per-call timeout.
func (e ExtractionCfg) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Debounce returns the quiet period before a file is processed.
func (w WatchCfg) Debounce() time.Duration {
	return time.Duration(w.DebounceMillis) * time.Millisecond
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Validate checks value ranges. Provider credentials are checked when the
// registry is built.
func (c *Config) Validate() error {
	if c.Defaults.LLMProvider != "" {
		if _, ok := c.LLMProviders[c.Defaults.LLMProvider]; !ok {
			return fmt.Errorf("default llm_provider %q is not configured", c.Defaults.LLMProvider)
		}
	}
	e := c.Extraction
	switch {
	case e.SchemaName == "":
		return fmt.Errorf("extraction.schema_name is required")
	case e.MaxOutputTokens < 0:
		return fmt.Errorf("extraction.max_output_tokens must be >= 0, got %d", e.MaxOutputTokens)
	case e.Temperature < 0 || e.Temperature > 2:
		return fmt.Errorf("extraction.temperature must be in [0,2], got %v", e.Temperature)
	case e.TopP < 0 || e.TopP > 1:
		return fmt.Errorf("extraction.top_p must be in [0,1], got %v", e.TopP)
	case e.TimeoutSeconds < 0:
		return fmt.Errorf("extraction.timeout_seconds must be >= 0, got %d", e.TimeoutSeconds)
	}
	if c.Defaults.MaxWorkers < 1 {
		return fmt.Errorf("defaults.max_workers must be >= 1, got %d", c.Defaults.MaxWorkers)
	}
	if c.Watch.LoadAttempts < 1 {
		return fmt.Errorf("watch.load_attempts must be >= 1, got %d", c.Watch.LoadAttempts)
	}
	if c.Watch.DebounceMillis < 0 {
		return fmt.Errorf("watch.debounce_millis must be >= 0, got %d", c.Watch.DebounceMillis)
	}
	if c.OCR.TimeoutSeconds < 0 {
		return fmt.Errorf("ocr.timeout_seconds must be >= 0, got %d", c.OCR.TimeoutSeconds)
	}
	return nil
}
