package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/docextract/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. DOCEXTRACT_EXTRACTION_TEMPERATURE.
const EnvPrefix = "DOCEXTRACT"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config. Without an
// explicit cfgFile, config.yaml is searched for in searchPaths, or in "." and
// $HOME/.docextract when none are given.
func NewManager(cfgFile string, searchPaths ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, searchPaths); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchPaths []string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("llm_providers", defaults.LLMProviders)
	v.SetDefault("defaults.llm_provider", defaults.Defaults.LLMProvider)
	v.SetDefault("defaults.max_workers", defaults.Defaults.MaxWorkers)

	// Scalar defaults are set per key so env vars can override them.
	e := defaults.Extraction
	v.SetDefault("extraction.schema_name", e.SchemaName)
	v.SetDefault("extraction.schema_description", e.SchemaDescription)
	v.SetDefault("extraction.strict", e.Strict)
	v.SetDefault("extraction.max_output_tokens", e.MaxOutputTokens)
	v.SetDefault("extraction.temperature", e.Temperature)
	v.SetDefault("extraction.top_p", e.TopP)
	v.SetDefault("extraction.validate", e.Validate)
	v.SetDefault("extraction.null_oblivious_nullable", e.NullObliviousNullable)
	v.SetDefault("extraction.timeout_seconds", e.TimeoutSeconds)
	v.SetDefault("extraction.prompts_dir", e.PromptsDir)
	v.SetDefault("watch.extensions", defaults.Watch.Extensions)
	v.SetDefault("watch.output_dir", defaults.Watch.OutputDir)
	v.SetDefault("watch.debounce_millis", defaults.Watch.DebounceMillis)
	v.SetDefault("watch.load_attempts", defaults.Watch.LoadAttempts)
	v.SetDefault("ocr.type", defaults.OCR.Type)
	v.SetDefault("ocr.model", defaults.OCR.Model)
	v.SetDefault("ocr.api_key", defaults.OCR.APIKey)
	v.SetDefault("ocr.endpoint", defaults.OCR.Endpoint)
	v.SetDefault("ocr.timeout_seconds", defaults.OCR.TimeoutSeconds)
	v.SetDefault("ocr.enabled", defaults.OCR.Enabled)

	// Environment variables with DOCEXTRACT_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if len(searchPaths) == 0 {
			searchPaths = []string{".", "$HOME/.docextract"}
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, or "" when running
// on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid edits are
// reported through onError and the previous config stays in effect.
func (cm *Manager) WatchConfig(onError func(error)) {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in provider settings.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:       llm.Type,
			Model:      ResolveEnvVars(llm.Model),
			APIKey:     ResolveEnvVars(llm.APIKey),
			Endpoint:   ResolveEnvVars(llm.Endpoint),
			APIVersion: ResolveEnvVars(llm.APIVersion),
			RateLimit:  llm.RateLimit,
			Timeout:    time.Duration(llm.TimeoutSeconds) * time.Second,
			Enabled:    llm.Enabled,
		}
	}

	return cfg
}

// ToOCRProviderConfig resolves the OCR section for providers.NewOCRFromConfig.
func (c *Config) ToOCRProviderConfig() providers.OCRProviderConfig {
	return providers.OCRProviderConfig{
		Type:     c.OCR.Type,
		Model:    ResolveEnvVars(c.OCR.Model),
		APIKey:   ResolveEnvVars(c.OCR.APIKey),
		Endpoint: ResolveEnvVars(c.OCR.Endpoint),
		Timeout:  time.Duration(c.OCR.TimeoutSeconds) * time.Second,
		Enabled:  c.OCR.Enabled,
	}
}

// WriteDefault writes the default configuration to the specified path. An
// existing file is not overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docextract configuration
# Provider settings use ${ENV_VAR} syntax to reference environment variables.
# They may also be set in a .env file:
#   OPENAI_ENDPOINT=https://<resource>.openai.azure.com
#   GPT4O_MODEL_DEPLOYMENT_NAME=<deployment>
#   AZURE_OPENAI_API_KEY=<key>
#   MISTRAL_API_KEY=<key>   (OCR for scanned PDFs)
# Leave the Azure key empty to authenticate with Entra ID (az login,
# managed identity or AZURE_CLIENT_* variables).
# Any scalar setting can be overridden with DOCEXTRACT_<SECTION>_<KEY>,
# e.g. DOCEXTRACT_EXTRACTION_TEMPERATURE=0

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
