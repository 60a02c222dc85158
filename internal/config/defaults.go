package config

// Environment variables referenced by the default configuration. The first two
// match the names used in .env files for the Azure deployment.
const (
	EnvAzureEndpoint   = "OPENAI_ENDPOINT"
	EnvAzureDeployment = "GPT4O_MODEL_DEPLOYMENT_NAME"
	EnvAzureAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOpenRouterKey   = "OPENROUTER_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvMistralAPIKey   = "MISTRAL_API_KEY"
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"azure-openai": {
				Type:           "azure-openai",
				Model:          "${" + EnvAzureDeployment + "}",
				APIKey:         "${" + EnvAzureAPIKey + "}",
				Endpoint:       "${" + EnvAzureEndpoint + "}",
				APIVersion:     "2024-08-01-preview",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o",
				APIKey:         "${" + EnvOpenAIAPIKey + "}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openrouter": {
				Type:           "openrouter",
				Model:          "openai/gpt-4o",
				APIKey:         "${" + EnvOpenRouterKey + "}",
				RateLimit:      60,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"gemini": {
				Type:           "gemini",
				Model:          "gemini-1.5-pro",
				APIKey:         "${" + EnvGeminiAPIKey + "}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "azure-openai",
			MaxWorkers:  4,
		},
		Extraction: ExtractionCfg{
			SchemaName:      "invoice",
			Strict:          true,
			MaxOutputTokens: 4096,
			Temperature:     0.1,
			TopP:            0.1,
			TimeoutSeconds:  120,
		},
		Watch: WatchCfg{
			Extensions:     []string{".md", ".txt", ".pdf", ".html", ".htm"},
			DebounceMillis: 500,
			LoadAttempts:   5,
		},
		OCR: OCRCfg{
			Type:           "mistral",
			Model:          "mistral-ocr-latest",
			APIKey:         "${" + EnvMistralAPIKey + "}",
			TimeoutSeconds: 120,
			Enabled:        true,
		},
	}
}
