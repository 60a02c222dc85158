package providers

import (
	"os"
)

// TestConfig holds provider credentials loaded from environment variables.
// This allows live tests to use the same variables as the CLI.
type TestConfig struct {
	OpenAIAPIKey    string
	AzureEndpoint   string
	AzureAPIKey     string
	AzureDeployment string
	GeminiAPIKey    string
}

// LoadTestConfig loads provider credentials from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AzureEndpoint:   os.Getenv("OPENAI_ENDPOINT"),
		AzureAPIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureDeployment: os.Getenv("GPT4O_MODEL_DEPLOYMENT_NAME"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasAzure returns true if an Azure OpenAI deployment is fully configured.
func (c TestConfig) HasAzure() bool {
	return c.AzureEndpoint != "" && c.AzureAPIKey != "" && c.AzureDeployment != ""
}

// HasGemini returns true if a Gemini API key is configured.
func (c TestConfig) HasGemini() bool {
	return c.GeminiAPIKey != ""
}
