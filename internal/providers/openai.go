package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName      = "openai"
	AzureOpenAIName = "azure-openai"
	OpenRouterName  = "openrouter"

	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	// Structured outputs need 2024-08-01-preview or later.
	DefaultAzureAPIVersion = "2024-08-01-preview"

	azureCognitiveScope = "https://cognitiveservices.azure.com/.default"
)

// OpenAIConfig holds configuration for OpenAIClient.
//
// The same client serves OpenAI, Azure OpenAI (AzureEndpoint set; Model is
// the deployment name) and OpenAI-compatible gateways such as OpenRouter
// (BaseURL set).
type OpenAIConfig struct {
	Name            string // reported in results; defaults by flavor
	APIKey          string
	Model           string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	// AzureCredential authenticates Azure requests with Entra ID tokens
	// when APIKey is empty.
	AzureCredential azcore.TokenCredential
	Timeout         time.Duration
	// MaxRetries is passed to the SDK. Zero disables SDK retries so that
	// failures reach the caller after a single attempt.
	MaxRetries int
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	name   string
	apiKey string
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI (or Azure OpenAI) client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Name == "" {
		switch {
		case cfg.AzureEndpoint != "":
			cfg.Name = AzureOpenAIName
		case cfg.BaseURL == OpenRouterBaseURL:
			cfg.Name = OpenRouterName
		default:
			cfg.Name = OpenAIName
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.AzureEndpoint != "" {
		apiVersion := cfg.AzureAPIVersion
		if apiVersion == "" {
			apiVersion = DefaultAzureAPIVersion
		}
		opts = append(opts, azure.WithEndpoint(cfg.AzureEndpoint, apiVersion))
		if cfg.APIKey == "" && cfg.AzureCredential != nil {
			opts = append(opts, option.WithMiddleware(azureBearerToken(cfg.AzureCredential)))
		} else {
			opts = append(opts, azure.WithAPIKey(cfg.APIKey))
		}
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}

	return &OpenAIClient{
		name:   cfg.Name,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// azureBearerToken authorizes each request with an Entra ID token. It
// stands in for azure.WithTokenCredential, whose azcore pipeline retries
// throttled requests on its own.
func azureBearerToken(cred azcore.TokenCredential) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		tok, err := cred.GetToken(req.Context(), policy.TokenRequestOptions{
			Scopes: []string{azureCognitiveScope},
		})
		if err != nil {
			return nil, &APIError{Provider: AzureOpenAIName, StatusCode: http.StatusUnauthorized, Message: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		return next(req)
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return c.name
}

// Model returns the configured default model (deployment name on Azure).
func (c *OpenAIClient) Model() string {
	return c.model
}

// Chat sends a chat completion request. Exactly one request is made unless
// the client was configured with SDK retries.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("%s: no model configured", c.name)
	}

	params, err := c.buildParams(model, req)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Request-ID", requestID))
	if err != nil {
		return nil, mapOpenAIError(c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w (model=%s, id=%s)", c.name, ErrNoChoices, resp.Model, resp.ID)
	}

	choice := resp.Choices[0]
	return &ChatResult{
		Content:          choice.Message.Content,
		Refusal:          choice.Message.Refusal,
		FinishReason:     choice.FinishReason,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		ExecutionTime:    time.Since(start),
		Provider:         c.name,
		ModelUsed:        resp.Model,
		RequestID:        requestID,
	}, nil
}

func (c *OpenAIClient) buildParams(model string, req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			return params, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	if rf := req.ResponseFormat; rf != nil {
		if rf.Type != ResponseFormatJSONSchema {
			return params, fmt.Errorf("unsupported response format type %q", rf.Type)
		}
		jsonSchema := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   rf.Name,
			Schema: rf.Schema,
			Strict: openai.Bool(rf.Strict),
		}
		if rf.Description != "" {
			jsonSchema.Description = openai.String(rf.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: jsonSchema},
		}
	}

	return params, nil
}

var _ LLMClient = (*OpenAIClient)(nil)
