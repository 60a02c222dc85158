package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/jackzampolin/docextract/internal/schema"
)

const GeminiName = "gemini"

// GeminiConfig holds configuration for GeminiClient.
type GeminiConfig struct {
	APIKey string
	Model  string
	// Extra client options (endpoint overrides in tests).
	Options []option.ClientOption
}

// GeminiClient implements LLMClient on the Gemini API. Strict JSON Schema
// constraints are translated to the Gemini response schema dialect.
type GeminiClient struct {
	model  string
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. Call Close when done.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.Options...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{model: cfg.Model, client: client}, nil
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Chat sends the conversation as one GenerateContent call. System messages
// become the system instruction; the last message must come from the user.
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	if modelName == "" {
		return nil, fmt.Errorf("gemini: no model configured")
	}

	system, history, last, err := splitGeminiMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	model := c.client.GenerativeModel(modelName)
	if system != nil {
		model.SystemInstruction = system
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.TopP != nil {
		model.SetTopP(float32(*req.TopP))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if rf := req.ResponseFormat; rf != nil {
		if rf.Type != ResponseFormatJSONSchema {
			return nil, fmt.Errorf("unsupported response format type %q", rf.Type)
		}
		node, err := schema.Parse(rf.Schema)
		if err != nil {
			return nil, fmt.Errorf("gemini: response schema: %w", err)
		}
		gs, err := toGenaiSchema(node)
		if err != nil {
			return nil, fmt.Errorf("gemini: response schema: %w", err)
		}
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = gs
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, last.Parts...)

	// The SDK reports safety and recitation blocks as errors. They are the
	// model declining to answer, not a transport failure.
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		result := &ChatResult{
			Refusal:       blocked.Error(),
			FinishReason:  finishReasonContentFilter,
			ExecutionTime: time.Since(start),
			Provider:      GeminiName,
			ModelUsed:     modelName,
			RequestID:     requestID,
		}
		if blocked.Candidate != nil {
			result.FinishReason = geminiFinishReason(blocked.Candidate.FinishReason)
		}
		return result, nil
	}
	if err != nil {
		return nil, mapGoogleError(GeminiName, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: %w (model=%s)", ErrNoChoices, modelName)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	result := &ChatResult{
		Content:       text.String(),
		FinishReason:  geminiFinishReason(candidate.FinishReason),
		ExecutionTime: time.Since(start),
		Provider:      GeminiName,
		ModelUsed:     modelName,
		RequestID:     requestID,
	}
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = int(u.PromptTokenCount)
		result.CompletionTokens = int(u.CandidatesTokenCount)
		result.TotalTokens = int(u.TotalTokenCount)
	}
	return result, nil
}

const finishReasonContentFilter = "content_filter"

// geminiFinishReason maps Gemini finish reasons onto the OpenAI names the
// decoder checks for.
func geminiFinishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return finishReasonContentFilter
	case genai.FinishReasonUnspecified:
		return ""
	default:
		return strings.ToLower(strings.TrimPrefix(r.String(), "FinishReason"))
	}
}

func splitGeminiMessages(messages []Message) (system *genai.Content, history []*genai.Content, last *genai.Content, err error) {
	var turns []*genai.Content
	var systemParts []genai.Part
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, genai.Text(m.Content))
		case RoleUser:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			return nil, nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return nil, nil, nil, errors.New("gemini: conversation must end with a user message")
	}
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return system, turns[:len(turns)-1], turns[len(turns)-1], nil
}

// toGenaiSchema converts a schema node to the Gemini subset. Gemini has no
// additionalProperties keyword; objects are implicitly closed.
func toGenaiSchema(n *schema.Node) (*genai.Schema, error) {
	if n == nil {
		return nil, nil
	}
	if len(n.AnyOf) > 0 {
		return nil, fmt.Errorf("%w: anyOf is not supported by gemini", schema.ErrUnrepresentable)
	}

	out := &genai.Schema{
		Description: n.Description,
		Nullable:    n.Type.Nullable(),
		Required:    n.Required,
	}
	switch n.Type.Primary() {
	case schema.TypeString:
		out.Type = genai.TypeString
	case schema.TypeNumber:
		out.Type = genai.TypeNumber
	case schema.TypeInteger:
		out.Type = genai.TypeInteger
	case schema.TypeBoolean:
		out.Type = genai.TypeBoolean
	case schema.TypeArray:
		out.Type = genai.TypeArray
	case schema.TypeObject:
		out.Type = genai.TypeObject
	default:
		return nil, fmt.Errorf("%w: type %v", schema.ErrUnrepresentable, n.Type)
	}

	for _, v := range n.Enum {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string enum value %v", schema.ErrUnrepresentable, v)
		}
		out.Enum = append(out.Enum, s)
	}
	if len(out.Enum) > 0 {
		out.Format = "enum"
	}

	if n.Items != nil {
		items, err := toGenaiSchema(n.Items)
		if err != nil {
			return nil, err
		}
		out.Items = items
	}
	if n.Properties != nil && n.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, n.Properties.Len())
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop, err := toGenaiSchema(pair.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pair.Key, err)
			}
			out.Properties[pair.Key] = prop
		}
	}
	return out, nil
}

var _ LLMClient = (*GeminiClient)(nil)
