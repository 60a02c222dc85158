package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jackzampolin/docextract/internal/schema"
)

func TestToGenaiSchema(t *testing.T) {
	node, err := schema.Parse([]byte(`{
		"type": "object",
		"properties": {
			"number": {"type": ["string", "null"], "description": "Invoice number"},
			"status": {"type": "string", "enum": ["open", "paid"]},
			"lines": {
				"type": ["array", "null"],
				"items": {
					"type": "object",
					"properties": {"qty": {"type": "number"}},
					"required": ["qty"],
					"additionalProperties": false
				}
			}
		},
		"required": ["number", "status", "lines"],
		"additionalProperties": false
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got, err := toGenaiSchema(node)
	if err != nil {
		t.Fatalf("toGenaiSchema() error = %v", err)
	}
	if got.Type != genai.TypeObject {
		t.Fatalf("expected object root, got %v", got.Type)
	}
	if len(got.Required) != 3 {
		t.Fatalf("expected 3 required, got %v", got.Required)
	}
	number := got.Properties["number"]
	if number.Type != genai.TypeString || !number.Nullable || number.Description != "Invoice number" {
		t.Fatalf("unexpected number schema: %+v", number)
	}
	status := got.Properties["status"]
	if status.Nullable || len(status.Enum) != 2 || status.Format != "enum" {
		t.Fatalf("unexpected status schema: %+v", status)
	}
	lines := got.Properties["lines"]
	if lines.Type != genai.TypeArray || !lines.Nullable || lines.Items == nil {
		t.Fatalf("unexpected lines schema: %+v", lines)
	}
	if lines.Items.Properties["qty"].Type != genai.TypeNumber {
		t.Fatalf("unexpected qty schema: %+v", lines.Items.Properties["qty"])
	}
}

func TestToGenaiSchemaNullableEnum(t *testing.T) {
	node, err := schema.Parse([]byte(`{"type":["string","null"],"enum":["a","b",null]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got, err := toGenaiSchema(node)
	if err != nil {
		t.Fatalf("toGenaiSchema() error = %v", err)
	}
	if !got.Nullable || len(got.Enum) != 2 {
		t.Fatalf("unexpected schema: %+v", got)
	}
}

func TestToGenaiSchemaRejectsAnyOf(t *testing.T) {
	node, err := schema.Parse([]byte(`{"anyOf":[{"type":"string"},{"type":"number"}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := toGenaiSchema(node); !errors.Is(err, schema.ErrUnrepresentable) {
		t.Fatalf("expected ErrUnrepresentable, got %v", err)
	}
}

func TestSplitGeminiMessages(t *testing.T) {
	system, history, last, err := splitGeminiMessages([]Message{
		{Role: RoleSystem, Content: "You extract data."},
		{Role: RoleUser, Content: "Extract."},
		{Role: RoleAssistant, Content: "Send the document."},
		{Role: RoleUser, Content: "# Invoice"},
	})
	if err != nil {
		t.Fatalf("splitGeminiMessages() error = %v", err)
	}
	if system == nil || len(system.Parts) != 1 {
		t.Fatalf("expected system instruction, got %+v", system)
	}
	if len(history) != 2 || history[1].Role != "model" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if got := last.Parts[0].(genai.Text); got != "# Invoice" {
		t.Fatalf("unexpected last message: %q", got)
	}

	if _, _, _, err := splitGeminiMessages([]Message{{Role: RoleSystem, Content: "only"}}); err == nil {
		t.Fatalf("expected error without a user turn")
	}
	if _, _, _, err := splitGeminiMessages([]Message{{Role: "tool", Content: "x"}}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

const geminiInvoiceSchema = `{"type":"object","properties":{"invoice_number":{"type":["string","null"]}},"required":["invoice_number"],"additionalProperties":false}`

func newTestGeminiClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey: "test-key",
		Model:  "gemini-1.5-flash",
		Options: []option.ClientOption{
			option.WithEndpoint(server.URL),
			option.WithHTTPClient(server.Client()),
		},
	})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func geminiRequest() *ChatRequest {
	return &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are an AI assistant that extracts data from documents."},
			{Role: RoleUser, Content: "# Invoice 7"},
		},
		Temperature: float(0.1),
		MaxTokens:   4096,
		ResponseFormat: &ResponseFormat{
			Type:   ResponseFormatJSONSchema,
			Name:   "invoice",
			Strict: true,
			Schema: json.RawMessage(geminiInvoiceSchema),
		},
	}
}

func TestGeminiChatSuccess(t *testing.T) {
	var payload map[string]any
	var calls atomic.Int32

	client := newTestGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-flash:streamGenerateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"invoice_number\":\"7\"}"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 8, "totalTokenCount": 48}
		}]`))
	})

	result, err := client.Chat(context.Background(), geminiRequest())
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", calls.Load())
	}
	if result.Content != `{"invoice_number":"7"}` {
		t.Errorf("Content = %q", result.Content)
	}
	if result.FinishReason != "stop" || result.Refusal != "" {
		t.Errorf("unexpected finish: %q refusal %q", result.FinishReason, result.Refusal)
	}
	if result.PromptTokens != 40 || result.CompletionTokens != 8 || result.TotalTokens != 48 {
		t.Errorf("unexpected usage: %+v", result)
	}
	if result.Provider != GeminiName || result.ModelUsed != "gemini-1.5-flash" || result.RequestID == "" {
		t.Errorf("unexpected metadata: %+v", result)
	}

	cfg, _ := payload["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", cfg["responseMimeType"])
	}
	rs, _ := cfg["responseSchema"].(map[string]any)
	props, _ := rs["properties"].(map[string]any)
	if _, ok := props["invoice_number"]; !ok {
		t.Errorf("response schema not sent: %v", cfg["responseSchema"])
	}
	if required, _ := rs["required"].([]any); len(required) != 1 || required[0] != "invoice_number" {
		t.Errorf("required = %v", rs["required"])
	}
	if cfg["maxOutputTokens"] != float64(4096) {
		t.Errorf("maxOutputTokens = %v", cfg["maxOutputTokens"])
	}
	if _, ok := payload["systemInstruction"]; !ok {
		t.Error("system instruction not sent")
	}
}

func TestGeminiChatSafetyBlockIsRefusal(t *testing.T) {
	client := newTestGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": ""}]},
				"finishReason": "SAFETY"
			}]
		}]`))
	})

	result, err := client.Chat(context.Background(), geminiRequest())
	if err != nil {
		t.Fatalf("Chat() error = %v, want a refusal result", err)
	}
	if result.Refusal == "" {
		t.Error("expected Refusal to be set")
	}
	if result.FinishReason != "content_filter" {
		t.Errorf("FinishReason = %q", result.FinishReason)
	}
}

func TestGeminiChatAuthError(t *testing.T) {
	var calls atomic.Int32
	client := newTestGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`))
	})

	_, err := client.Chat(context.Background(), geminiRequest())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if !apiErr.IsAuth() || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Provider != GeminiName {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one request, got %d", calls.Load())
	}
}

func TestGeminiFinishReason(t *testing.T) {
	tests := map[genai.FinishReason]string{
		genai.FinishReasonStop:        "stop",
		genai.FinishReasonMaxTokens:   "length",
		genai.FinishReasonSafety:      "content_filter",
		genai.FinishReasonRecitation:  "content_filter",
		genai.FinishReasonOther:       "other",
		genai.FinishReasonUnspecified: "",
	}
	for in, want := range tests {
		if got := geminiFinishReason(in); got != want {
			t.Errorf("geminiFinishReason(%v) = %q, want %q", in, got, want)
		}
	}
}
