package structured

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/schema"
)

type lineItem struct {
	ID          *string  `json:"id"`
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
}

func lineItemFormat(t *testing.T) *providers.ResponseFormat {
	t.Helper()
	node, err := schema.Generate(schema.Field{
		Kind: schema.Object,
		Fields: []schema.Field{
			{Name: "id", Kind: schema.String, Nullability: schema.Nullable},
			{Name: "description", Kind: schema.String, Nullability: schema.Nullable},
			{Name: "quantity", Kind: schema.Number, Nullability: schema.Nullable},
		},
	}, schema.Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	rf, err := NewResponseFormat("line_item", "", true, node)
	if err != nil {
		t.Fatalf("NewResponseFormat() error = %v", err)
	}
	return rf
}

var testMessages = []providers.Message{
	{Role: providers.RoleSystem, Content: "You are an AI assistant that extracts data from documents."},
	{Role: providers.RoleUser, Content: "A1 x3"},
}

func float(v float64) *float64 { return &v }

func TestComplete_PartialJSON(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = `{"id": "A1", "quantity": 3}`

	got, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
		ResponseFormat: lineItemFormat(t),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.ID == nil || *got.ID != "A1" {
		t.Errorf("ID = %v, want A1", got.ID)
	}
	if got.Quantity == nil || *got.Quantity != 3 {
		t.Errorf("Quantity = %v, want 3", got.Quantity)
	}
	if got.Description != nil {
		t.Errorf("Description = %q, want nil", *got.Description)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}
}

func TestComplete_BuildsRequest(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = `{"id":null,"description":null,"quantity":null}`
	rf := lineItemFormat(t)

	_, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
		ResponseFormat:  rf,
		Model:           "gpt-4o",
		MaxOutputTokens: 4096,
		Temperature:     float(0.1),
		TopP:            float(0.1),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	req := mock.LastRequest()
	if req.Model != "gpt-4o" || req.MaxTokens != 4096 {
		t.Errorf("unexpected request: %+v", req)
	}
	if *req.Temperature != 0.1 || *req.TopP != 0.1 {
		t.Errorf("unexpected sampling: temperature=%v top_p=%v", *req.Temperature, *req.TopP)
	}
	if req.ResponseFormat != rf {
		t.Error("response format not forwarded")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != providers.RoleSystem {
		t.Errorf("messages not forwarded in order: %+v", req.Messages)
	}
}

func TestComplete_DecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		refusal string
		finish  string
		wantErr error
	}{
		{name: "not json", content: "I could not find an invoice."},
		{name: "empty", content: "  ", wantErr: ErrEmpty},
		{name: "null document", content: "null", wantErr: ErrEmpty},
		{name: "wrong shape", content: `{"id": 42}`},
		{name: "array root", content: `[1,2]`},
		{name: "truncated", content: `{"id": "A1", "desc`, finish: "length", wantErr: ErrTruncated},
		{name: "refusal", refusal: "I can't help with that.", wantErr: ErrRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			mock.ResponseText = tt.content
			mock.Refusal = tt.refusal
			if tt.finish != "" {
				mock.FinishReason = tt.finish
			}

			_, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
				ResponseFormat: lineItemFormat(t),
			})
			de, ok := IsDecodeError(err)
			if !ok {
				t.Fatalf("expected DecodeError, got %T: %v", err, err)
			}
			if tt.refusal == "" && de.Raw != tt.content {
				t.Errorf("Raw = %q, want %q", de.Raw, tt.content)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_RecoversFencedJSON(t *testing.T) {
	const prose = "Here is the data: {\"id\": \"A1\"} Thanks."
	tests := []struct {
		name    string
		content string
		strict  bool
		wantErr bool
	}{
		{name: "fenced", content: "```json\n{\"id\": \"A1\"}\n```", strict: true},
		{name: "prose with enforcement", content: prose, strict: true, wantErr: true},
		{name: "prose without enforcement", content: prose, strict: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			mock.ResponseText = tt.content
			rf := lineItemFormat(t)
			rf.Strict = tt.strict

			got, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
				ResponseFormat: rf,
			})
			if tt.wantErr {
				de, ok := IsDecodeError(err)
				if !ok {
					t.Fatalf("error = %v, want DecodeError", err)
				}
				if de.Raw != prose {
					t.Errorf("Raw = %q", de.Raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got.ID == nil || *got.ID != "A1" {
				t.Errorf("ID = %v, want A1", got.ID)
			}
		})
	}
}

func TestComplete_Validate(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = `{"id": "A1", "quantity": 3}`

	_, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
		ResponseFormat: lineItemFormat(t),
		Validate:       true,
	})
	de, ok := IsDecodeError(err)
	if !ok {
		t.Fatalf("expected DecodeError for missing required property, got %v", err)
	}
	if !strings.Contains(de.Error(), "does not match schema") {
		t.Errorf("unexpected error text: %v", de)
	}

	mock.ResponseText = `{"id": "A1", "description": null, "quantity": 3}`
	if _, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
		ResponseFormat: lineItemFormat(t),
		Validate:       true,
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestComplete_TransportErrorUnchanged(t *testing.T) {
	authErr := &providers.APIError{Provider: "azure-openai", StatusCode: 401, Message: "Access denied"}
	mock := providers.NewMockClient()
	mock.Err = authErr

	got, err := Complete[lineItem](context.Background(), mock, testMessages, Options{
		ResponseFormat: lineItemFormat(t),
	})
	if got != nil {
		t.Errorf("expected nil result, got %+v", got)
	}
	if err != authErr {
		t.Fatalf("expected the transport error unchanged, got %T: %v", err, err)
	}
	if _, ok := IsDecodeError(err); ok {
		t.Error("transport error must not be reported as a decode error")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", mock.RequestCount())
	}
}

func TestComplete_InvalidOptions(t *testing.T) {
	rf := lineItemFormat(t)
	tests := []struct {
		name     string
		messages []providers.Message
		opts     Options
	}{
		{name: "no format", opts: Options{}},
		{name: "temperature high", opts: Options{ResponseFormat: rf, Temperature: float(2.5)}},
		{name: "temperature negative", opts: Options{ResponseFormat: rf, Temperature: float(-0.1)}},
		{name: "top_p high", opts: Options{ResponseFormat: rf, TopP: float(1.1)}},
		{name: "negative tokens", opts: Options{ResponseFormat: rf, MaxOutputTokens: -1}},
		{name: "bad name", opts: Options{ResponseFormat: &providers.ResponseFormat{
			Type: providers.ResponseFormatJSONSchema, Name: "has space", Schema: rf.Schema,
		}}},
		{name: "wrong type", opts: Options{ResponseFormat: &providers.ResponseFormat{
			Type: "json_object", Name: "x", Schema: rf.Schema,
		}}},
		{name: "no messages", messages: []providers.Message{}, opts: Options{ResponseFormat: rf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			messages := testMessages
			if tt.messages != nil {
				messages = tt.messages
			}
			_, err := Complete[lineItem](context.Background(), mock, messages, tt.opts)
			if !errors.Is(err, ErrInvalidOptions) {
				t.Fatalf("error = %v, want ErrInvalidOptions", err)
			}
			if mock.RequestCount() != 0 {
				t.Errorf("expected no request, got %d", mock.RequestCount())
			}
		})
	}

	if _, err := Complete[lineItem](context.Background(), nil, testMessages, Options{ResponseFormat: rf}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("nil client error = %v", err)
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	mock := providers.NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock.Latency = time.Second

	_, err := Complete[lineItem](ctx, mock, testMessages, Options{ResponseFormat: lineItemFormat(t)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
