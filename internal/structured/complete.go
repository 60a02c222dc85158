// Package structured binds a JSON Schema response format, prompt messages and
// generation parameters into one chat completion and decodes the reply into a
// Go value.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/schema"
)

// Options configures a single completion.
type Options struct {
	// ResponseFormat carries the schema text, name and strict flag. Required.
	ResponseFormat *providers.ResponseFormat

	// Model overrides the client's default model.
	Model string

	// MaxOutputTokens caps generated tokens; zero leaves the provider default.
	MaxOutputTokens int

	// Temperature in [0,2] and TopP in [0,1]; nil leaves the provider default.
	Temperature *float64
	TopP        *float64

	// Validate checks the decoded document against the response schema
	// before unmarshalling.
	Validate bool

	// Timeout bounds the transport call when positive.
	Timeout time.Duration

	Logger *slog.Logger
}

func (o Options) check() error {
	rf := o.ResponseFormat
	if rf == nil {
		return fmt.Errorf("%w: response format is required", ErrInvalidOptions)
	}
	if rf.Type != providers.ResponseFormatJSONSchema {
		return fmt.Errorf("%w: response format type %q", ErrInvalidOptions, rf.Type)
	}
	if len(rf.Schema) == 0 {
		return fmt.Errorf("%w: response schema is empty", ErrInvalidOptions)
	}
	if !schemaNamePattern.MatchString(rf.Name) {
		return fmt.Errorf("%w: schema name %q", ErrInvalidOptions, rf.Name)
	}
	if o.MaxOutputTokens < 0 {
		return fmt.Errorf("%w: max output tokens %d", ErrInvalidOptions, o.MaxOutputTokens)
	}
	if t := o.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("%w: temperature %v outside [0,2]", ErrInvalidOptions, *t)
	}
	if p := o.TopP; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("%w: top_p %v outside [0,1]", ErrInvalidOptions, *p)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s", ErrInvalidOptions, o.Timeout)
	}
	return nil
}

// Complete sends messages to client once and decodes the first returned
// content segment into a T.
//
// Transport errors are returned exactly as the client produced them. Anything
// wrong with the reply itself (refusal, empty, not JSON, wrong shape, or a
// schema violation when Validate is set) is reported as a *DecodeError.
// Fields absent from the reply keep their zero value.
func Complete[T any](ctx context.Context, client providers.LLMClient, messages []providers.Message, opts Options) (*T, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidOptions)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: at least one message is required", ErrInvalidOptions)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Compile before the call so a bad schema never costs a request.
	var validator *schema.Compiled
	if opts.Validate {
		node, err := schema.Parse(opts.ResponseFormat.Schema)
		if err != nil {
			return nil, fmt.Errorf("%w: parse response schema: %v", ErrInvalidOptions, err)
		}
		validator, err = schema.Compile(node)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}

	result, err := client.Chat(ctx, &providers.ChatRequest{
		Messages:       messages,
		Model:          opts.Model,
		Temperature:    opts.Temperature,
		TopP:           opts.TopP,
		MaxTokens:      opts.MaxOutputTokens,
		Timeout:        opts.Timeout,
		ResponseFormat: opts.ResponseFormat,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("structured completion",
		"provider", result.Provider,
		"model", result.ModelUsed,
		"request_id", result.RequestID,
		"schema", opts.ResponseFormat.Name,
		"finish_reason", result.FinishReason,
		"prompt_tokens", result.PromptTokens,
		"completion_tokens", result.CompletionTokens,
		"elapsed", result.ExecutionTime,
	)

	return decode[T](result, !opts.ResponseFormat.Strict, validator, logger)
}

// decode turns the reply into a T. With enforcement requested the reply must
// be the JSON document itself (optionally fenced); otherwise an object inside
// surrounding prose is accepted with a warning.
func decode[T any](result *providers.ChatResult, allowProse bool, validator *schema.Compiled, logger *slog.Logger) (*T, error) {
	if result.Refusal != "" {
		return nil, &DecodeError{Raw: result.Refusal, Err: ErrRefused}
	}

	doc, fromProse, ok := recoverJSON(result.Content, allowProse)
	if fromProse {
		logger.Warn("reply wrapped JSON in prose", "request_id", result.RequestID)
	}
	if !ok {
		var err error = ErrEmpty
		switch {
		case result.FinishReason == "length":
			err = ErrTruncated
		case len(bytes.TrimSpace([]byte(result.Content))) > 0:
			err = fmt.Errorf("reply is not valid JSON")
		}
		return nil, &DecodeError{Raw: result.Content, Err: err}
	}
	if doc == "null" {
		return nil, &DecodeError{Raw: result.Content, Err: ErrEmpty}
	}

	if validator != nil {
		if err := validator.Validate([]byte(doc)); err != nil {
			return nil, &DecodeError{Raw: result.Content, Err: err}
		}
	}

	var out T
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, &DecodeError{Raw: result.Content, Err: err}
	}
	return &out, nil
}
