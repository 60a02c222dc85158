// Package extract runs invoice extraction end to end: it derives the strict
// response schema once, resolves the prompts and makes one structured
// completion per document.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/prompts"
	"github.com/jackzampolin/docextract/internal/prompts/extract_invoice"
	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/schema"
	"github.com/jackzampolin/docextract/internal/source"
	"github.com/jackzampolin/docextract/internal/structured"
	"github.com/jackzampolin/docextract/internal/types"
)

// Extractor turns document text into an Invoice.
type Extractor struct {
	client   providers.LLMClient
	resolver *prompts.Resolver
	cfg      config.ExtractionCfg
	model    string
	format   *providers.ResponseFormat
	logger   *slog.Logger
}

// Config configures an Extractor.
type Config struct {
	Client     providers.LLMClient
	Extraction config.ExtractionCfg

	// Model overrides the provider's configured model.
	Model string

	// Resolver supplies prompt text. When nil, a resolver over
	// Extraction.PromptsDir is created.
	Resolver *prompts.Resolver

	Logger *slog.Logger
}

// Result is one extraction with its bookkeeping.
type Result struct {
	Source  string         `json:"source"`
	Invoice *types.Invoice `json:"invoice"`
	Elapsed time.Duration  `json:"elapsed_ns"`
}

// New builds an Extractor. The response schema is generated once here, so a
// misconfigured schema fails before any document is read.
func New(cfg Config) (*Extractor, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: client is required", structured.ErrInvalidOptions)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = prompts.NewResolver(cfg.Extraction.PromptsDir, logger)
		extract_invoice.RegisterPrompts(resolver)
	}

	format, err := InvoiceResponseFormat(cfg.Extraction)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		client:   cfg.Client,
		resolver: resolver,
		cfg:      cfg.Extraction,
		model:    cfg.Model,
		format:   format,
		logger:   logger,
	}, nil
}

// InvoiceSchema generates the invoice schema node, before any strictness
// transform.
func InvoiceSchema(cfg config.ExtractionCfg) (*schema.Node, error) {
	return schema.Generate(types.InvoiceSchema(), schema.Options{
		NullObliviousAsNullable: cfg.NullObliviousNullable,
	})
}

// InvoiceResponseFormat builds the response format sent with every request.
func InvoiceResponseFormat(cfg config.ExtractionCfg) (*providers.ResponseFormat, error) {
	node, err := InvoiceSchema(cfg)
	if err != nil {
		return nil, fmt.Errorf("generate invoice schema: %w", err)
	}
	return structured.NewResponseFormat(cfg.SchemaName, cfg.SchemaDescription, cfg.Strict, node)
}

// ResponseFormat returns the response format this extractor sends.
func (e *Extractor) ResponseFormat() *providers.ResponseFormat {
	return e.format
}

// Document extracts an invoice from a loaded document.
func (e *Extractor) Document(ctx context.Context, doc *source.Document) (*Result, error) {
	start := time.Now()
	inv, err := e.Invoice(ctx, doc.Text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Name, err)
	}
	elapsed := time.Since(start)
	e.logger.Info("extracted invoice",
		"source", doc.Name,
		"format", doc.Format,
		"products", len(inv.Products),
		"returns", len(inv.Returns),
		"elapsed", elapsed,
	)
	return &Result{
		Source:  doc.Path,
		Invoice: inv,
		Elapsed: elapsed,
	}, nil
}

// Invoice extracts an invoice from document text with a single completion.
// Transport errors are returned as the client produced them.
func (e *Extractor) Invoice(ctx context.Context, text string) (*types.Invoice, error) {
	system, instructions, err := extract_invoice.Resolve(e.resolver)
	if err != nil {
		return nil, fmt.Errorf("resolve prompts: %w", err)
	}
	messages, err := extract_invoice.BuildMessages(system, instructions, text)
	if err != nil {
		return nil, err
	}

	return structured.Complete[types.Invoice](ctx, e.client, messages, structured.Options{
		ResponseFormat:  e.format,
		Model:           e.model,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		Temperature:     &e.cfg.Temperature,
		TopP:            &e.cfg.TopP,
		Validate:        e.cfg.Validate,
		Timeout:         e.cfg.Timeout(),
		Logger:          e.logger,
	})
}
