package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OCRProvider turns scanned PDFs into text. It is separate from LLMClient
// because it takes a whole document and returns page markdown rather than a
// chat completion.
type OCRProvider interface {
	// Name returns the provider identifier (e.g., "mistral-ocr").
	Name() string

	// ProcessPDF recognizes the text of every page in a PDF.
	ProcessPDF(ctx context.Context, pdf []byte) (*OCRResult, error)
}

// OCRResult is the response from an OCR provider.
type OCRResult struct {
	// Pages holds the markdown of each page in document order.
	Pages []string `json:"pages"`

	ModelUsed     string        `json:"model_used"`
	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Text joins the recognized pages.
func (r *OCRResult) Text() string {
	return strings.Join(r.Pages, "\n\n")
}

// Recognizer adapts an OCRProvider to the loader's PDF fallback.
type Recognizer struct {
	Provider OCRProvider
}

// RecognizePDF returns the recognized text of a PDF.
func (r Recognizer) RecognizePDF(ctx context.Context, pdf []byte) (string, error) {
	res, err := r.Provider.ProcessPDF(ctx, pdf)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// OCR provider types accepted in configuration.
const (
	TypeMistralOCR = "mistral"
)

// OCRProviderConfig matches config.OCRCfg with resolved secrets.
type OCRProviderConfig struct {
	Type     string
	Model    string
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Enabled  bool
}

// NewOCRFromConfig returns nil, nil when OCR is disabled or has no key.
func NewOCRFromConfig(cfg OCRProviderConfig) (OCRProvider, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Type {
	case TypeMistralOCR, "":
		return NewMistralOCRClient(MistralOCRConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OCR provider type %q", cfg.Type)
	}
}
