package source

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// pdfText returns the plain text layer of a PDF and its page count. The page
// count comes from pdfcpu, which also rejects malformed files before text
// extraction is attempted. Scanned PDFs without a text layer yield no text;
// the loader hands those to its Recognizer.
func pdfText(data []byte) (string, int, error) {
	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", pageCount, fmt.Errorf("failed to open PDF: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", pageCount, fmt.Errorf("failed to extract PDF text: %w", err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", pageCount, fmt.Errorf("failed to read PDF text: %w", err)
	}
	return string(out), pageCount, nil
}
