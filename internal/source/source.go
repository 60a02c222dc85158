// Package source loads document text for extraction from files or stdin.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format identifies how a document's bytes were turned into text.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatHTML     Format = "html"
)

// StdinPath is the path that selects standard input.
const StdinPath = "-"

var (
	// ErrEmptyDocument is returned when a source yields no text.
	ErrEmptyDocument = errors.New("document has no text")
	// ErrRecognition wraps failures of the OCR fallback.
	ErrRecognition = errors.New("text recognition failed")
)

// Recognizer extracts text from PDFs that have no text layer.
type Recognizer interface {
	RecognizePDF(ctx context.Context, pdf []byte) (string, error)
}

// Document is loaded source text ready to be sent to the model.
type Document struct {
	Path      string
	Name      string // derived from the file name; "stdin" for standard input
	Format    Format
	Text      string
	PageCount int  // PDFs only
	OCR       bool // text came from the OCR fallback
}

// Loader reads documents. Stdin defaults to os.Stdin. When OCR is set,
// PDFs without a text layer are sent to it.
type Loader struct {
	Stdin  io.Reader
	Logger *slog.Logger
	OCR    Recognizer
}

// Load reads a single document with the default loader.
func Load(path string) (*Document, error) {
	return (&Loader{}).Load(context.Background(), path)
}

// Load reads path ("-" for stdin) and converts it to text by extension:
// .pdf and .html/.htm are converted, everything else is read as UTF-8 text.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	log := l.logger()

	var (
		data []byte
		err  error
		doc  = &Document{Path: path}
	)
	if path == StdinPath {
		stdin := l.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		doc.Name = "stdin"
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		doc.Name = deriveName(path)
	}

	switch formatFor(path, data) {
	case FormatPDF:
		doc.Format = FormatPDF
		doc.Text, doc.PageCount, err = pdfText(data)
		if err == nil && strings.TrimSpace(doc.Text) == "" && l.OCR != nil {
			log.Info("PDF has no text layer, running OCR", "name", doc.Name, "pages", doc.PageCount)
			doc.Text, err = l.OCR.RecognizePDF(ctx, data)
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrRecognition, err)
			}
			doc.OCR = true
		}
	case FormatHTML:
		doc.Format = FormatHTML
		doc.Text, err = htmlText(data)
	case FormatMarkdown:
		doc.Format = FormatMarkdown
		doc.Text, err = plainText(data)
	default:
		doc.Format = FormatText
		doc.Text, err = plainText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", doc.Name, err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("load %s: %w", doc.Name, ErrEmptyDocument)
	}

	log.Debug("loaded document", "name", doc.Name, "format", doc.Format, "pages", doc.PageCount, "chars", len(doc.Text), "ocr", doc.OCR)
	return doc, nil
}

// LoadAll loads several files as one document. PDF parts such as
// invoice-1.pdf, invoice-2.pdf are ordered by their numeric suffix; each part
// is separated by a "--- Part N ---" marker.
func (l *Loader) LoadAll(ctx context.Context, paths []string) (*Document, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no document paths provided")
	}
	if len(paths) == 1 {
		return l.Load(ctx, paths[0])
	}
	for _, p := range paths {
		if p == StdinPath {
			return nil, fmt.Errorf("stdin cannot be combined with other documents")
		}
	}

	sorted := sortByNumber(paths)
	combined := &Document{
		Path: strings.Join(sorted, ","),
		Name: deriveName(sorted[0]),
	}
	parts := make([]string, 0, len(sorted))
	for i, p := range sorted {
		doc, err := l.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		combined.OCR = combined.OCR || doc.OCR
		if i == 0 {
			combined.Format = doc.Format
		} else if combined.Format != doc.Format {
			combined.Format = FormatText
		}
		combined.PageCount += doc.PageCount
		parts = append(parts, fmt.Sprintf("--- Part %d ---\n%s", i+1, doc.Text))
	}
	combined.Text = strings.Join(parts, "\n\n")
	return combined, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

var pdfMagic = []byte("%PDF-")

func formatFor(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	case ".html", ".htm":
		return FormatHTML
	case ".md", ".markdown":
		return FormatMarkdown
	}
	// stdin and unknown extensions: sniff PDFs, default to text
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	return FormatText
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("binary content is not supported as text")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid UTF-8")
	}
	return string(data), nil
}

// sortByNumber sorts paths by their numeric suffix.
// e.g., ["inv-2.pdf", "inv-1.pdf", "inv-10.pdf"] -> ["inv-1.pdf", "inv-2.pdf", "inv-10.pdf"]
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.[^.]+$`)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(sorted[i])
		mj := re.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveName extracts a document name from a filename.
// e.g., "invoice-3381.md" -> "invoice-3381", "contoso-2.pdf" -> "contoso"
func deriveName(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		name = regexp.MustCompile(`-\d+$`).ReplaceAllString(name, "")
	}
	return name
}
