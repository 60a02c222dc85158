package watch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/extract"
	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/source"
	"github.com/jackzampolin/docextract/internal/types"
)

// fakeExtractor returns an invoice whose number is the document text.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeExtractor) Document(_ context.Context, doc *source.Document) (*extract.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, doc.Path)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	text := doc.Text
	return &extract.Result{
		Source:  doc.Path,
		Invoice: &types.Invoice{InvoiceNumber: &text},
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return nil
}

func readInvoiceNumber(t *testing.T, data []byte) string {
	t.Helper()
	var inv types.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("result is not an invoice: %v\n%s", err, data)
	}
	if inv.InvoiceNumber == nil {
		t.Fatal("invoice_number is null")
	}
	return *inv.InvoiceNumber
}

func startWatcher(t *testing.T, cfg Config, ex Extractor) *Watcher {
	t.Helper()
	w, err := New(cfg, ex)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give fsnotify time to register the directory
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcher_ProcessesNewFiles(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{}
	w := startWatcher(t, Config{Dir: dir, Debounce: 50 * time.Millisecond, Workers: 2}, ex)

	src := filepath.Join(dir, "contoso.md")
	if err := os.WriteFile(src, []byte("INV-1"), 0o644); err != nil {
		t.Fatal(err)
	}

	data := waitForFile(t, filepath.Join(dir, "contoso.invoice.json"))
	if got := readInvoiceNumber(t, data); got != "INV-1" {
		t.Errorf("invoice_number = %q", got)
	}

	// Files with other extensions are ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := ex.callCount(); n != 1 {
		t.Errorf("extractor called %d times, want 1", n)
	}
	if st := w.Status(); st.Processed != 1 || st.Failed != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestWatcher_OutputDirAndYAML(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "results")
	ex := &fakeExtractor{}
	startWatcher(t, Config{Dir: dir, OutputDir: outDir, Format: output.FormatYAML, Extensions: []string{"TXT"}}, ex)

	if err := os.WriteFile(filepath.Join(dir, "fabrikam.txt"), []byte("INV-9"), 0o644); err != nil {
		t.Fatal(err)
	}
	data := waitForFile(t, filepath.Join(outDir, "fabrikam.invoice.yaml"))
	if want := "invoice_number: INV-9\n"; string(data[:len(want)]) != want {
		t.Errorf("unexpected yaml:\n%s", data)
	}
}

func TestWatcher_Existing(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.md":               "A",
		"b.md":               "B",
		"b.invoice.json":     `{"invoice_number":"old"}`,
		".partial.md":        "hidden",
		"ignored.invoice.md": "not an input",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ex := &fakeExtractor{}
	startWatcher(t, Config{Dir: dir, Existing: true}, ex)

	data := waitForFile(t, filepath.Join(dir, "a.invoice.json"))
	if got := readInvoiceNumber(t, data); got != "A" {
		t.Errorf("invoice_number = %q", got)
	}
	time.Sleep(100 * time.Millisecond)
	if n := ex.callCount(); n != 1 {
		t.Errorf("extractor called %d times, want 1 (b already has a result)", n)
	}
}

func TestWatcher_SetExtractor(t *testing.T) {
	dir := t.TempDir()
	first := &fakeExtractor{err: errors.New("boom")}
	w := startWatcher(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, first)

	if err := os.WriteFile(filepath.Join(dir, "one.md"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for w.Status().Failed == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if w.Status().Failed != 1 {
		t.Fatalf("expected one failure, status %+v", w.Status())
	}

	second := &fakeExtractor{}
	w.SetExtractor(second)
	if err := os.WriteFile(filepath.Join(dir, "two.md"), []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForFile(t, filepath.Join(dir, "two.invoice.json"))
	if second.callCount() != 1 {
		t.Errorf("reloaded extractor called %d times", second.callCount())
	}
}

func TestWatcher_WithExtractor(t *testing.T) {
	dir := t.TempDir()
	mock := providers.NewMockClient()
	mock.ResponseText = `{"invoice_number":"3381","products":[{"id":"A1","quantity":2}]}`

	ex, err := extract.New(extract.Config{Client: mock, Extraction: config.DefaultConfig().Extraction})
	if err != nil {
		t.Fatal(err)
	}
	startWatcher(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, ex)

	if err := os.WriteFile(filepath.Join(dir, "inv.md"), []byte("# Invoice 3381\nA1 x2"), 0o644); err != nil {
		t.Fatal(err)
	}
	data := waitForFile(t, filepath.Join(dir, "inv.invoice.json"))
	var inv types.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatal(err)
	}
	if *inv.InvoiceNumber != "3381" || len(inv.Products) != 1 || inv.Products[0].Quantity != 2 {
		t.Errorf("unexpected invoice %+v", inv)
	}
	if got := mock.LastRequest().Messages[2].Content; got != "# Invoice 3381\nA1 x2" {
		t.Errorf("document message = %q", got)
	}
}

func TestWatcher_LoadWaitsForContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copying.md")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = os.WriteFile(path, []byte("Invoice 12"), 0o644)
	}()

	w, err := New(Config{Dir: dir, Debounce: 20 * time.Millisecond, LoadAttempts: 20}, &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := w.load(context.Background(), path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if doc.Text != "Invoice 12" {
		t.Errorf("Text = %q", doc.Text)
	}

	start := time.Now()
	if _, err := w.load(context.Background(), filepath.Join(dir, "gone.md")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want not exist", err)
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Error("missing files should not be retried")
	}
}

type failingRecognizer struct{ calls atomic.Int32 }

func (f *failingRecognizer) RecognizePDF(context.Context, []byte) (string, error) {
	f.calls.Add(1)
	return "", &providers.APIError{Provider: providers.MistralOCRName, StatusCode: 401}
}

func TestWatcher_LoadDoesNotRetryRecognition(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "source", "testdata", "scanned.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &failingRecognizer{}
	w, err := New(Config{Dir: dir, Debounce: 20 * time.Millisecond, LoadAttempts: 5, OCR: rec}, &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = w.load(context.Background(), path)
	if !errors.Is(err, source.ErrRecognition) || !providers.IsAuthError(err) {
		t.Fatalf("error = %v, want recognition auth error", err)
	}
	if rec.calls.Load() != 1 {
		t.Errorf("recognizer called %d times, want 1", rec.calls.Load())
	}
}

func TestNew_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.md")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		cfg  Config
		ex   Extractor
	}{
		{"no dir", Config{}, &fakeExtractor{}},
		{"missing dir", Config{Dir: filepath.Join(dir, "nope")}, &fakeExtractor{}},
		{"not a dir", Config{Dir: file}, &fakeExtractor{}},
		{"no extractor", Config{Dir: dir}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.ex); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWanted(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), Extensions: []string{".md", "pdf"}}, &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]bool{
		"/in/invoice.md":          true,
		"/in/INVOICE.PDF":         true,
		"/in/invoice.txt":         false,
		"/in/.invoice.md.1234":    false,
		"/in/invoice.invoice.md":  false,
		"/in/invoice.invoice.pdf": false,
	}
	for path, want := range tests {
		if got := w.wanted(path); got != want {
			t.Errorf("wanted(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestPool(t *testing.T) {
	var handled atomic.Int32
	p := NewPool(2, 1, func(ctx context.Context, path string) error {
		handled.Add(1)
		if path == "bad" {
			return errors.New("failed")
		}
		return nil
	}, nil)

	if err := p.Submit("good"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("overflow"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull before workers start, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	deadline := time.Now().Add(time.Second)
	for p.Status().Processed < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := p.Submit("bad"); err != nil {
		t.Fatal(err)
	}
	for p.Status().Failed < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	p.Wait()

	st := p.Status()
	if st.Processed != 1 || st.Failed != 1 || handled.Load() != 2 || st.Workers != 2 {
		t.Errorf("unexpected status %+v (handled %d)", st, handled.Load())
	}
}
