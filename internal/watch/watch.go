// Package watch extracts invoices from documents dropped into a directory.
//
// Each new or rewritten file with a configured extension is debounced, loaded,
// sent through the extractor and written next to the source (or to an output
// directory) as <name>.invoice.json or .yaml.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/docextract/internal/extract"
	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/source"
)

// resultSuffix marks files written by the watcher so they are never picked up
// as input.
const resultSuffix = ".invoice"

// Extractor extracts an invoice from a loaded document.
type Extractor interface {
	Document(ctx context.Context, doc *source.Document) (*extract.Result, error)
}

// Config configures a Watcher.
type Config struct {
	Dir        string
	OutputDir  string // empty writes next to the source
	Extensions []string
	Debounce   time.Duration
	Workers    int
	Format     output.Format

	// LoadAttempts bounds reads of a file that is still being copied in.
	LoadAttempts int

	// Existing processes files already in Dir that have no result yet.
	Existing bool

	// OCR reads PDFs that have no text layer. Optional.
	OCR source.Recognizer

	Logger *slog.Logger
}

// Watcher watches a directory and extracts every matching file.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	loader *source.Loader
	pool   *Pool

	mu        sync.RWMutex
	extractor Extractor

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// New creates a Watcher.
func New(cfg Config, ex Extractor) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Dir)
	}
	if ex == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Format == "" {
		cfg.Format = output.DefaultFormat
	}
	if cfg.LoadAttempts < 1 {
		cfg.LoadAttempts = 1
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".md", ".txt", ".pdf", ".html", ".htm"}
	}
	exts := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	cfg.Extensions = exts

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("dir", cfg.Dir)

	w := &Watcher{
		cfg:       cfg,
		logger:    logger,
		loader:    &source.Loader{Logger: logger, OCR: cfg.OCR},
		extractor: ex,
		timers:    make(map[string]*time.Timer),
	}
	w.pool = NewPool(cfg.Workers, 0, w.process, logger)
	return w, nil
}

// SetExtractor swaps the extractor used for files not yet started. It is
// called when the configuration is reloaded.
func (w *Watcher) SetExtractor(ex Extractor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extractor = ex
	w.logger.Info("extractor reloaded")
}

// Status returns the worker pool status.
func (w *Watcher) Status() PoolStatus {
	return w.pool.Status()
}

// Run watches until ctx is cancelled. In-flight extractions are cancelled
// with it.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.pool.Start(ctx)
	defer w.pool.Wait()
	defer cancel()
	defer w.stopTimers()

	if w.cfg.Existing {
		if err := w.scan(); err != nil {
			return err
		}
	}

	w.logger.Info("watching for documents",
		"extensions", w.cfg.Extensions,
		"output_dir", w.cfg.OutputDir,
		"workers", w.pool.workerCount,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "status", w.pool.Status())
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.wanted(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// scan queues existing files that have no result yet.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if !w.wanted(path) {
			continue
		}
		if _, err := os.Stat(w.ResultPath(path)); err == nil {
			continue
		}
		w.enqueue(path)
	}
	return nil
}

// schedule (re)starts the debounce timer for path. Editors and copies emit
// several writes; only the last one triggers extraction.
func (w *Watcher) schedule(path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, path)
		w.timersMu.Unlock()
		w.enqueue(path)
	})
}

func (w *Watcher) stopTimers() {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) enqueue(path string) {
	if err := w.pool.Submit(path); err != nil {
		w.logger.Warn("dropping document", "path", path, "error", err)
	}
}

// wanted reports whether path is an input document.
func (w *Watcher) wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), resultSuffix) {
		return false
	}
	return slices.Contains(w.cfg.Extensions, ext)
}

// ResultPath returns where the result for the document at path is written.
func (w *Watcher) ResultPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + resultSuffix + w.cfg.Format.Ext()
	dir := w.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, name)
}

// load reads path, trying again while it is still being written: a copy in
// progress shows up as an empty or truncated file.
func (w *Watcher) load(ctx context.Context, path string) (*source.Document, error) {
	delay := w.cfg.Debounce
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var doc *source.Document
	err := retry.Do(
		func() error {
			d, err := w.loader.Load(ctx, path)
			if err != nil {
				return err
			}
			doc = d
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(w.cfg.LoadAttempts)),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, source.ErrRecognition)
		}),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Debug("document not readable yet", "path", path, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (w *Watcher) process(ctx context.Context, path string) error {
	doc, err := w.load(ctx, path)
	if err != nil {
		return err
	}

	w.mu.RLock()
	ex := w.extractor
	w.mu.RUnlock()

	res, err := ex.Document(ctx, doc)
	if err != nil {
		return err
	}

	out := w.ResultPath(path)
	if err := output.WriteFile(out, w.cfg.Format, res.Invoice); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	w.logger.Info("wrote invoice", "source", path, "result", out, "elapsed", res.Elapsed)
	return nil
}
