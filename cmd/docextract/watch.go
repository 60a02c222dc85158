package main

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/watch"
)

var (
	watchFlags    extractorFlags
	watchOutDir   string
	watchExisting bool
	watchWorkers  int
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Extract invoices from documents dropped into a directory",
	Long: `Watch a directory and extract every new or rewritten document.

Results are written as <name>.invoice.json (or .yaml with -o yaml) next to the
source, or into --out-dir. Up to defaults.max_workers documents are extracted
at once.

Edits to the config file are picked up without a restart: the provider
registry and extractor are rebuilt for documents that have not started yet.

Examples:
  docextract watch ./inbox
  docextract watch ./inbox --out-dir ./results --existing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		ex, registry, err := newExtractor(ctx, cmd, cfg, &watchFlags)
		if err != nil {
			return err
		}

		// Registries replaced by a reload are closed when the command exits;
		// in-flight extractions may still hold their clients.
		var regMu sync.Mutex
		registries := []*providers.Registry{registry}
		defer func() {
			regMu.Lock()
			defer regMu.Unlock()
			for _, r := range registries {
				r.Close()
			}
		}()

		outDir := cfg.Watch.OutputDir
		if watchOutDir != "" {
			outDir = watchOutDir
		}
		ocr, err := newRecognizer(cfg)
		if err != nil {
			return err
		}
		workers := cfg.Defaults.MaxWorkers
		if watchWorkers > 0 {
			workers = watchWorkers
		}

		w, err := watch.New(watch.Config{
			Dir:          args[0],
			OutputDir:    outDir,
			Extensions:   cfg.Watch.Extensions,
			Debounce:     cfg.Watch.Debounce(),
			Workers:      workers,
			Format:       format,
			LoadAttempts: cfg.Watch.LoadAttempts,
			Existing:     watchExisting,
			OCR:          ocr,
			Logger:       logger,
		}, ex)
		if err != nil {
			return err
		}

		if mgr.ConfigFile() != "" {
			mgr.OnChange(func(newCfg *config.Config) {
				ex, registry, err := newExtractor(ctx, cmd, newCfg, &watchFlags)
				if err != nil {
					logger.Error("config reload failed, keeping previous extractor", "error", err)
					return
				}
				regMu.Lock()
				registries = append(registries, registry)
				regMu.Unlock()
				w.SetExtractor(ex)
			})
			mgr.WatchConfig(func(err error) {
				logger.Error("invalid config change ignored", "error", err)
			})
		}

		return w.Run(ctx)
	},
}

func init() {
	watchFlags.register(watchCmd)
	watchCmd.Flags().StringVar(&watchOutDir, "out-dir", "", "directory for results (default: watch.output_dir, or next to the source)")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also process files already in the directory that have no result")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 0, "concurrent extractions (default: defaults.max_workers)")
}
