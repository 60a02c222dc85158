package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/extract"
	"github.com/jackzampolin/docextract/internal/home"
	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/source"
	"github.com/jackzampolin/docextract/version"
)

const defaultEnvFile = ".env"

var (
	cfgFile      string
	homeDir      string
	envFile      string
	outputFormat string
	verbose      bool

	// Set by the root PersistentPreRunE
	format output.Format
	logger *slog.Logger
	dirs   *home.Dir
)

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Extract structured invoice data from documents with an LLM",
	Long: `docextract reads invoice documents (Markdown, text, HTML or PDF) and asks
an LLM to return the invoice as JSON constrained by a strict JSON Schema.

The schema is generated from the Invoice type: every field is required and
nullable, objects reject unknown properties, and the reply is decoded
straight back into the same type.

Providers are configured in config.yaml (see 'docextract config init').
Credentials come from environment variables, optionally loaded from .env:
  OPENAI_ENDPOINT               Azure OpenAI endpoint
  GPT4O_MODEL_DEPLOYMENT_NAME   Azure deployment
  AZURE_OPENAI_API_KEY          Azure key (unset: Entra ID sign-in)
  MISTRAL_API_KEY               OCR for PDFs without a text layer`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or <home>/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docextract home directory (default: ~/.docextract)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", defaultEnvFile, "dotenv file with provider credentials",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", string(output.DefaultFormat), "output format: json or yaml",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "debug logging",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		dirs = h

		if err := loadEnvFile(envFile); err != nil {
			return err
		}

		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		format = f
		return nil
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == defaultEnvFile {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	logger.Debug("loaded env file", "path", path)
	return nil
}

// loadConfig reads the config file and environment. Without --config the
// working directory is searched before the home directory.
func loadConfig() (*config.Manager, error) {
	mgr, err := config.NewManager(cfgFile, ".", dirs.Path())
	if err != nil {
		return nil, err
	}
	if f := mgr.ConfigFile(); f != "" {
		logger.Debug("using config file", "path", f)
	}
	return mgr, nil
}

// promptsDir returns the prompt override directory: extraction.prompts_dir
// when set, else the home prompts directory if it exists.
func promptsDir(cfg config.ExtractionCfg) string {
	if cfg.PromptsDir != "" {
		return cfg.PromptsDir
	}
	if dirs.PromptsExist() {
		return dirs.PromptsPath()
	}
	return ""
}

// extractorFlags are shared by extract and watch.
type extractorFlags struct {
	provider string
	model    string
	validate bool
}

func (f *extractorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "LLM provider from config (default: defaults.llm_provider)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "override the provider's model or deployment")
	cmd.Flags().BoolVar(&f.validate, "validate", false, "validate replies against the schema before decoding")
}

// apply copies explicitly set flags over the configured extraction settings.
func (f *extractorFlags) apply(cmd *cobra.Command, cfg config.ExtractionCfg) config.ExtractionCfg {
	if cmd.Flags().Changed("validate") {
		cfg.Validate = f.validate
	}
	cfg.PromptsDir = promptsDir(cfg)
	return cfg
}

// newExtractor builds a provider registry from cfg and an extractor over the
// selected provider. The returned registry must be closed by the caller.
func newExtractor(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags *extractorFlags) (*extract.Extractor, *providers.Registry, error) {
	name := flags.provider
	if name == "" {
		name = cfg.Defaults.LLMProvider
	}
	if name == "" {
		return nil, nil, fmt.Errorf("no LLM provider selected: set defaults.llm_provider or --provider")
	}

	registry, err := providers.NewRegistryFromConfig(ctx, cfg.ToProviderRegistryConfig())
	if err != nil {
		return nil, nil, err
	}
	registry.SetLogger(logger)

	client, err := registry.GetLLM(name)
	if err != nil {
		registry.Close()
		return nil, nil, fmt.Errorf("%w (configured: %v; check credentials)", err, registry.ListLLM())
	}

	extraction := flags.apply(cmd, cfg.Extraction)
	ex, err := extract.New(extract.Config{
		Client:     client,
		Extraction: extraction,
		Model:      flags.model,
		Logger:     logger.With("provider", name),
	})
	if err != nil {
		registry.Close()
		return nil, nil, err
	}
	return ex, registry, nil
}

// newRecognizer returns the OCR fallback for scanned PDFs, or nil when no OCR
// provider is configured.
func newRecognizer(cfg *config.Config) (source.Recognizer, error) {
	p, err := providers.NewOCRFromConfig(cfg.ToOCRProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	logger.Debug("OCR fallback enabled", "provider", p.Name())
	return providers.Recognizer{Provider: p}, nil
}
