package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/source"
)

var (
	extractFlags   extractorFlags
	extractOutFile string
)

var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract an invoice from a document",
	Long: `Extract an invoice from a document and print it.

With no arguments, or "-", the document is read from stdin. Several files are
treated as parts of one document and joined in numeric suffix order
(invoice-1.pdf, invoice-2.pdf, ...).

Exit status is non-zero when the provider fails or the reply cannot be
decoded (refusal, truncation, empty or malformed JSON).

Examples:
  docextract extract invoice.md
  docextract extract -p openai -o yaml scan-1.pdf scan-2.pdf
  cat invoice.txt | docextract extract --validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		ex, registry, err := newExtractor(ctx, cmd, mgr.Get(), &extractFlags)
		if err != nil {
			return err
		}
		defer registry.Close()

		ocr, err := newRecognizer(mgr.Get())
		if err != nil {
			return err
		}

		if len(args) == 0 {
			args = []string{source.StdinPath}
		}
		loader := &source.Loader{Stdin: cmd.InOrStdin(), Logger: logger, OCR: ocr}
		doc, err := loader.LoadAll(ctx, args)
		if err != nil {
			return err
		}

		res, err := ex.Document(ctx, doc)
		if err != nil {
			return err
		}

		if extractOutFile != "" {
			if err := output.WriteFile(extractOutFile, format, res.Invoice); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", extractOutFile)
			return nil
		}
		return output.Write(cmd.OutOrStdout(), format, res.Invoice)
	},
}

func init() {
	extractFlags.register(extractCmd)
	extractCmd.Flags().StringVarP(&extractOutFile, "out", "O", "", "write the invoice to a file instead of stdout")
}
