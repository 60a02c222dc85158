package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/extract"
	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/schema"
	"github.com/jackzampolin/docextract/internal/structured"
	"github.com/jackzampolin/docextract/internal/types"
)

var (
	schemaNoStrict      bool
	schemaNullOblivious bool
	schemaReflect       bool
	schemaEnvelope      bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the invoice response schema",
	Long: `Print the JSON Schema sent as the structured output constraint.

The schema is generated from the static Invoice descriptor and closed: every
object lists all of its properties as required and rejects additional ones.
--no-strict keeps the schema closed but clears the envelope's strict flag, so
the provider is not asked to enforce it. --reflect derives it from the Go struct tags instead,
which is useful to spot drift between the two.

Examples:
  docextract schema
  docextract schema --envelope         # full response_format object
  docextract schema --reflect -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig().Extraction
		if mgr, err := config.NewManager(cfgFile, ".", dirs.Path()); err == nil {
			cfg = mgr.Get().Extraction
		} else {
			logger.Debug("using default extraction settings", "error", err)
		}
		if cmd.Flags().Changed("null-oblivious-nullable") {
			cfg.NullObliviousNullable = schemaNullOblivious
		}
		strict := cfg.Strict && !schemaNoStrict

		var node *schema.Node
		var err error
		if schemaReflect {
			node, err = schema.Reflect(&types.Invoice{}, schema.Options{NullObliviousAsNullable: cfg.NullObliviousNullable})
		} else {
			node, err = extract.InvoiceSchema(cfg)
		}
		if err != nil {
			return err
		}

		rf, err := structured.NewResponseFormat(cfg.SchemaName, cfg.SchemaDescription, strict, node)
		if err != nil {
			return err
		}
		closed, err := schema.Parse(rf.Schema)
		if err != nil {
			return err
		}
		if err := schema.Verify(closed); err != nil {
			return fmt.Errorf("schema is not closed: %w", err)
		}

		if schemaEnvelope {
			return output.Write(cmd.OutOrStdout(), format, rf)
		}
		return output.Write(cmd.OutOrStdout(), format, json.RawMessage(rf.Schema))
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaNoStrict, "no-strict", false, "do not ask the provider to enforce the schema")
	schemaCmd.Flags().BoolVar(&schemaNullOblivious, "null-oblivious-nullable", false, "let unannotated fields admit null")
	schemaCmd.Flags().BoolVar(&schemaReflect, "reflect", false, "derive the schema from the Go struct tags")
	schemaCmd.Flags().BoolVar(&schemaEnvelope, "envelope", false, "print the full response_format object")
}
