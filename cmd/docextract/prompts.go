package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/output"
	"github.com/jackzampolin/docextract/internal/prompts"
	"github.com/jackzampolin/docextract/internal/prompts/extract_invoice"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [key]",
	Short: "List prompts or show one",
	Long: `List the prompt keys, or print one prompt as it will be sent.

Prompts are embedded in the binary. A file named <key>.tmpl in
extraction.prompts_dir (default: <home>/prompts) replaces the embedded text
for that key. 'docextract prompts export' writes the embedded prompts there
as a starting point.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		r := prompts.NewResolver(promptsDir(mgr.Get().Extraction), logger)
		extract_invoice.RegisterPrompts(r)

		if len(args) == 0 {
			type promptInfo struct {
				Key         string   `json:"key"`
				Description string   `json:"description"`
				Variables   []string `json:"variables,omitempty"`
				Source      string   `json:"source"`
				Hash        string   `json:"hash"`
			}
			list := make([]promptInfo, 0)
			for _, p := range r.AllEmbedded() {
				rp, err := r.Resolve(p.Key)
				if err != nil {
					return err
				}
				list = append(list, promptInfo{
					Key:         rp.Key,
					Description: p.Description,
					Variables:   rp.Variables,
					Source:      rp.Source,
					Hash:        rp.Hash,
				})
			}
			return output.Write(cmd.OutOrStdout(), format, list)
		}

		if args[0] == extract_invoice.SystemPromptKey || args[0] == extract_invoice.InstructionsPromptKey {
			system, instructions, err := extract_invoice.Resolve(r)
			if err != nil {
				return err
			}
			text := system
			if args[0] == extract_invoice.InstructionsPromptKey {
				text = instructions
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}
		rp, err := r.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rp.Text)
		return nil
	},
}

var exportForce bool

var promptsExportCmd = &cobra.Command{
	Use:   "export [dir]",
	Short: "Write the embedded prompts as override files",
	Long: `Write each embedded prompt to <dir>/<key>.tmpl (default: <home>/prompts),
where it can be edited. Existing files are kept unless --force is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := dirs.PromptsPath()
		if len(args) == 1 {
			dir = args[0]
		} else if err := dirs.EnsureExists(); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		r := prompts.NewResolver("", logger)
		extract_invoice.RegisterPrompts(r)
		for _, p := range r.AllEmbedded() {
			path := filepath.Join(dir, p.Key+".tmpl")
			if !exportForce {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "kept %s\n", path)
					continue
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			if err := os.WriteFile(path, []byte(p.Text), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", p.Key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	promptsExportCmd.Flags().BoolVar(&exportForce, "force", false, "overwrite existing override files")
	promptsCmd.AddCommand(promptsExportCmd)
}
