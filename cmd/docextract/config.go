package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docextract/internal/config"
	"github.com/jackzampolin/docextract/internal/home"
	"github.com/jackzampolin/docextract/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var initGlobal bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write the default configuration to path (default: ./config.yaml, or
<home>/config.yaml with --global).

An existing file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := home.ConfigFileName
		switch {
		case len(args) == 1:
			path = args[0]
		case initGlobal:
			if err := dirs.EnsureExists(); err != nil {
				return err
			}
			path = dirs.ConfigPath()
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and
DOCEXTRACT_* environment overrides. ${ENV_VAR} references are shown
unresolved so secrets are not printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadConfig()
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), format, mgr.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initGlobal, "global", false, "write to the home directory")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
