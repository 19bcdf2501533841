package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/goseam/internal/core"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "goseam",
		Short: "Section image continuity engine for stacked page layouts",
		Long: `goseam keeps adjacent page sections visually continuous.

It serves the section edit API (boundary moves, outpainted extensions,
generated sections, crops and history) and offers maintenance commands
for bulk imports and ledger exports.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(), "Path to the YAML configuration")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}

func (opts *rootOptions) loadConfig() (*core.ServiceConfig, error) {
	config, err := core.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", opts.configPath, err)
	}
	slog.Debug("configuration loaded", "path", opts.configPath)
	return config, nil
}
