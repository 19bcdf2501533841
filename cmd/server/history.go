package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/goseam/internal/backend/export"
	"github.com/jo-hoe/goseam/internal/core"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with the substitution ledger",
	}
	cmd.AddCommand(newHistoryExportCmd(opts))
	return cmd
}

func newHistoryExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "export <file>",
		Short:   "Export every history entry to a Parquet file",
		Example: `  goseam history export ledger.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.loadConfig()
			if err != nil {
				return err
			}
			coreService, err := core.NewCoreService(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer func() {
				_ = coreService.Close()
			}()

			n, err := export.ExportLedger(cmd.Context(), coreService.Database(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", n, args[0])
			return nil
		},
	}
}
