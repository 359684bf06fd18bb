package main

import (
	"github.com/spf13/cobra"
)

func newIndexCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage index tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create [table]",
		Short: "Create a table with the configured metric and index type",
		Long: `Create a table with the configured dimensions, similarity function and index
type. Creating an existing table with the same dimensions does nothing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			table := a.index.Table()
			if len(args) == 1 {
				table = args[0]
			}
			if err := a.index.EnsureIndex(ctx, table); err != nil {
				return err
			}
			cfg := a.index.Config()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"table":      table,
				"dimensions": cfg.Dimensions,
				"metric":     cfg.SimilarityFunction,
				"index_type": cfg.EffectiveIndexType(),
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the store answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.index.Ping(ctx); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"status":  "ok",
				"backend": a.cfg.Store.Backend,
				"pool":    a.pool.Stats(),
			})
		},
	})
	return cmd
}
