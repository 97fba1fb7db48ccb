package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List recorded render failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				failures, err := store.ListRenderFailures(cmd.Context(), limitFlag)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(failures))
				for _, failure := range failures {
					rows = append(rows, []string{
						string(failure.Kind),
						fmt.Sprintf("%d", failure.OwnerID),
						failure.Message,
						formatTime(failure.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Kind", "Owner", "Message", "Recorded"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum failures to show")
	return cmd
}
