package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
)

func newPartsCommand(ctx *commandContext) *cobra.Command {
	partsCmd := &cobra.Command{
		Use:   "parts",
		Short: "Manage part identities",
	}

	partsCmd.AddCommand(&cobra.Command{
		Use:   "list <ensemble-slug>",
		Short: "List an ensemble's parts in presentation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				identities, err := store.ListIdentities(cmd.Context(), ensemble.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(identities))
				for _, identity := range identities {
					order := "-"
					if identity.SortOrder != nil {
						order = fmt.Sprintf("%d", *identity.SortOrder)
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", identity.ID),
						identity.DisplayName,
						order,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Part", "Order"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight}))
				return nil
			})
		},
	})

	var renameFlag string
	mergeCmd := &cobra.Command{
		Use:   "merge <source-id> <target-id>",
		Short: "Absorb one part identity into another",
		Long: `Absorb the source part into the target. The source's assets move to the
target, both names become aliases so future uploads resolve consistently, and
old download links keep working through the redirect.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, err := parseID(args[0], "source id")
			if err != nil {
				return err
			}
			targetID, err := parseID(args[1], "target id")
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				merged, err := store.MergeIdentities(cmd.Context(), sourceID, targetID, renameFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merged part %d into %s (id %d)\n",
					sourceID, merged.DisplayName, merged.ID)
				return nil
			})
		},
	}
	mergeCmd.Flags().StringVar(&renameFlag, "rename", "", "New display name for the surviving part")
	partsCmd.AddCommand(mergeCmd)

	partsCmd.AddCommand(&cobra.Command{
		Use:   "reorder <ensemble-slug> <part-id>...",
		Short: "Set the presentation order for an ensemble's parts",
		Long: `Assign an explicit order to parts. The listed ids must cover every active
part of the ensemble exactly once.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				orderedIDs := make([]int64, 0, len(args)-1)
				for _, raw := range args[1:] {
					id, err := parseID(raw, "part id")
					if err != nil {
						return err
					}
					orderedIDs = append(orderedIDs, id)
				}
				if err := store.ReorderIdentities(cmd.Context(), ensemble.ID, orderedIDs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reordered %d parts in %s\n", len(orderedIDs), ensemble.Slug)
				return nil
			})
		},
	})

	return partsCmd
}
