package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
)

func newEnsembleCommand(ctx *commandContext) *cobra.Command {
	ensembleCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Manage ensembles",
	}

	ensembleCmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create an ensemble",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, err := store.CreateEnsemble(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created ensemble %s (slug %s)\n", ensemble.Name, ensemble.Slug)
				return nil
			})
		},
	})

	ensembleCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List ensembles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensembles, err := store.ListEnsembles(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(ensembles))
				for _, ensemble := range ensembles {
					rows = append(rows, []string{
						ensemble.Slug,
						ensemble.Name,
						yesNo(ensemble.PartBooksGenerating),
						fmt.Sprintf("%d", ensemble.LatestBookRevision),
						formatTime(ensemble.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Slug", "Name", "Books Generating", "Book Revision", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	})

	return ensembleCmd
}

func newArrangementCommand(ctx *commandContext) *cobra.Command {
	arrangementCmd := &cobra.Command{
		Use:   "arrangement",
		Short: "Manage arrangements within an ensemble",
	}

	arrangementCmd.AddCommand(&cobra.Command{
		Use:   "add <ensemble-slug> <title>",
		Short: "Create an arrangement",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				title := strings.Join(args[1:], " ")
				arrangement, err := store.CreateArrangement(cmd.Context(), ensemble.ID, title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created arrangement %s (slug %s) in %s\n",
					arrangement.Title, arrangement.Slug, ensemble.Slug)
				return nil
			})
		},
	})

	arrangementCmd.AddCommand(&cobra.Command{
		Use:   "list <ensemble-slug>",
		Short: "List an ensemble's arrangements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				arrangements, err := store.ListArrangements(cmd.Context(), ensemble.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(arrangements))
				for _, arrangement := range arrangements {
					latest, err := store.LatestVersion(cmd.Context(), arrangement.ID)
					if err != nil {
						return err
					}
					label := "-"
					if latest != nil {
						label = latest.FullLabel()
					}
					rows = append(rows, []string{
						arrangement.Slug,
						arrangement.Title,
						label,
						formatTime(arrangement.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Slug", "Title", "Latest", "Created"}, rows, nil))
				return nil
			})
		},
	})

	return arrangementCmd
}
