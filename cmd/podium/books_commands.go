package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/workflow"
)

func newBooksCommand(ctx *commandContext) *cobra.Command {
	booksCmd := &cobra.Command{
		Use:   "books",
		Short: "Manage part books",
	}

	booksCmd.AddCommand(&cobra.Command{
		Use:   "generate <ensemble-slug>",
		Short: "Regenerate every part book for an ensemble and wait for the batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(func(cfg *config.Config, store *catalog.Store, manager *workflow.Manager) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				books, err := manager.GeneratePartBooks(cmd.Context(), ensemble.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(books))
				for _, book := range books {
					identity, err := store.GetIdentity(cmd.Context(), book.PartIdentityID)
					if err != nil {
						return err
					}
					name := fmt.Sprintf("%d", book.PartIdentityID)
					if identity != nil {
						name = identity.DisplayName
					}
					rows = append(rows, []string{
						name,
						fmt.Sprintf("%d", book.Revision),
						yesNo(book.IsRendered),
						orDash(book.DownloadURL),
						orDash(book.RenderError),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Part", "Revision", "Rendered", "Download", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	})

	booksCmd.AddCommand(&cobra.Command{
		Use:   "repair <ensemble-slug>",
		Short: "Settle books orphaned by an interrupted generation run",
		Long: `Settle every pending book of the ensemble's open batch as failed and
release the batch, so a new generation can start. Only needed after a
generation run died without finishing; the next 'books generate' then
allocates a fresh revision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(func(cfg *config.Config, store *catalog.Store, manager *workflow.Manager) error {
				ensemble, err := lookupEnsemble(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				repaired, err := store.RepairBookBatch(cmd.Context(), ensemble.ID)
				if err != nil {
					return err
				}
				if repaired == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No open batch for %s; nothing to repair\n", ensemble.Slug)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Settled %d orphaned books for %s; run 'podium books generate %s' to retry\n",
					repaired, ensemble.Slug, ensemble.Slug)
				return nil
			})
		},
	})

	booksCmd.AddCommand(&cobra.Command{
		Use:   "latest <ensemble-slug>",
		Short: "Show the latest rendered book per part",
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
					book, err := store.LatestRenderedBook(cmd.Context(), identity.ID)
					if err != nil {
						return err
					}
					revision, url := "-", "-"
					if book != nil {
						revision = fmt.Sprintf("%d", book.Revision)
						url = orDash(book.DownloadURL)
					}
					rows = append(rows, []string{identity.DisplayName, revision, url})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Part", "Revision", "Download"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	})

	booksCmd.AddCommand(&cobra.Command{
		Use:   "history <part-identity-id>",
		Short: "Show every book revision for a part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identityID, err := parseID(args[0], "part identity id")
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				books, err := store.BookHistory(cmd.Context(), identityID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(books))
				for _, book := range books {
					rows = append(rows, []string{
						fmt.Sprintf("%d", book.Revision),
						yesNo(book.IsRendered),
						orDash(book.DownloadURL),
						orDash(book.RenderError),
						formatTime(book.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Revision", "Rendered", "Download", "Error", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	})

	return booksCmd
}
