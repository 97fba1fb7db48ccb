package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/links"
)

func newVersionCommand(ctx *commandContext) *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Manage arrangement versions",
	}

	var bumpFlag string
	var partsFlag []string

	addCmd := &cobra.Command{
		Use:   "add <ensemble-slug> <arrangement-slug> <file-name>",
		Short: "Append a new version to an arrangement",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ensemble, arrangement, err := lookupArrangement(cmd.Context(), store, args[0], args[1])
				if err != nil {
					return err
				}
				bump, ok := catalog.ParseBump(bumpFlag)
				if !ok {
					return fmt.Errorf("invalid bump %q (use major, minor, or patch)", bumpFlag)
				}
				version, err := store.AppendVersion(cmd.Context(), arrangement.ID, args[2], bump)
				if err != nil {
					return err
				}
				if len(partsFlag) > 0 {
					if _, err := store.RegisterVersionParts(cmd.Context(), version, ensemble.ID, partsFlag); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appended %s to %s/%s\n",
					version.FullLabel(), ensemble.Slug, arrangement.Slug)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&bumpFlag, "bump", "patch", "Version component to bump (major, minor, patch)")
	addCmd.Flags().StringSliceVar(&partsFlag, "part", nil, "Part name extracted from the score (repeatable)")
	versionCmd.AddCommand(addCmd)

	versionCmd.AddCommand(&cobra.Command{
		Use:   "list <ensemble-slug> <arrangement-slug>",
		Short: "List an arrangement's versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				_, arrangement, err := lookupArrangement(cmd.Context(), store, args[0], args[1])
				if err != nil {
					return err
				}
				versions, err := store.ListVersions(cmd.Context(), arrangement.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(versions))
				for _, version := range versions {
					rows = append(rows, []string{
						fmt.Sprintf("%d", version.ID),
						version.FullLabel(),
						yesNo(version.IsLatest),
						string(version.AudioState),
						orDash(version.AudioError),
						formatTime(version.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Label", "Latest", "Audio", "Audio Error", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	})

	versionCmd.AddCommand(newVersionLinksCommand(ctx))

	return versionCmd
}

func newVersionLinksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "links <version-id>",
		Short: "Resolve download links for a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseID(args[0], "version id")
			if err != nil {
				return err
			}
			return ctx.withResolver(func(cfg *config.Config, store *catalog.Store, resolver *links.Resolver) error {
				version, err := store.GetVersion(cmd.Context(), versionID)
				if err != nil {
					return err
				}
				if version == nil {
					return fmt.Errorf("version %d not found", versionID)
				}

				linkSet, err := resolver.Resolve(cmd.Context(), version)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch {
				case linkSet.IsProcessing:
					fmt.Fprintf(out, "Version %s is still processing; links are not final.\n", version.FullLabel())
				case linkSet.Error:
					fmt.Fprintf(out, "Version %s failed to process; links may be incomplete.\n", version.FullLabel())
				}
				rows := [][]string{
					{"raw", orDash(linkSet.RawURL)},
					{"processed", orDash(linkSet.ProcessedURL)},
					{"score pdf", orDash(linkSet.ScorePDFURL)},
					{"audio", orDash(linkSet.AudioURL)},
				}
				fmt.Fprintln(out, renderTable([]string{"Artifact", "URL"}, rows, nil))
				return nil
			})
		},
	}
}
