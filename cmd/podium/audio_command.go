package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/workflow"
)

func newAudioCommand(ctx *commandContext) *cobra.Command {
	audioCmd := &cobra.Command{
		Use:   "audio",
		Short: "Manage audio renders",
	}

	audioCmd.AddCommand(&cobra.Command{
		Use:   "generate <version-id>",
		Short: "Render audio for an arrangement version and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseID(args[0], "version id")
			if err != nil {
				return err
			}
			return ctx.withManager(func(cfg *config.Config, store *catalog.Store, manager *workflow.Manager) error {
				version, err := manager.GenerateAudio(cmd.Context(), versionID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Audio for %s rendered to %s\n",
					version.FullLabel(), version.AudioKey())
				return nil
			})
		},
	})

	audioCmd.AddCommand(&cobra.Command{
		Use:   "status <version-id>",
		Short: "Show the audio slot state for a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseID(args[0], "version id")
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				version, err := store.GetVersion(cmd.Context(), versionID)
				if err != nil {
					return err
				}
				if version == nil {
					return fmt.Errorf("version %d not found", versionID)
				}
				rows := [][]string{
					{"version", version.FullLabel()},
					{"state", string(version.AudioState)},
					{"job", orDash(version.AudioJob)},
					{"error", orDash(version.AudioError)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	})

	return audioCmd
}
