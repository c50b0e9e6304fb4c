package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type modelRow struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Size   string `json:"size"`
	Tier   string `json:"tier,omitempty"`
	Cached bool   `json:"cached"`
	Path   string `json:"path,omitempty"`
}

func newModelsCommand(ctx *commandContext) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and download whisper.cpp models",
	}
	modelsCmd.AddCommand(newModelsListCommand(ctx))
	modelsCmd.AddCommand(newModelsPullCommand(ctx))
	return modelsCmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models and whether they are cached locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.catalog.Entries()
			rows := make([]modelRow, 0, len(entries))
			for _, e := range entries {
				path, cached, err := a.fetcher.Cached(cmd.Context(), e)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", e.Name, err)
				}
				rows = append(rows, modelRow{ID: e.Name, File: e.FileName, Size: e.SizeLabel, Tier: e.Tier, Cached: cached, Path: path})
			}
			if jsonOutput {
				return writeJSON(cmd, rows)
			}

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.ID, r.Tier, r.Size, yesNo(r.Cached)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Model", "Tier", "Size", "Cached"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newModelsPullCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a model into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.catalog.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}
			progress, done := downloadProgress(cmd.ErrOrStderr())
			path, err := a.fetcher.Ensure(cmd.Context(), entry, progress)
			done()
			if err != nil {
				return fmt.Errorf("download %s: %w", entry.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready at %s\n", entry.Name, path)
			return nil
		},
	}
}
