package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediadesk/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external binaries and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg))
			statuses = append(statuses, deps.CheckDirectories(cfg)...)

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				rows = append(rows, []string{s.Name, doctorState(s), doctorDetail(s)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows, nil))

			if !deps.Ready(statuses) {
				return errors.New("required dependencies are missing")
			}
			fmt.Fprintln(out, "Ready")
			return nil
		},
	}
}

func doctorState(s deps.Status) string {
	switch {
	case s.Available:
		return "ok"
	case s.Optional:
		return "optional"
	default:
		return "missing"
	}
}

func doctorDetail(s deps.Status) string {
	switch {
	case !s.Available:
		return s.Detail
	case s.Version != "":
		return s.Version
	default:
		return s.Path
	}
}
