package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"battery/internal/battery"
	"battery/internal/crash"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <session-id>",
		Short: "Re-export result files for a recorded session",
		Long: "Rewrites missing or altered result files for every task of the given\n" +
			"session. Intact files are left untouched; export is idempotent.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			return ctx.withRunner(nil, func(r *battery.Runner, _ *crash.Monitor) error {
				exports, err := r.ExportSession(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				if len(exports) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recorded trials to export.")
					return nil
				}
				for _, exp := range exports {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d trials)\n",
						exp.TaskName, exp.FilePath, exp.TrialCount)
				}
				return nil
			})
		},
	}
}
