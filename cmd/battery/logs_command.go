package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"battery/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the tail of the battery log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "battery.log")
			tail, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No log output yet.")
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}
