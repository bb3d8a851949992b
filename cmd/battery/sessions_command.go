package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"battery/internal/store"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <participant>",
		Short: "List recorded sessions for a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No sessions recorded for %s.\n", id)
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.ID,
					string(sess.Status),
					strings.Join(sess.TaskQueue, ","),
					fmt.Sprintf("%d", sess.CrashCount),
					sess.CreatedAt.Format(time.RFC3339),
					formatCompletedAt(sess),
				})
			}
			headers := []string{"Session", "Status", "Tasks", "Crashes", "Started", "Completed"}

			out := cmd.OutOrStdout()
			if isTerminal() {
				fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{
					alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
				}))
				return nil
			}
			// Plain output for pipes and scripts.
			fmt.Fprintln(out, strings.Join(headers, "\t"))
			for _, row := range rows {
				fmt.Fprintln(out, strings.Join(row, "\t"))
			}
			return nil
		},
	}
}

func formatCompletedAt(sess *store.Session) string {
	if sess.CompletedAt == nil {
		return ""
	}
	return sess.CompletedAt.Format(time.RFC3339)
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
