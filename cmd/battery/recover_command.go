package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battery/internal/battery"
	"battery/internal/crash"
	"battery/internal/session"
	"battery/internal/task"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Inspect and resolve interrupted sessions",
	}

	recoverCmd.AddCommand(newRecoverListCommand(ctx))
	recoverCmd.AddCommand(newRecoverResumeCommand(ctx))
	recoverCmd.AddCommand(newRecoverDiscardCommand(ctx))

	return recoverCmd
}

func newRecoverListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List interrupted sessions awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunner(nil, func(r *battery.Runner, _ *crash.Monitor) error {
				pending, err := r.CheckForRecovery(cmd.Context())
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No interrupted sessions.")
					return nil
				}
				rows := make([][]string, 0, len(pending))
				for _, p := range pending {
					rows = append(rows, []string{
						p.ParticipantID,
						p.Snapshot.CurrentTask,
						fmt.Sprintf("%d", savedTrials(p)),
						p.Snapshot.LastSave,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Participant", "Task", "Saved Trials", "Last Save"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func savedTrials(p *session.Pending) int {
	if p.Snapshot == nil || p.Snapshot.CurrentState == nil {
		return 0
	}
	return len(p.Snapshot.CurrentState.Trials)
}

func findPending(pending []*session.Pending, participantID string) *session.Pending {
	for _, p := range pending {
		if p.ParticipantID == participantID {
			return p
		}
	}
	return nil
}

func newRecoverResumeCommand(ctx *commandContext) *cobra.Command {
	var trials int
	var syntheticAudio bool
	var autoRespond bool

	cmd := &cobra.Command{
		Use:   "resume <participant>",
		Short: "Resume an interrupted session at the trial after the last saved one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])

			opts := []battery.Option{}
			if trials > 0 {
				opts = append(opts, battery.WithTrialsPerTask(trials))
			}
			if syntheticAudio {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				opts = append(opts, syntheticRecorderOption(cfg))
			}
			if autoRespond {
				opts = append(opts, battery.WithFrontend(&task.AutoFrontend{Delay: 50 * time.Millisecond}))
			} else {
				opts = append(opts, battery.WithFrontend(&task.ConsoleFrontend{
					In:  cmd.InOrStdin(),
					Out: cmd.OutOrStdout(),
				}))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withRunner(opts, func(r *battery.Runner, _ *crash.Monitor) error {
				pending, err := r.CheckForRecovery(runCtx)
				if err != nil {
					return err
				}
				p := findPending(pending, id)
				if p == nil {
					return fmt.Errorf("no interrupted session for participant %q", id)
				}
				if err := r.Resume(runCtx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session complete for %s.\n", id)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&trials, "trials", 0, "Trials per task (must match the interrupted run)")
	cmd.Flags().BoolVar(&syntheticAudio, "synthetic-audio", false, "Use the synthetic recorder instead of a microphone")
	cmd.Flags().BoolVar(&autoRespond, "auto-respond", false, "Answer every trial automatically (dry run)")
	return cmd
}

func newRecoverDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <participant>",
		Short: "Abandon an interrupted session, keeping already-exported results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withRunner(nil, func(r *battery.Runner, _ *crash.Monitor) error {
				pending, err := r.CheckForRecovery(cmd.Context())
				if err != nil {
					return err
				}
				p := findPending(pending, id)
				if p == nil {
					return fmt.Errorf("no interrupted session for participant %q", id)
				}
				if err := r.Discard(cmd.Context(), p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Discarded interrupted session for %s.\n", id)
				return nil
			})
		},
	}
}
