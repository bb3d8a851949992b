package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battery/internal/battery"
	"battery/internal/crash"
	"battery/internal/faults"
	"battery/internal/participant"
	"battery/internal/task"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var participantID string
	var taskList string
	var trials int
	var syntheticAudio bool
	var autoRespond bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the assessment battery for a participant",
		Long: "Runs the battery end to end for one participant. If an interrupted\n" +
			"session exists for any participant, it must be resumed or discarded\n" +
			"with 'battery recover' before a new session can start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(participantID)
			if err := participant.ValidateID(id); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !participant.Exists(cfg.ParticipantDir(id)) {
				fmt.Fprintf(cmd.OutOrStdout(),
					"No biodata on file for %s; register with 'battery participant register' to include it in exports.\n", id)
			}

			var taskNames []string
			if trimmed := strings.TrimSpace(taskList); trimmed != "" {
				for _, name := range strings.Split(trimmed, ",") {
					taskNames = append(taskNames, strings.TrimSpace(name))
				}
			}

			opts := []battery.Option{}
			if trials > 0 {
				opts = append(opts, battery.WithTrialsPerTask(trials))
			}
			if syntheticAudio {
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
				if len(pending) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(),
						"%d interrupted session(s) found. Resolve them with 'battery recover' first.\n", len(pending))
					return faults.Wrap(faults.ErrConflict, "cli", "run", "unresolved sessions exist", nil)
				}

				err = r.Start(runCtx, id, taskNames)
				if errors.Is(err, faults.ErrConflict) {
					fmt.Fprintln(cmd.OutOrStdout(),
						"An unresolved session exists for this participant. Use 'battery recover'.")
				}
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Session complete for %s.\n", id)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&participantID, "participant", "p", "", "Participant identifier (required)")
	cmd.Flags().StringVar(&taskList, "tasks", "", "Comma-separated task names (default: full battery)")
	cmd.Flags().IntVar(&trials, "trials", 0, "Trials per task (default: standard plan length)")
	cmd.Flags().BoolVar(&syntheticAudio, "synthetic-audio", false, "Use the synthetic recorder instead of a microphone")
	cmd.Flags().BoolVar(&autoRespond, "auto-respond", false, "Answer every trial automatically (dry run)")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}
