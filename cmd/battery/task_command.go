package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"battery/internal/audio"
	"battery/internal/battery"
	"battery/internal/task"
)

// newTaskCommand is the development mode: run a single task in isolation,
// with no session state, no recovery, and no export. Results print to the
// terminal and are thrown away.
func newTaskCommand(ctx *commandContext) *cobra.Command {
	var trials int
	var seed int64
	var syntheticAudio bool
	var autoRespond bool

	cmd := &cobra.Command{
		Use:   "task <name>",
		Short: "Run a single task in isolation (development mode)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			tk, err := battery.NewStandardTask(name, trials, seed)
			if err != nil {
				return err
			}

			var frontend task.Frontend
			if autoRespond {
				frontend = &task.AutoFrontend{Delay: 50 * time.Millisecond}
			} else {
				frontend = &task.ConsoleFrontend{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			}

			runner := &task.Runner{
				Task:     tk,
				Frontend: frontend,
				Saver:    task.DiscardSaver{},
				Logger:   logger,
			}
			var analyzer *audio.Analyzer
			if syntheticAudio {
				audioDir, err := os.MkdirTemp("", "battery-task-*")
				if err != nil {
					return fmt.Errorf("create audio directory: %w", err)
				}
				defer os.RemoveAll(audioDir)
				analyzer = audio.NewAnalyzer(cfg.Audio.AnalysisWorkers, cfg.Audio.OnsetThreshold, logger)
				runner.Recorder = &audio.SyntheticRecorder{
					SampleRate: cfg.Audio.SampleRate,
					Onset:      300 * time.Millisecond,
					Amplitude:  0.5,
					ToneHz:     440,
				}
				runner.Analyzer = analyzer
				runner.AudioDir = audioDir
				runner.RecordFor = time.Duration(cfg.Audio.RecordingSeconds * float64(time.Second))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outcome, runErr := runner.Run(runCtx)
			if analyzer != nil {
				analyzer.Close()
			}
			if outcome != nil {
				printOutcome(cmd, outcome, syntheticAudio)
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&trials, "trials", 10, "Number of trials")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Stimulus plan seed")
	cmd.Flags().BoolVar(&syntheticAudio, "synthetic-audio", false, "Record and analyze synthetic audio per trial")
	cmd.Flags().BoolVar(&autoRespond, "auto-respond", false, "Answer every trial automatically")
	return cmd
}

func printOutcome(cmd *cobra.Command, outcome *task.Outcome, withAudio bool) {
	headers := []string{"Trial", "Stimulus", "Response", "Correct", "RT (ms)"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}
	if withAudio {
		headers = append(headers, "Onset (ms)")
		aligns = append(aligns, alignRight)
	}

	correct := 0
	rows := make([][]string, 0, len(outcome.Trials))
	for _, tr := range outcome.Trials {
		if tr.Correct {
			correct++
		}
		row := []string{
			fmt.Sprintf("%d", tr.TrialNumber),
			tr.Stimulus,
			tr.Response,
			fmt.Sprintf("%t", tr.Correct),
			fmt.Sprintf("%.1f", tr.ReactionTimeMS),
		}
		if withAudio {
			row = append(row, fmt.Sprintf("%.1f", tr.VoiceOnsetMS))
			if tr.AudioFile != "" {
				row[len(row)-1] += " (" + filepath.Base(tr.AudioFile) + ")"
			}
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
	fmt.Fprintf(out, "%s: %d/%d correct\n", outcome.TaskName, correct, len(outcome.Trials))
}
