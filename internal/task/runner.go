package task

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"battery/internal/audio"
	"battery/internal/faults"
	"battery/internal/logging"
)

// Runner drives one task through its trials, auto-saving at every trial
// boundary. Progress restored via the Saver resumes at the trial after the
// last completed one; partial trials are never persisted.
type Runner struct {
	Task     Task
	Frontend Frontend
	Saver    Snapshotable

	// Recorder and Analyzer are optional; without them the task runs
	// response-only. AudioDir receives trial_<n>.wav files.
	Recorder  audio.Recorder
	Analyzer  *audio.Analyzer
	AudioDir  string
	RecordFor time.Duration

	Logger *slog.Logger
}

// Run executes the task to completion or interruption. The returned
// Outcome carries whatever trials finished; on context cancellation the
// error is ctx.Err() and the outcome holds all completed trials.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "task")

	outcome := &Outcome{TaskName: r.Task.Name()}

	trials, resumed, err := r.Saver.Restore()
	if err != nil {
		return outcome, faults.Wrap(faults.ErrRuntime, "task", "restore",
			fmt.Sprintf("restore progress for %s", r.Task.Name()), err)
	}
	outcome.Trials = trials
	outcome.Resumed = resumed
	if resumed {
		logger.Info("resuming task",
			logging.String(logging.FieldTask, r.Task.Name()),
			logging.Int("restored_trials", len(trials)))
	}

	total := r.Task.TrialCount()
	inflight := 0
	start := len(trials) + 1

	for n := start; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			r.drain(&outcome.Trials, &inflight)
			r.save(logger, outcome.Trials)
			return outcome, err
		}

		stim, err := r.Task.Trial(n)
		if err != nil {
			// A malformed stimulus aborts this task only; the session
			// stays live for the remaining tasks.
			r.drain(&outcome.Trials, &inflight)
			r.save(logger, outcome.Trials)
			return outcome, faults.Wrap(faults.ErrRuntime, "task", "trial",
				fmt.Sprintf("stimulus for trial %d of %s", n, r.Task.Name()), err)
		}

		resp, err := r.Frontend.Present(ctx, n, stim)
		if err != nil {
			r.drain(&outcome.Trials, &inflight)
			r.save(logger, outcome.Trials)
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			return outcome, faults.Wrap(faults.ErrRuntime, "task", "present",
				fmt.Sprintf("trial %d of %s", n, r.Task.Name()), err)
		}

		result := TrialResult{
			TrialNumber:    n,
			Stimulus:       stimulusLabel(stim),
			Expected:       stim.Expected,
			Response:       resp.Value,
			Correct:        resp.Value == stim.Expected,
			ReactionTimeMS: float64(resp.ReactionTime) / float64(time.Millisecond),
			VoiceOnsetMS:   -1,
			RecordedAt:     time.Now(),
		}

		if r.Recorder != nil {
			submitted, err := r.captureAudio(ctx, n, &result)
			if submitted {
				// A failed Submit still resolves its result slot, so the
				// drain accounting must include it either way.
				inflight++
			}
			if err != nil {
				logger.Warn("audio capture failed",
					logging.String(logging.FieldTask, r.Task.Name()),
					logging.Int(logging.FieldTrial, n),
					logging.Error(err))
			}
		}

		// Onset for the previous trial lands before this one is committed.
		for inflight > 1 {
			r.applyOnset(&outcome.Trials, <-r.Analyzer.Results())
			inflight--
		}

		outcome.Trials = append(outcome.Trials, result)
		r.save(logger, outcome.Trials)
	}

	r.drain(&outcome.Trials, &inflight)
	r.save(logger, outcome.Trials)
	outcome.Completed = true
	return outcome, nil
}

func (r *Runner) captureAudio(ctx context.Context, trialNumber int, result *TrialResult) (submitted bool, err error) {
	clip, err := r.Recorder.Record(ctx, r.RecordFor)
	if err != nil {
		return false, err
	}
	if r.AudioDir != "" {
		path := filepath.Join(r.AudioDir, fmt.Sprintf("trial_%d.wav", trialNumber))
		if err := audio.WriteWAV(path, clip); err != nil {
			return false, err
		}
		result.AudioFile = path
	}
	if r.Analyzer == nil {
		return false, nil
	}
	return true, r.Analyzer.Submit(ctx, trialNumber, clip)
}

func (r *Runner) drain(trials *[]TrialResult, inflight *int) {
	for *inflight > 0 {
		r.applyOnset(trials, <-r.Analyzer.Results())
		*inflight--
	}
}

func (r *Runner) applyOnset(trials *[]TrialResult, res audio.OnsetResult) {
	if res.Err != nil {
		return
	}
	idx := res.TrialNumber - 1
	if idx < 0 || idx >= len(*trials) {
		return
	}
	(*trials)[idx].VoiceOnsetMS = res.OnsetMS
}

// save pushes the trial boundary snapshot. A failed save is logged and the
// task keeps running; the results stay in memory for export.
func (r *Runner) save(logger *slog.Logger, trials []TrialResult) {
	if err := r.Saver.Snapshot(trials); err != nil {
		logger.Warn("trial snapshot failed",
			logging.String(logging.FieldTask, r.Task.Name()),
			logging.Int("trials", len(trials)),
			logging.Error(err))
	}
}

func stimulusLabel(stim Stimulus) string {
	if stim.Ink != "" && stim.Ink != stim.Display {
		return stim.Display + "/" + stim.Ink
	}
	return stim.Display
}
