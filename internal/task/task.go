// Package task defines the contract cognitive tasks implement and the
// trial loop that runs them.
//
// All trial logic runs on a single goroutine. Audio analysis is the only
// concurrent work, and its results re-enter the loop through an ordered
// channel, so trial N's onset is applied before trial N+1 is scored.
package task

import (
	"context"
	"time"
)

// Stimulus is one presentable trial item.
type Stimulus struct {
	// Display is what the participant sees, e.g. "RED" rendered in blue ink.
	Display string
	// Ink is the presentation attribute when the task has one.
	Ink string
	// Expected is the response counted as correct.
	Expected string
}

// Response is what the frontend captured for one trial.
type Response struct {
	Value        string
	ReactionTime time.Duration
}

// Task is a plan of trials. Implementations are pure data sources; the
// Runner owns timing, persistence, and scoring.
type Task interface {
	Name() string
	TrialCount() int
	// Trial returns the stimulus for a 1-based trial number.
	Trial(n int) (Stimulus, error)
}

// Frontend presents stimuli and captures responses. The GUI implements
// this in production; tests and the CLI dry-run mode use scripted ones.
type Frontend interface {
	Present(ctx context.Context, trialNumber int, stim Stimulus) (Response, error)
}

// Snapshotable is the auto-save capability a running task composes with.
// Snapshot is called at every trial boundary with the full result set so
// far; Restore returns previously saved progress when resuming.
type Snapshotable interface {
	Snapshot(trials []TrialResult) error
	Restore() ([]TrialResult, bool, error)
}

// TrialResult is one completed trial.
type TrialResult struct {
	TrialNumber    int
	Stimulus       string
	Expected       string
	Response       string
	Correct        bool
	ReactionTimeMS float64
	VoiceOnsetMS   float64
	AudioFile      string
	RecordedAt     time.Time
}

// Outcome is what a task run produced.
type Outcome struct {
	TaskName  string
	Trials    []TrialResult
	Completed bool
	Resumed   bool
}

// AutoFrontend answers every stimulus with its expected response after a
// fixed delay. Used by the CLI dry-run mode and tests.
type AutoFrontend struct {
	Delay time.Duration
}

func (f *AutoFrontend) Present(ctx context.Context, _ int, stim Stimulus) (Response, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	return Response{Value: stim.Expected, ReactionTime: f.Delay}, nil
}
