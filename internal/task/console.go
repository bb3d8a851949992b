package task

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ConsoleFrontend presents stimuli on a terminal and reads one typed line
// per trial. Reaction time is wall time from prompt to newline. A read
// blocks until input arrives; cancellation takes effect at the next trial
// boundary.
type ConsoleFrontend struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func (f *ConsoleFrontend) Present(ctx context.Context, trialNumber int, stim Stimulus) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if f.scanner == nil {
		f.scanner = bufio.NewScanner(f.In)
	}
	if stim.Ink != "" {
		fmt.Fprintf(f.Out, "[%d] %s (ink: %s) > ", trialNumber, stim.Display, stim.Ink)
	} else {
		fmt.Fprintf(f.Out, "[%d] %s > ", trialNumber, stim.Display)
	}
	start := time.Now()
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return Response{}, err
		}
		return Response{}, io.EOF
	}
	return Response{
		Value:        strings.TrimSpace(f.scanner.Text()),
		ReactionTime: time.Since(start),
	}, nil
}

// DiscardSaver satisfies Snapshotable without persisting anything. Used
// when a task runs outside a session, where there is no state to recover.
type DiscardSaver struct{}

func (DiscardSaver) Snapshot([]TrialResult) error          { return nil }
func (DiscardSaver) Restore() ([]TrialResult, bool, error) { return nil, false, nil }
