package snapshot

import (
	"log/slog"
	"sync"

	"battery/internal/logging"
)

// Writer persists snapshots asynchronously off the trial loop. Updates
// coalesce: if trials outpace the disk, intermediate snapshots are skipped
// and only the newest state is written. Flush and Close force the pending
// state out before returning.
type Writer struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	pending *Snapshot
	closed  bool
	notify  chan struct{}
	done    chan struct{}

	// wmu is held across the disk write itself, so Flush cannot return
	// while a write the background goroutine already claimed is still in
	// flight.
	wmu sync.Mutex
}

// NewWriter starts a background writer for the given snapshot path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Writer{
		path:   path,
		logger: logging.NewComponentLogger(logger, "snapshot"),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Update queues a snapshot for writing, replacing any not-yet-written state.
// The snapshot is copied so callers may keep mutating their own.
func (w *Writer) Update(snap *Snapshot) {
	clone := cloneSnapshot(snap)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending = clone
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Flush returns once the newest queued snapshot is on disk, including one
// the background goroutine had already started writing.
func (w *Writer) Flush() error {
	return w.writePending()
}

// Close flushes pending state and stops the background goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.notify)
	<-w.done
	return w.writePending()
}

func (w *Writer) run() {
	defer close(w.done)
	for range w.notify {
		if err := w.writePending(); err != nil {
			w.logger.Warn("snapshot write failed", logging.Error(err))
		}
	}
}

func (w *Writer) writePending() error {
	w.wmu.Lock()
	defer w.wmu.Unlock()

	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()

	if snap == nil {
		return nil
	}
	return Write(w.path, snap)
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	clone := *snap
	clone.TaskQueue = append([]string(nil), snap.TaskQueue...)
	clone.CompletedTasks = append([]TaskCompletion(nil), snap.CompletedTasks...)
	if snap.CurrentState != nil {
		state := *snap.CurrentState
		state.Trials = append([]TrialRecord(nil), snap.CurrentState.Trials...)
		clone.CurrentState = &state
	}
	return &clone
}
