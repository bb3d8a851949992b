// Package battery orchestrates a full assessment run: session lifecycle,
// the per-task trial loops, audio analysis, export, and the crash safety
// net around all of it.
package battery

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"time"

	"battery/internal/audio"
	"battery/internal/config"
	"battery/internal/crash"
	"battery/internal/export"
	"battery/internal/faults"
	"battery/internal/logging"
	"battery/internal/session"
	"battery/internal/store"
	"battery/internal/task"
)

// DefaultTaskNames is the standard battery order.
var DefaultTaskNames = []string{task.StroopName, task.DigitNamingName}

const defaultTrialsPerTask = 20

// TaskBuilder constructs a task plan by registered name. The seed is stable
// for a given session and task, so a resumed run replays the same stimuli.
type TaskBuilder func(name string, trials int, seed int64) (task.Task, error)

// Runner wires every subsystem together and drives sessions end to end.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	manager  *session.Manager
	exporter *export.Exporter
	monitor  *crash.Monitor

	frontend  task.Frontend
	rec       audio.Recorder
	trials    int
	buildTask TaskBuilder
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder sets the audio source for voice-onset tasks. Without one the
// battery runs response-only.
func WithRecorder(rec audio.Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

// WithFrontend replaces the stimulus presentation layer.
func WithFrontend(f task.Frontend) Option {
	return func(r *Runner) { r.frontend = f }
}

// WithMonitor attaches the process crash monitor so panics inside a task
// produce a crash report and an emergency save.
func WithMonitor(m *crash.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithTrialsPerTask overrides the plan length for every task.
func WithTrialsPerTask(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.trials = n
		}
	}
}

// WithTaskBuilder replaces the task registry.
func WithTaskBuilder(b TaskBuilder) Option {
	return func(r *Runner) { r.buildTask = b }
}

func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:       cfg,
		store:     st,
		logger:    logging.NewComponentLogger(logger, "battery"),
		manager:   session.NewManager(cfg, st, logger),
		exporter:  export.New(st, cfg, logger),
		trials:    defaultTrialsPerTask,
		buildTask: NewStandardTask,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewStandardTask builds one of the built-in tasks by registered name.
func NewStandardTask(name string, trials int, seed int64) (task.Task, error) {
	switch name {
	case task.StroopName:
		return task.NewStroop(trials, seed), nil
	case task.DigitNamingName:
		return task.NewDigitNaming(trials, seed), nil
	}
	return nil, faults.Wrap(faults.ErrValidation, "battery", "build task",
		fmt.Sprintf("unknown task %q", name), nil)
}

// CheckForRecovery reports interrupted sessions awaiting a resume or
// discard decision.
func (r *Runner) CheckForRecovery(ctx context.Context) ([]*session.Pending, error) {
	return r.manager.CheckForRecovery(ctx)
}

// Discard abandons an interrupted session. Its exported results stay.
func (r *Runner) Discard(ctx context.Context, p *session.Pending) error {
	return r.manager.Discard(ctx, p)
}

// Start runs a fresh session for a participant through the given tasks.
func (r *Runner) Start(ctx context.Context, participantID string, taskNames []string) error {
	if len(taskNames) == 0 {
		taskNames = DefaultTaskNames
	}
	sess, err := r.manager.Start(ctx, participantID, taskNames)
	if err != nil {
		return err
	}
	return r.runSession(ctx, sess)
}

// Resume picks an interrupted session back up at the trial after the last
// saved one.
func (r *Runner) Resume(ctx context.Context, p *session.Pending) error {
	sess, err := r.manager.Resume(ctx, p)
	if err != nil {
		return err
	}
	return r.runSession(ctx, sess)
}

func (r *Runner) runSession(ctx context.Context, sess *session.Session) error {
	defer sess.Close()

	if r.monitor != nil {
		r.monitor.Attach(sess)
		defer r.monitor.Attach(nil)
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	systemDir := filepath.Join(sess.ParticipantDir(), "system")
	hb := crash.NewHeartbeat(systemDir,
		time.Duration(r.cfg.Session.HeartbeatInterval)*time.Second,
		sess.ID(), sess.ParticipantID(), r.logger)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		hb.Run(bgCtx)
	}()
	go crash.NewWatcher(r.cfg, r.monitor, r.logger).Run(bgCtx)

	logger := r.logger.With(
		logging.String(logging.FieldParticipant, sess.ParticipantID()),
		logging.String(logging.FieldSession, sess.ID()))
	logger.Info("session running",
		logging.Bool("resumed", sess.Resumed()),
		logging.Any("tasks", sess.RemainingTasks()))

	for _, name := range sess.RemainingTasks() {
		if ctx.Err() != nil {
			sess.EmergencySave("session interrupted")
			return ctx.Err()
		}
		if err := r.runTask(ctx, sess, name); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				sess.EmergencySave("session interrupted")
				return err
			}
			// Task-local failure: the rest of the battery still runs.
			logger.Error("task failed",
				logging.String(logging.FieldTask, name),
				logging.Error(err))
		}
	}

	// The heartbeat must be fully stopped before Complete removes its
	// files, or a final tick would recreate them after a clean exit.
	stopBackground()
	<-hbDone

	if err := sess.Complete(ctx); err != nil {
		return err
	}
	logger.Info("session complete")
	return nil
}

func (r *Runner) runTask(ctx context.Context, sess *session.Session, name string) error {
	tk, err := r.buildTask(name, r.trials, taskSeed(sess.ID(), name))
	if err != nil {
		return err
	}

	taskDir, err := sess.BeginTask(ctx, name)
	if err != nil {
		return err
	}
	audioDir := filepath.Join(taskDir, "audio_files")

	frontend := r.frontend
	if frontend == nil {
		frontend = &task.AutoFrontend{}
	}
	var analyzer *audio.Analyzer
	if r.rec != nil {
		analyzer = audio.NewAnalyzer(r.cfg.Audio.AnalysisWorkers, r.cfg.Audio.OnsetThreshold, r.logger)
	}
	runner := &task.Runner{
		Task:      tk,
		Frontend:  frontend,
		Saver:     sess,
		Recorder:  r.rec,
		Analyzer:  analyzer,
		AudioDir:  audioDir,
		RecordFor: time.Duration(r.cfg.Audio.RecordingSeconds * float64(time.Second)),
		Logger:    r.logger,
	}

	var outcome *task.Outcome
	run := func() error {
		o, runErr := runner.Run(ctx)
		outcome = o
		return runErr
	}
	if r.monitor != nil {
		err = r.monitor.Guard("task "+name, run)
	} else {
		err = run()
	}
	if analyzer != nil {
		analyzer.Close()
	}
	if err != nil {
		return err
	}

	if err := sess.CompleteTask(ctx, outcome.Trials); err != nil {
		return err
	}

	rec, err := r.store.GetSession(ctx, sess.ID())
	if err != nil {
		return err
	}
	if _, err := r.exporter.Export(ctx, &export.Request{
		Session:  rec,
		TaskName: name,
		Trials:   outcome.Trials,
		Dir:      taskDir,
		AudioDir: audioDir,
	}); err != nil {
		// The trials are safe in the store; a later export run can retry.
		r.logger.Warn("export failed, results retained for retry",
			logging.String(logging.FieldTask, name),
			logging.Error(err))
	}
	return nil
}

// ExportSession re-runs export for every task of a recorded session that
// has trials in the store. Already-exported tasks whose files are intact
// are skipped; lost or altered files are rewritten. Returns the export
// records touched.
func (r *Runner) ExportSession(ctx context.Context, sessionID string) ([]*store.Export, error) {
	rec, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var results []*store.Export
	for _, name := range rec.TaskQueue {
		rows, err := r.store.ListTrials(ctx, sessionID, name)
		if err != nil {
			return results, err
		}
		if len(rows) == 0 {
			continue
		}
		trials := make([]task.TrialResult, len(rows))
		for i, row := range rows {
			trials[i] = task.TrialResult{
				TrialNumber:    row.TrialNumber,
				Stimulus:       row.Stimulus,
				Expected:       row.Expected,
				Response:       row.Response,
				Correct:        row.Correct,
				ReactionTimeMS: row.ReactionTimeMS,
				VoiceOnsetMS:   row.VoiceOnsetMS,
				RecordedAt:     row.RecordedAt,
			}
		}

		// Reuse the original destination when a prior export recorded one;
		// otherwise the file lands in the participant directory.
		dir := r.cfg.ParticipantDir(rec.ParticipantID)
		if prior, err := r.store.GetExport(ctx, sessionID, name); err == nil {
			dir = filepath.Dir(prior.FilePath)
		}

		exp, err := r.exporter.Export(ctx, &export.Request{
			Session:  rec,
			TaskName: name,
			Trials:   trials,
			Dir:      dir,
		})
		if err != nil {
			return results, err
		}
		results = append(results, exp)
	}
	return results, nil
}

// taskSeed derives a stable stimulus seed from the session identity so a
// resumed task replays the exact plan it started with.
func taskSeed(sessionID, taskName string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(taskName))
	return int64(h.Sum64())
}
