package crash

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"battery/internal/config"
	"battery/internal/faults"
	"battery/internal/fileutil"
	"battery/internal/logging"
	"battery/internal/textutil"
)

// EmergencySaver is the slice of a session the monitor needs when a panic
// escapes: flush whatever trial data is in memory before the process dies.
type EmergencySaver interface {
	EmergencySave(reason string)
}

// Monitor is the process-wide crash handler. Exactly one is created at
// startup; sessions attach themselves while running so a panic anywhere in
// the battery can still save their in-flight data.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
	saver     EmergencySaver
}

func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "crash"),
	}
}

// Install activates panic interception. A second call is a no-op. Until
// Install has run, Guard executes its function without recovering, so a
// panic during process bootstrap still crashes loudly.
func (m *Monitor) Install() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installed {
		return
	}
	m.installed = true
	m.logger.Debug("crash monitor installed", logging.Int("pid", os.Getpid()))
}

// Teardown deactivates interception and detaches any session. Idempotent.
func (m *Monitor) Teardown() {
	m.mu.Lock()
	m.installed = false
	m.saver = nil
	m.mu.Unlock()
}

// Attach registers the session whose data an emergency save should flush.
// Passing nil detaches.
func (m *Monitor) Attach(s EmergencySaver) {
	m.mu.Lock()
	m.saver = s
	m.mu.Unlock()
}

// Guard runs fn and converts an escaping panic into a crash report plus an
// emergency save of the attached session. The panic does not propagate; the
// caller gets a runtime error instead so shutdown stays orderly.
func (m *Monitor) Guard(name string, fn func() error) (err error) {
	m.mu.Lock()
	active := m.installed
	m.mu.Unlock()
	if !active {
		return fn()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			m.HandlePanic(name, recovered, debug.Stack())
			err = faults.Wrap(faults.ErrRuntime, "crash", name, fmt.Sprintf("panic: %v", recovered), nil)
		}
	}()
	return fn()
}

// HandlePanic records a crash report and triggers an emergency save. It is
// safe to call from a deferred recover in any goroutine.
func (m *Monitor) HandlePanic(name string, recovered any, stack []byte) {
	m.logger.Error("unhandled panic",
		logging.String("operation", name),
		logging.String("panic", fmt.Sprint(recovered)))

	path, err := m.WriteReport(name, recovered, stack)
	if err != nil {
		m.logger.Error("crash report failed", logging.Error(err))
	} else {
		m.logger.Info("crash report written", logging.String("path", path))
	}

	m.EmergencySaveNow(fmt.Sprintf("panic in %s: %v", name, recovered))
}

// EmergencySaveNow flushes the attached session's in-memory data, if one is
// attached. The resource watcher calls this at critical memory pressure.
func (m *Monitor) EmergencySaveNow(reason string) {
	m.mu.Lock()
	saver := m.saver
	m.mu.Unlock()
	if saver != nil {
		saver.EmergencySave(reason)
	}
}

// Report is the persisted form of a crash. The resource snapshot is best
// effort; a crash under memory pressure should not fail to report because
// sampling failed too.
type Report struct {
	Timestamp    string    `json:"timestamp"`
	Operation    string    `json:"operation"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	StackTrace   string    `json:"stack_trace"`
	PID          int       `json:"pid"`
	GoVersion    string    `json:"go_version"`
	OS           string    `json:"os"`
	Resources    Resources `json:"resources"`
}

// WriteReport persists a crash report and returns its path.
func (m *Monitor) WriteReport(name string, recovered any, stack []byte) (string, error) {
	now := time.Now()
	report := Report{
		Timestamp:    now.Format(time.RFC3339),
		Operation:    name,
		ErrorType:    fmt.Sprintf("%T", recovered),
		ErrorMessage: fmt.Sprint(recovered),
		StackTrace:   string(stack),
		PID:          os.Getpid(),
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Resources:    SampleResources(),
	}

	dir := m.cfg.CrashReportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "write report", "create directory", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "write report", "encode", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("CRASH_REPORT_%s.json", now.Format("20060102_150405")))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "write report", "write file", err)
	}
	return path, nil
}

// WriteEmergencySave persists an out-of-band copy of in-memory trial data.
// This is the last-ditch path used when the normal snapshot cannot be
// trusted; payload is whatever the session could gather.
func WriteEmergencySave(cfg *config.Config, participantID, taskName string, payload any) (string, error) {
	dir := cfg.EmergencySaveDir(participantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "emergency save", "create directory", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "emergency save", "encode", err)
	}
	token := textutil.SanitizeToken(taskName)
	if taskName == "" {
		token = "session"
	}
	path := filepath.Join(dir, fmt.Sprintf("EMERGENCY_%s_%s.json", token, time.Now().Format("20060102_150405")))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", faults.Wrap(faults.ErrWrite, "crash", "emergency save", "write file", err)
	}
	return path, nil
}
