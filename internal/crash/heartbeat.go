package crash

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"battery/internal/fileutil"
	"battery/internal/logging"
)

// Heartbeat file names, shared with session recovery: a stale heartbeat next
// to a live snapshot is how a later launch tells a crash from a still-running
// instance.
const (
	HeartbeatFile     = "app_heartbeat.txt"
	HeartbeatMetaFile = "app_heartbeat_metadata.json"
)

// HeartbeatMetadata describes the process behind a heartbeat.
type HeartbeatMetadata struct {
	PID           int    `json:"pid"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	StartedAt     string `json:"started_at"`
	LastBeat      string `json:"last_beat"`
}

// Heartbeat periodically stamps two files in a session's system directory so
// an abrupt death is detectable by the timestamp going stale.
type Heartbeat struct {
	dir      string
	interval time.Duration
	meta     HeartbeatMetadata
	logger   *slog.Logger
}

func NewHeartbeat(systemDir string, interval time.Duration, sessionID, participantID string, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Heartbeat{
		dir:      systemDir,
		interval: interval,
		meta: HeartbeatMetadata{
			PID:           os.Getpid(),
			SessionID:     sessionID,
			ParticipantID: participantID,
			StartedAt:     time.Now().Format(time.RFC3339),
		},
		logger: logging.NewComponentLogger(logger, "heartbeat"),
	}
}

// Run beats immediately and then on every interval until ctx is cancelled.
// Beat failures are logged and retried on the next tick; a full disk must
// not take the battery down.
func (h *Heartbeat) Run(ctx context.Context) {
	h.beat()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *Heartbeat) beat() {
	now := time.Now().Format(time.RFC3339)
	if err := fileutil.WriteFileAtomic(filepath.Join(h.dir, HeartbeatFile), []byte(now+"\n"), 0o644); err != nil {
		h.logger.Warn("heartbeat write failed", logging.Error(err))
		return
	}
	h.meta.LastBeat = now
	data, err := json.MarshalIndent(h.meta, "", "  ")
	if err != nil {
		h.logger.Warn("heartbeat metadata encode failed", logging.Error(err))
		return
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(h.dir, HeartbeatMetaFile), data, 0o644); err != nil {
		h.logger.Warn("heartbeat metadata write failed", logging.Error(err))
	}
}

// ReadHeartbeat returns the timestamp of the last beat in systemDir.
func ReadHeartbeat(systemDir string) (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(systemDir, HeartbeatFile))
	if err != nil {
		return time.Time{}, err
	}
	raw := string(data)
	for len(raw) > 0 && (raw[len(raw)-1] == '\n' || raw[len(raw)-1] == '\r') {
		raw = raw[:len(raw)-1]
	}
	return time.Parse(time.RFC3339, raw)
}
