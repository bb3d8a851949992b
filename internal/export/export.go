// Package export writes completed task results to their final on-disk form
// and records the export so a retry never duplicates data.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"battery/internal/config"
	"battery/internal/faults"
	"battery/internal/fileutil"
	"battery/internal/logging"
	"battery/internal/store"
	"battery/internal/task"
)

// Request describes one task's results to export.
type Request struct {
	Session       *store.Session
	TaskName      string
	Trials        []task.TrialResult
	Dir           string
	AudioDir      string
	EmergencySave bool
}

// Exporter writes result files with verification and bounded retry.
type Exporter struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
}

// New builds an Exporter.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Exporter{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "export"),
	}
}

// Export writes the results file for one task. Calling it again for the
// same session and task returns the existing record without writing a
// second file. Transient write failures are retried with doubling backoff
// before surfacing as a recoverable write error.
func (e *Exporter) Export(ctx context.Context, req *Request) (*store.Export, error) {
	if existing, err := e.store.GetExport(ctx, req.Session.ID, req.TaskName); err == nil {
		if fileMatches(existing.FilePath, existing.Checksum) {
			e.logger.Info("results already exported",
				logging.String(logging.FieldTask, req.TaskName),
				logging.String("file", existing.FilePath))
			return existing, nil
		}
		// Recorded file is gone or altered; fall through and rewrite it.
	}

	attempts := e.cfg.Session.ExportRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(e.cfg.Session.ExportBackoffSeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		record, err := e.writeOnce(ctx, req)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("export succeeded after retry",
					logging.String(logging.FieldTask, req.TaskName),
					logging.Int("attempt", attempt))
			}
			return record, nil
		}
		lastErr = err
		e.logger.Warn("export attempt failed",
			logging.String(logging.FieldTask, req.TaskName),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, faults.Wrap(faults.ErrWrite, "export", "export",
		fmt.Sprintf("write results for %s after %d attempts", req.TaskName, attempts), lastErr)
}

func (e *Exporter) writeOnce(ctx context.Context, req *Request) (*store.Export, error) {
	path := filepath.Join(req.Dir, req.TaskName+"_results.txt")
	content, checksum := renderResults(req)

	if err := fileutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	if err := verifyResultsFile(path, checksum, len(req.Trials)); err != nil {
		return nil, err
	}

	record := &store.Export{
		SessionID:  req.Session.ID,
		TaskName:   req.TaskName,
		FilePath:   path,
		Checksum:   checksum,
		TrialCount: len(req.Trials),
	}
	if err := e.store.RecordExport(ctx, record); err != nil {
		return nil, err
	}
	e.logger.Info("results exported",
		logging.String(logging.FieldParticipant, req.Session.ParticipantID),
		logging.String(logging.FieldTask, req.TaskName),
		logging.Int("trials", len(req.Trials)),
		logging.String("file", path))
	return record, nil
}

var csvHeaders = []string{
	"trial_number", "stimulus", "expected", "response", "correct",
	"reaction_time_ms", "voice_onset_ms", "audio_file",
}

func renderResults(req *Request) (content, checksum string) {
	var csv strings.Builder
	csv.WriteString(strings.Join(csvHeaders, ",") + "\n")
	for _, trial := range req.Trials {
		row := []string{
			strconv.Itoa(trial.TrialNumber),
			trial.Stimulus,
			trial.Expected,
			trial.Response,
			strconv.FormatBool(trial.Correct),
			formatMS(trial.ReactionTimeMS),
			formatMS(trial.VoiceOnsetMS),
			audioBase(trial.AudioFile),
		}
		csv.WriteString(strings.Join(row, ",") + "\n")
	}
	sum := sha256.Sum256([]byte(csv.String()))
	checksum = hex.EncodeToString(sum[:])

	rule := strings.Repeat("=", 80)
	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%s TASK DATA\n", strings.ToUpper(strings.ReplaceAll(req.TaskName, "_", " ")))
	b.WriteString("Custom Tests Battery\n")
	b.WriteString(rule + "\n\n")

	b.WriteString("PARTICIPANT INFORMATION:\n")
	fmt.Fprintf(&b, "Participant ID: %s\n", req.Session.ParticipantID)
	fmt.Fprintf(&b, "Session ID: %s\n", req.Session.ID)
	fmt.Fprintf(&b, "Save timestamp: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Audio folder path: %s\n", req.AudioDir)
	fmt.Fprintf(&b, "Emergency save: %s\n\n", yesNo(req.EmergencySave))

	b.WriteString("TRIAL DATA (CSV FORMAT):\n")
	b.WriteString(csv.String())
	b.WriteString("\n")

	writeSummary(&b, req.Trials)

	b.WriteString("\nDATA INTEGRITY:\n")
	fmt.Fprintf(&b, "Data checksum: %s\n", checksum)
	fmt.Fprintf(&b, "Save method: %s\n", saveMethod(req.EmergencySave))

	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "END OF %s TASK DATA FILE\n", strings.ToUpper(strings.ReplaceAll(req.TaskName, "_", " ")))
	b.WriteString(rule + "\n")
	return b.String(), checksum
}

func writeSummary(b *strings.Builder, trials []task.TrialResult) {
	b.WriteString("TASK PERFORMANCE SUMMARY:\n")
	fmt.Fprintf(b, "Total trials: %d\n", len(trials))
	if len(trials) == 0 {
		return
	}

	correct := 0
	var rts []float64
	onsets := 0
	for _, trial := range trials {
		if trial.Correct {
			correct++
		}
		if trial.ReactionTimeMS > 0 {
			rts = append(rts, trial.ReactionTimeMS)
		}
		if trial.VoiceOnsetMS >= 0 {
			onsets++
		}
	}
	fmt.Fprintf(b, "Correct responses: %d/%d (%.1f%%)\n",
		correct, len(trials), 100*float64(correct)/float64(len(trials)))
	fmt.Fprintf(b, "Trials with voice onset: %d/%d\n", onsets, len(trials))

	if len(rts) > 0 {
		sort.Float64s(rts)
		fmt.Fprintf(b, "Mean RT: %.1f ms\n", mean(rts))
		fmt.Fprintf(b, "Median RT: %.1f ms\n", median(rts))
		fmt.Fprintf(b, "RT standard deviation: %.1f ms\n", stddev(rts))
		fmt.Fprintf(b, "Min RT: %.1f ms\n", rts[0])
		fmt.Fprintf(b, "Max RT: %.1f ms\n", rts[len(rts)-1])
	}
}

// verifyResultsFile re-reads the written file and checks the trial rows and
// checksum line survived the round trip.
func verifyResultsFile(path, checksum string, trialCount int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("verify read: %w", err)
	}
	text := string(data)
	if !strings.Contains(text, "Data checksum: "+checksum) {
		return fmt.Errorf("verify %s: checksum line missing", path)
	}
	start := strings.Index(text, "TRIAL DATA (CSV FORMAT):\n")
	if start < 0 {
		return fmt.Errorf("verify %s: trial section missing", path)
	}
	section := text[start:]
	lines := strings.Split(section, "\n")
	// Section header + CSV header + one line per trial.
	if len(lines) < trialCount+2 {
		return fmt.Errorf("verify %s: expected %d trial rows", path, trialCount)
	}
	return nil
}

func fileMatches(path, checksum string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "Data checksum: "+checksum)
}

func audioBase(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func formatMS(v float64) string {
	if v < 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func saveMethod(emergency bool) string {
	if emergency {
		return "EMERGENCY"
	}
	return "STANDARD"
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stddev(values []float64) float64 {
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}
