package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataRoot string `toml:"data_root"`
	LogDir   string `toml:"log_dir"`
}

// Session contains session lifecycle and export settings.
type Session struct {
	StaleAfterDays       int `toml:"stale_after_days"`
	HeartbeatInterval    int `toml:"heartbeat_interval"`
	ExportRetries        int `toml:"export_retries"`
	ExportBackoffSeconds int `toml:"export_backoff_seconds"`
}

// Audio contains recording and onset analysis settings.
type Audio struct {
	SampleRate       int     `toml:"sample_rate"`
	RecordingSeconds float64 `toml:"recording_seconds"`
	AnalysisWorkers  int     `toml:"analysis_workers"`
	OnsetThreshold   float64 `toml:"onset_threshold"`
}

// Monitor contains crash monitor and resource watch settings.
type Monitor struct {
	PollInterval          int     `toml:"poll_interval"`
	MemoryWarnPercent     float64 `toml:"memory_warn_percent"`
	MemoryCriticalPercent float64 `toml:"memory_critical_percent"`
	CPUWarnPercent        float64 `toml:"cpu_warn_percent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the battery.
//
// Configuration sections by subsystem:
//   - Paths: data root and log directory
//   - Session: staleness window, heartbeat cadence, export retry policy
//   - Audio: recording format and onset analysis
//   - Monitor: crash monitor polling and resource warning thresholds
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Session Session `toml:"session"`
	Audio   Audio   `toml:"audio"`
	Monitor Monitor `toml:"monitor"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/battery/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("battery.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a session needs before it starts.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataRoot,
		c.SystemDir(),
		c.CrashReportDir(),
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SystemDir returns the shared system directory under the data root.
func (c *Config) SystemDir() string {
	return filepath.Join(c.Paths.DataRoot, "system")
}

// DatabasePath returns the session database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.SystemDir(), "battery.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.SystemDir(), "battery.lock")
}

// CrashReportDir returns where crash reports are written.
func (c *Config) CrashReportDir() string {
	return filepath.Join(c.SystemDir(), "crash_reports")
}

// EmergencySaveDir returns where emergency task saves are written for a
// participant.
func (c *Config) EmergencySaveDir(participantID string) string {
	return filepath.Join(c.ParticipantDir(participantID), "system", "emergency_saves")
}

// ParticipantDir returns the directory holding one participant's data.
func (c *Config) ParticipantDir(participantID string) string {
	return filepath.Join(c.Paths.DataRoot, participantID)
}

// SessionStatePath returns the recovery snapshot location for a participant.
func (c *Config) SessionStatePath(participantID string) string {
	return filepath.Join(c.ParticipantDir(participantID), "system", "session_state.json")
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
