package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSession()
	c.normalizeAudio()
	c.normalizeMonitor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataRoot) == "" {
		c.Paths.DataRoot = defaultDataRoot
	}
	if c.Paths.DataRoot, err = expandPath(c.Paths.DataRoot); err != nil {
		return fmt.Errorf("paths.data_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSession() {
	if c.Session.StaleAfterDays <= 0 {
		c.Session.StaleAfterDays = defaultStaleAfterDays
	}
	if c.Session.HeartbeatInterval <= 0 {
		c.Session.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Session.ExportRetries <= 0 {
		c.Session.ExportRetries = defaultExportRetries
	}
	if c.Session.ExportBackoffSeconds <= 0 {
		c.Session.ExportBackoffSeconds = defaultExportBackoff
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.RecordingSeconds <= 0 {
		c.Audio.RecordingSeconds = defaultRecordingSeconds
	}
	if c.Audio.AnalysisWorkers <= 0 {
		c.Audio.AnalysisWorkers = defaultAnalysisWorkers
	}
	if c.Audio.OnsetThreshold <= 0 {
		c.Audio.OnsetThreshold = defaultOnsetThreshold
	}
}

func (c *Config) normalizeMonitor() {
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = defaultMonitorPollInterval
	}
	if c.Monitor.MemoryWarnPercent <= 0 {
		c.Monitor.MemoryWarnPercent = defaultMemoryWarnPercent
	}
	if c.Monitor.MemoryCriticalPercent <= 0 {
		c.Monitor.MemoryCriticalPercent = defaultMemoryCriticalPercent
	}
	if c.Monitor.CPUWarnPercent <= 0 {
		c.Monitor.CPUWarnPercent = defaultCPUWarnPercent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
