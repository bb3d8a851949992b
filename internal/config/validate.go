package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataRoot == "" {
		return errors.New("paths.data_root must be set")
	}
	if c.Paths.DataRoot == c.Paths.LogDir {
		return errors.New("paths.log_dir must differ from paths.data_root")
	}
	return nil
}

func (c *Config) validateAudio() error {
	switch c.Audio.SampleRate {
	case 8000, 16000, 22050, 44100, 48000:
	default:
		return fmt.Errorf("audio.sample_rate %d is not a supported rate", c.Audio.SampleRate)
	}
	if c.Audio.OnsetThreshold >= 1 {
		return errors.New("audio.onset_threshold must be below 1.0")
	}
	if c.Audio.AnalysisWorkers > 16 {
		return errors.New("audio.analysis_workers must be 16 or fewer")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.MemoryWarnPercent > 100 {
		return errors.New("monitor.memory_warn_percent must be at most 100")
	}
	if c.Monitor.MemoryCriticalPercent > 100 {
		return errors.New("monitor.memory_critical_percent must be at most 100")
	}
	if c.Monitor.MemoryCriticalPercent < c.Monitor.MemoryWarnPercent {
		return errors.New("monitor.memory_critical_percent must be at least memory_warn_percent")
	}
	if c.Monitor.CPUWarnPercent > 100 {
		return errors.New("monitor.cpu_warn_percent must be at most 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
