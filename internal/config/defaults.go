package config

const (
	defaultDataRoot              = "~/Documents/Custom Tests Battery Data"
	defaultLogDir                = "~/.local/share/battery/logs"
	defaultStaleAfterDays        = 7
	defaultHeartbeatInterval     = 5
	defaultExportRetries         = 3
	defaultExportBackoff         = 1
	defaultSampleRate            = 44100
	defaultRecordingSeconds      = 2.5
	defaultAnalysisWorkers       = 2
	defaultOnsetThreshold        = 0.02
	defaultMonitorPollInterval   = 10
	defaultMemoryWarnPercent     = 85.0
	defaultMemoryCriticalPercent = 95.0
	defaultCPUWarnPercent        = 90.0
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataRoot: defaultDataRoot,
			LogDir:   defaultLogDir,
		},
		Session: Session{
			StaleAfterDays:       defaultStaleAfterDays,
			HeartbeatInterval:    defaultHeartbeatInterval,
			ExportRetries:        defaultExportRetries,
			ExportBackoffSeconds: defaultExportBackoff,
		},
		Audio: Audio{
			SampleRate:       defaultSampleRate,
			RecordingSeconds: defaultRecordingSeconds,
			AnalysisWorkers:  defaultAnalysisWorkers,
			OnsetThreshold:   defaultOnsetThreshold,
		},
		Monitor: Monitor{
			PollInterval:          defaultMonitorPollInterval,
			MemoryWarnPercent:     defaultMemoryWarnPercent,
			MemoryCriticalPercent: defaultMemoryCriticalPercent,
			CPUWarnPercent:        defaultCPUWarnPercent,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
