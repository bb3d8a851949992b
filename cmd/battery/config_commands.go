package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"battery/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand())
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if overwrite {
				if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the resolved configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults are shown")
			}
			rows := [][]string{
				{"paths.data_root", cfg.Paths.DataRoot},
				{"paths.log_dir", cfg.Paths.LogDir},
				{"session.stale_after_days", fmt.Sprintf("%d", cfg.Session.StaleAfterDays)},
				{"session.heartbeat_interval", fmt.Sprintf("%d", cfg.Session.HeartbeatInterval)},
				{"session.export_retries", fmt.Sprintf("%d", cfg.Session.ExportRetries)},
				{"session.export_backoff_seconds", fmt.Sprintf("%d", cfg.Session.ExportBackoffSeconds)},
				{"audio.sample_rate", fmt.Sprintf("%d", cfg.Audio.SampleRate)},
				{"audio.recording_seconds", fmt.Sprintf("%g", cfg.Audio.RecordingSeconds)},
				{"audio.analysis_workers", fmt.Sprintf("%d", cfg.Audio.AnalysisWorkers)},
				{"audio.onset_threshold", fmt.Sprintf("%g", cfg.Audio.OnsetThreshold)},
				{"monitor.poll_interval", fmt.Sprintf("%d", cfg.Monitor.PollInterval)},
				{"monitor.memory_warn_percent", fmt.Sprintf("%g", cfg.Monitor.MemoryWarnPercent)},
				{"monitor.cpu_warn_percent", fmt.Sprintf("%g", cfg.Monitor.CPUWarnPercent)},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
				{"logging.retention_days", fmt.Sprintf("%d", cfg.Logging.RetentionDays)},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load("")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
