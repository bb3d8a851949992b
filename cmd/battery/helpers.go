package main

import (
	"time"

	"battery/internal/audio"
	"battery/internal/battery"
	"battery/internal/config"
)

// syntheticRecorderOption builds the microphone stand-in used by dry runs
// and hardware-less test stations.
func syntheticRecorderOption(cfg *config.Config) battery.Option {
	return battery.WithRecorder(&audio.SyntheticRecorder{
		SampleRate: cfg.Audio.SampleRate,
		Onset:      300 * time.Millisecond,
		Amplitude:  0.5,
		ToneHz:     440,
	})
}
