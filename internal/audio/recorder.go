package audio

import (
	"context"
	"math"
	"time"
)

// Clip is a mono recording in normalized float samples.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	seconds := float64(len(c.Samples)) / float64(c.SampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Recorder captures one trial's worth of audio.
type Recorder interface {
	// Record captures audio for the given duration, honoring ctx cancellation.
	Record(ctx context.Context, duration time.Duration) (Clip, error)
}

// SyntheticRecorder produces deterministic clips for tests and dry runs:
// silence until Onset, then a sine tone. Amplitude 0 yields pure silence.
type SyntheticRecorder struct {
	SampleRate int
	Onset      time.Duration
	Amplitude  float64
	ToneHz     float64
}

// Record synthesizes a clip of the requested duration.
func (r *SyntheticRecorder) Record(ctx context.Context, duration time.Duration) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}

	rate := r.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	tone := r.ToneHz
	if tone <= 0 {
		tone = 220
	}

	total := int(duration.Seconds() * float64(rate))
	onsetSample := int(r.Onset.Seconds() * float64(rate))
	samples := make([]float64, total)
	for i := onsetSample; i < total; i++ {
		t := float64(i-onsetSample) / float64(rate)
		samples[i] = r.Amplitude * math.Sin(2*math.Pi*tone*t)
	}
	return Clip{Samples: samples, SampleRate: rate}, nil
}
