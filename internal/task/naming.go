package task

import (
	"fmt"
	"math/rand"
	"strconv"
)

// DigitNamingName is the registered name of the spoken digit naming task.
const DigitNamingName = "digit_naming"

// DigitNamingTask presents single digits for the participant to name aloud.
// Scoring is on the spoken response; the voice onset from the audio pipeline
// is the primary latency measure. Consecutive trials never repeat a digit.
type DigitNamingTask struct {
	stimuli []Stimulus
}

// NewDigitNaming builds a plan of n trials from the given seed.
func NewDigitNaming(n int, seed int64) *DigitNamingTask {
	rng := rand.New(rand.NewSource(seed))
	stimuli := make([]Stimulus, n)
	last := -1
	for i := range stimuli {
		digit := rng.Intn(10)
		for digit == last {
			digit = rng.Intn(10)
		}
		last = digit
		label := strconv.Itoa(digit)
		stimuli[i] = Stimulus{
			Display:  label,
			Expected: label,
		}
	}
	return &DigitNamingTask{stimuli: stimuli}
}

func (d *DigitNamingTask) Name() string { return DigitNamingName }

func (d *DigitNamingTask) TrialCount() int { return len(d.stimuli) }

func (d *DigitNamingTask) Trial(n int) (Stimulus, error) {
	if n < 1 || n > len(d.stimuli) {
		return Stimulus{}, fmt.Errorf("digit naming: trial %d out of range 1..%d", n, len(d.stimuli))
	}
	return d.stimuli[n-1], nil
}
