package task

import (
	"fmt"
	"math/rand"
)

// StroopName is the registered name of the colour-word task.
const StroopName = "stroop_colorword"

var stroopColors = []string{"red", "blue", "green", "yellow"}

// StroopTask is a colour-word interference plan: a colour name rendered in
// a congruent or incongruent ink, with the ink colour as the correct
// response. The plan is generated once up front so a resumed session
// replays the same stimuli (the seed derives from the session).
type StroopTask struct {
	stimuli []Stimulus
}

// NewStroop builds a plan of n trials from the given seed. Half the trials
// are incongruent, interleaved deterministically.
func NewStroop(n int, seed int64) *StroopTask {
	rng := rand.New(rand.NewSource(seed))
	stimuli := make([]Stimulus, n)
	for i := range stimuli {
		word := stroopColors[rng.Intn(len(stroopColors))]
		ink := word
		if i%2 == 1 {
			for ink == word {
				ink = stroopColors[rng.Intn(len(stroopColors))]
			}
		}
		stimuli[i] = Stimulus{
			Display:  word,
			Ink:      ink,
			Expected: ink,
		}
	}
	return &StroopTask{stimuli: stimuli}
}

func (s *StroopTask) Name() string { return StroopName }

func (s *StroopTask) TrialCount() int { return len(s.stimuli) }

func (s *StroopTask) Trial(n int) (Stimulus, error) {
	if n < 1 || n > len(s.stimuli) {
		return Stimulus{}, fmt.Errorf("stroop: trial %d out of range 1..%d", n, len(s.stimuli))
	}
	return s.stimuli[n-1], nil
}
