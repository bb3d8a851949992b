package audio

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"battery/internal/logging"
)

const (
	analysisWindow   = 20 * time.Millisecond
	analysisHop      = 10 * time.Millisecond
	baselineWindows  = 10
	sustainedWindows = 3
)

// ErrAnalyzerClosed is returned by Submit after Close.
var ErrAnalyzerClosed = errors.New("audio: analyzer closed")

// OnsetResult is the measured voice onset for one trial.
type OnsetResult struct {
	TrialNumber int
	// OnsetMS is the onset latency from the start of the clip, in
	// milliseconds. Negative when no onset was detected.
	OnsetMS    float64
	Confidence float64
	Err        error
}

type onsetJob struct {
	trialNumber int
	clip        Clip
	seq         int
}

// Analyzer measures voice onsets on a bounded worker pool. Results arrive on
// Results() in submission order regardless of per-clip analysis time, so a
// task can apply trial N's latency before it scores trial N+1.
type Analyzer struct {
	threshold float64
	logger    *slog.Logger

	jobs    chan onsetJob
	results chan OnsetResult
	done    chan struct{}
	quit    chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	nextSeq   int
	emitSeq   int
	completed map[int]OnsetResult
	closed    bool

	wg sync.WaitGroup
}

// NewAnalyzer starts workers goroutines analyzing clips against the given
// onset threshold.
func NewAnalyzer(workers int, threshold float64, logger *slog.Logger) *Analyzer {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Analyzer{
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "audio"),
		jobs:      make(chan onsetJob, workers),
		results:   make(chan OnsetResult, workers),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
		completed: make(map[int]OnsetResult),
	}
	a.cond = sync.NewCond(&a.mu)

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	go a.emitter()
	return a
}

// Submit queues a clip for onset analysis. Blocks when all workers are busy
// and the queue is full. Submit must not race with Close; the trial loop
// owns both.
func (a *Analyzer) Submit(ctx context.Context, trialNumber int, clip Clip) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAnalyzerClosed
	}
	seq := a.nextSeq
	a.nextSeq++
	a.mu.Unlock()

	job := onsetJob{trialNumber: trialNumber, clip: clip, seq: seq}
	select {
	case a.jobs <- job:
		return nil
	case <-ctx.Done():
		// The sequence slot must still resolve or the emitter stalls.
		a.finish(seq, OnsetResult{TrialNumber: trialNumber, OnsetMS: -1, Err: ctx.Err()})
		return ctx.Err()
	}
}

// Results delivers one OnsetResult per submitted clip, in submission order.
// The channel closes once the analyzer shuts down.
func (a *Analyzer) Results() <-chan OnsetResult {
	return a.results
}

// Close stops accepting work, waits for the workers to finish, and closes
// the results channel. Results nobody consumed by then are dropped; a
// caller that abandoned its drain loop must still be able to shut the
// analyzer down.
func (a *Analyzer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()

	close(a.quit)
	close(a.jobs)
	a.wg.Wait()
	<-a.done
}

func (a *Analyzer) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		onset, confidence := DetectOnset(job.clip, a.threshold)
		a.finish(job.seq, OnsetResult{
			TrialNumber: job.trialNumber,
			OnsetMS:     onset,
			Confidence:  confidence,
		})
	}
}

func (a *Analyzer) finish(seq int, result OnsetResult) {
	a.mu.Lock()
	a.completed[seq] = result
	a.cond.Broadcast()
	a.mu.Unlock()
}

// emitter releases results strictly in sequence order and owns closing the
// results channel once the analyzer is closed and drained.
func (a *Analyzer) emitter() {
	defer close(a.done)
	defer close(a.results)
	for {
		a.mu.Lock()
		for {
			if _, ok := a.completed[a.emitSeq]; ok {
				break
			}
			if a.closed && a.emitSeq >= a.nextSeq {
				a.mu.Unlock()
				return
			}
			a.cond.Wait()
		}
		result := a.completed[a.emitSeq]
		delete(a.completed, a.emitSeq)
		a.emitSeq++
		a.mu.Unlock()

		select {
		case a.results <- result:
		case <-a.quit:
			return
		}
	}
}

// DetectOnset finds the first sustained energy rise in a clip. It computes
// RMS over 20ms windows with a 10ms hop, takes a baseline from the earliest
// windows, and reports the start of the first run of three consecutive
// windows above both the configured threshold and the baseline noise floor.
// Returns -1 and zero confidence when nothing crosses.
func DetectOnset(clip Clip, threshold float64) (onsetMS, confidence float64) {
	if clip.SampleRate <= 0 || len(clip.Samples) == 0 {
		return -1, 0
	}

	windowSize := int(analysisWindow.Seconds() * float64(clip.SampleRate))
	hopSize := int(analysisHop.Seconds() * float64(clip.SampleRate))
	if windowSize <= 0 || hopSize <= 0 || len(clip.Samples) < windowSize {
		return -1, 0
	}

	var rms []float64
	for i := 0; i+windowSize <= len(clip.Samples); i += hopSize {
		var sum float64
		for _, s := range clip.Samples[i : i+windowSize] {
			sum += s * s
		}
		rms = append(rms, math.Sqrt(sum/float64(windowSize)))
	}

	baselineCount := baselineWindows
	if baselineCount > len(rms)/4 && len(rms) >= 4 {
		baselineCount = len(rms) / 4
	}
	if baselineCount < 1 {
		baselineCount = 1
	}
	var mean, variance float64
	for _, v := range rms[:baselineCount] {
		mean += v
	}
	mean /= float64(baselineCount)
	for _, v := range rms[:baselineCount] {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(baselineCount))

	limit := mean + 3*std
	if threshold > limit {
		limit = threshold
	}

	consecutive := 0
	for i, v := range rms {
		if v > limit {
			consecutive++
			if consecutive >= sustainedWindows {
				start := i - (sustainedWindows - 1)
				onsetMS = float64(start) * analysisHop.Seconds() * 1000
				if std > 0 {
					confidence = math.Min(1, (rms[start]-mean)/(4*std))
				} else {
					confidence = 1
				}
				return onsetMS, confidence
			}
		} else {
			consecutive = 0
		}
	}
	return -1, 0
}
