// Package audio records trial responses and measures voice onset latency.
//
// Recording hardware hides behind the Recorder interface so tasks and tests
// run against synthetic clips. Onset analysis runs on a worker pool that
// preserves trial order: trial N's result is always delivered before
// trial N+1's, no matter which worker finishes first.
package audio
