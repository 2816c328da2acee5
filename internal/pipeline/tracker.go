// Package pipeline schedules recognition of image chunks across a bounded
// pool of workers and aggregates their fractional progress into one monotonic
// batch-progress value.
package pipeline

import "sync"

// Tracker aggregates per-worker recognition progress for one batch. The
// published value never regresses: observers see the running maximum of every
// computed fraction, capped at 0.99 until the batch fully completes.
type Tracker struct {
	mu        sync.Mutex
	total     int
	inflight  []float64
	completed int
	published float64
}

// NewTracker creates a Tracker for total chunks spread over workers workers.
func NewTracker(total, workers int) *Tracker {
	return &Tracker{
		total:    total,
		inflight: make([]float64, workers),
	}
}

// Report records an in-flight fraction for the worker's current chunk and
// republishes batch progress.
func (t *Tracker) Report(worker int, fraction float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[worker] = fraction
	t.publishLocked()
}

// CompleteChunk moves one chunk from in-flight to completed for the worker.
// The in-flight value resets in the same critical section as the counter
// increment so a just-finished chunk is never counted twice.
func (t *Tracker) CompleteChunk(worker int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[worker] = 0
	t.completed++
	t.publishLocked()
}

// Finish forces progress to exactly 1. Called once, after every chunk has
// been recognized and its records extracted.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = 1
}

// Progress returns the last published batch progress. Values are monotonic
// for the lifetime of the batch: in [0, 0.99] while processing and exactly 1
// on completion.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}

func (t *Tracker) publishLocked() {
	if t.total == 0 {
		return
	}
	sum := float64(t.completed)
	for _, f := range t.inflight {
		sum += f
	}
	value := sum / float64(t.total)
	if value > 0.99 {
		value = 0.99
	}
	if value > t.published {
		t.published = value
	}
}
