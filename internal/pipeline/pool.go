package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wenqian/expense-scanner/internal/recognize"
	"github.com/wenqian/expense-scanner/internal/segment"
)

// DefaultMaxWorkers is the configured ceiling on concurrent recognizers.
const DefaultMaxWorkers = 4

// Outcome is the recognized text for one chunk. Outcomes are unordered; the
// chunk ordinal identifies the source position but recognition completion
// order is arbitrary.
type Outcome struct {
	Index int
	Text  string
}

// Pool runs recognition over a fixed set of chunks with bounded concurrency.
type Pool struct {
	// MaxWorkers caps the worker count; the effective pool size is
	// min(MaxWorkers, len(chunks)).
	MaxWorkers int
}

// NewPool creates a Pool, applying DefaultMaxWorkers when max is not
// positive.
func NewPool(max int) Pool {
	if max <= 0 {
		max = DefaultMaxWorkers
	}
	return Pool{MaxWorkers: max}
}

// Workers returns the effective pool size for a batch of chunkCount chunks:
// min(MaxWorkers, chunkCount) — never more workers than there is work.
func (p Pool) Workers(chunkCount int) int {
	workers := p.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	if chunkCount < workers {
		workers = chunkCount
	}
	return workers
}

// Process recognizes every chunk and returns the outcomes, unordered. All
// chunks are enqueued up front; each worker holds its own recognizer,
// acquired before processing starts and released exactly once after all
// workers have exited, whether or not the worker ever processed a chunk.
//
// onOutcome, if non-nil, is invoked from worker goroutines as each chunk
// completes and must be safe for concurrent use.
//
// The first recognizer error fails the whole batch: remaining workers stop
// pulling chunks, in-flight work finishes, and the error is returned once.
// No partial outcomes are returned on failure.
func (p Pool) Process(ctx context.Context, chunks []segment.Chunk, factory recognize.Factory, tracker *Tracker, onOutcome func(Outcome)) ([]Outcome, error) {
	if len(chunks) == 0 {
		tracker.Finish()
		return nil, nil
	}

	workerCount := p.Workers(len(chunks))

	recognizers := make([]recognize.Recognizer, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		rec, err := factory()
		if err != nil {
			for _, r := range recognizers {
				r.Close()
			}
			return nil, fmt.Errorf("creating recognizer %d: %w", i, err)
		}
		recognizers = append(recognizers, rec)
	}
	defer func() {
		for i, rec := range recognizers {
			if err := rec.Close(); err != nil {
				slog.Warn("Failed to close recognizer", "worker", i, "error", err)
			}
		}
	}()

	queue := make(chan segment.Chunk, len(chunks))
	for _, chunk := range chunks {
		queue <- chunk
	}
	close(queue)

	var (
		failed   atomic.Bool
		errOnce  sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errOnce.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errOnce.Unlock()
		failed.Store(true)
	}

	perWorker := make([][]Outcome, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(id int, rec recognize.Recognizer) {
			defer wg.Done()
			for chunk := range queue {
				if failed.Load() {
					return
				}
				text, err := rec.Recognize(ctx, chunk.Data, func(fraction float64) {
					tracker.Report(id, fraction)
				})
				if err != nil {
					fail(fmt.Errorf("recognizing chunk %d: %w", chunk.Index, err))
					return
				}
				tracker.CompleteChunk(id)
				outcome := Outcome{Index: chunk.Index, Text: text}
				perWorker[id] = append(perWorker[id], outcome)
				if onOutcome != nil {
					onOutcome(outcome)
				}
			}
		}(i, recognizers[i])
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	outcomes := make([]Outcome, 0, len(chunks))
	for _, results := range perWorker {
		outcomes = append(outcomes, results...)
	}
	tracker.Finish()
	return outcomes, nil
}
