package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Progress window covered by the chunk upload phase. Checkpoints before and
// after this window belong to the pipeline.
const (
	uploadProgressFloor = 20
	uploadProgressSpan  = 50
	uploadProgressCeil  = 70
)

// ProgressFunc receives absolute job progress values from the orchestrator.
type ProgressFunc func(progress int)

// JobLogFunc appends a message to the job's log trail.
type JobLogFunc func(message string)

// ChunkUploadOrchestrator uploads document chunks through an ExtractionClient
// with a bounded number of concurrent in-flight uploads and a fail-fast
// policy: the first chunk error cancels the shared context, stops new work,
// and is returned as the single error after in-flight workers drain. A late
// success that lands after cancellation is discarded.
type ChunkUploadOrchestrator struct {
	client      ExtractionClient
	maxParallel int
}

func NewChunkUploadOrchestrator(client ExtractionClient, maxParallel int) *ChunkUploadOrchestrator {
	if maxParallel <= 0 {
		maxParallel = 3
	}
	return &ChunkUploadOrchestrator{client: client, maxParallel: maxParallel}
}

// UploadChunks uploads all chunks and returns their results ordered by
// original chunk index regardless of completion order. report and logf may
// be nil.
func (o *ChunkUploadOrchestrator) UploadChunks(ctx context.Context, chunks [][]byte, baseLabel string, report ProgressFunc, logf JobLogFunc) ([]ExtractionResult, error) {
	if report == nil {
		report = func(int) {}
	}
	if logf == nil {
		logf = func(string) {}
	}

	total := len(chunks)
	if total == 0 {
		return nil, ErrMergeInconsistency
	}

	// Single chunk: upload inline, no pool overhead.
	if total == 1 {
		result, err := o.client.Upload(ctx, chunks[0], chunkLabel(baseLabel, 1))
		if err != nil {
			return nil, &ChunkUploadError{Chunk: 1, Err: err}
		}
		report(uploadProgressCeil)
		return []ExtractionResult{result}, nil
	}

	workers := o.maxParallel
	if total < workers {
		workers = total
	}
	logf(fmt.Sprintf("Processing %d chunks in parallel (max %d concurrent)", total, workers))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		sem     = semaphore.NewWeighted(int64(workers))
		results = make([]ExtractionResult, total)

		// Protects the completion counter; kept separate from the job's own
		// status/log lock so frequent progress updates from chunk workers
		// never contend with status transitions.
		progressMu sync.Mutex
		completed  int

		errOnce  sync.Once
		firstErr error
	)

	for i := range chunks {
		if ctx.Err() != nil {
			break // fail-fast: stop launching new work
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(idx int, chunk []byte) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := o.client.Upload(ctx, chunk, chunkLabel(baseLabel, idx+1))
			if err != nil {
				errOnce.Do(func() {
					firstErr = &ChunkUploadError{Chunk: idx + 1, Err: err}
					cancel()
				})
				return
			}

			// Another chunk already failed while this one was in flight:
			// the result is discarded and progress stays frozen.
			if ctx.Err() != nil {
				return
			}

			results[idx] = result

			progressMu.Lock()
			completed++
			progress := uploadProgressFloor + int(float64(completed)/float64(total)*uploadProgressSpan)
			if progress > uploadProgressCeil {
				progress = uploadProgressCeil
			}
			progressMu.Unlock()

			report(progress)
			logf(fmt.Sprintf("Chunk %d/%d completed", idx+1, total))
		}(i, chunks[i])
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, result := range results {
		if result == nil {
			return nil, fmt.Errorf("%w: chunk %d produced no result", ErrMergeInconsistency, i+1)
		}
	}
	return results, nil
}

func chunkLabel(base string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", base, n)
}
