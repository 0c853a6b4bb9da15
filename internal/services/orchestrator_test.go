package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractionClient returns a canned result per chunk label and can fail
// selected chunks. It tracks peak concurrency to verify the upload bound.
type fakeExtractionClient struct {
	mu          sync.Mutex
	failLabels  map[string]error
	delay       time.Duration
	running     int32
	maxRunning  int32
	uploadCount int32
}

func (f *fakeExtractionClient) Upload(ctx context.Context, chunk []byte, label string) (ExtractionResult, error) {
	current := atomic.AddInt32(&f.running, 1)
	for {
		max := atomic.LoadInt32(&f.maxRunning)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxRunning, max, current) {
			break
		}
	}
	defer atomic.AddInt32(&f.running, -1)
	atomic.AddInt32(&f.uploadCount, 1)

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	err := f.failLabels[label]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return ExtractionResult{
		"sourceChunk": {Name: "sourceChunk", Value: label, Confidence: 0.9},
	}, nil
}

func TestUploadChunksSingleChunkInline(t *testing.T) {
	client := &fakeExtractionClient{}
	o := NewChunkUploadOrchestrator(client, 3)

	var reported []int
	results, err := o.UploadChunks(context.Background(), [][]byte{[]byte("pdf")}, "noc.pdf",
		func(p int) { reported = append(reported, p) }, nil)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "noc.pdf_chunk_1", results[0]["sourceChunk"].Value)
	assert.Equal(t, []int{70}, reported)
}

func TestUploadChunksPreservesOrder(t *testing.T) {
	client := &fakeExtractionClient{delay: 5 * time.Millisecond}
	o := NewChunkUploadOrchestrator(client, 3)

	chunks := make([][]byte, 6)
	for i := range chunks {
		chunks[i] = []byte(fmt.Sprintf("chunk-%d", i))
	}

	results, err := o.UploadChunks(context.Background(), chunks, "noc.pdf", nil, nil)

	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, result := range results {
		assert.Equal(t, fmt.Sprintf("noc.pdf_chunk_%d", i+1), result["sourceChunk"].Value)
	}
}

func TestUploadChunksRespectsConcurrencyBound(t *testing.T) {
	client := &fakeExtractionClient{delay: 20 * time.Millisecond}
	o := NewChunkUploadOrchestrator(client, 2)

	chunks := make([][]byte, 8)
	for i := range chunks {
		chunks[i] = []byte("x")
	}

	_, err := o.UploadChunks(context.Background(), chunks, "noc.pdf", nil, nil)

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&client.maxRunning), int32(2))
}

func TestUploadChunksProgressStaysInWindow(t *testing.T) {
	client := &fakeExtractionClient{}
	o := NewChunkUploadOrchestrator(client, 3)

	chunks := make([][]byte, 5)
	for i := range chunks {
		chunks[i] = []byte("x")
	}

	var mu sync.Mutex
	var reported []int
	_, err := o.UploadChunks(context.Background(), chunks, "noc.pdf",
		func(p int) {
			mu.Lock()
			reported = append(reported, p)
			mu.Unlock()
		}, nil)

	require.NoError(t, err)
	require.Len(t, reported, 5)
	for _, p := range reported {
		assert.GreaterOrEqual(t, p, 20)
		assert.LessOrEqual(t, p, 70)
	}
	// The final completion lands exactly on the window ceiling.
	assert.Contains(t, reported, 70)
}

// blockingFailClient fails one chunk immediately and parks every other upload
// on the shared context. That makes the fail-fast path deterministic: no
// upload can succeed, so no progress may be reported.
type blockingFailClient struct {
	failLabel   string
	uploadCount int32
}

func (b *blockingFailClient) Upload(ctx context.Context, _ []byte, label string) (ExtractionResult, error) {
	atomic.AddInt32(&b.uploadCount, 1)
	if label == b.failLabel {
		return nil, errors.New("service rejected document")
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestUploadChunksFailFast(t *testing.T) {
	client := &blockingFailClient{failLabel: "noc.pdf_chunk_2"}
	o := NewChunkUploadOrchestrator(client, 2)

	chunks := make([][]byte, 4)
	for i := range chunks {
		chunks[i] = []byte("x")
	}

	var mu sync.Mutex
	var reported []int
	_, err := o.UploadChunks(context.Background(), chunks, "noc.pdf",
		func(p int) {
			mu.Lock()
			reported = append(reported, p)
			mu.Unlock()
		}, nil)

	require.Error(t, err)
	var chunkErr *ChunkUploadError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 2, chunkErr.Chunk)
	assert.Contains(t, err.Error(), "chunk 2")

	// The failed chunk cancels the run before any sibling completes, so
	// progress stays frozen at whatever the job held before the upload phase.
	assert.Empty(t, reported)

	// The cancellation stops new uploads; not all four run.
	assert.Less(t, atomic.LoadInt32(&client.uploadCount), int32(4))
}

func TestUploadChunksLogsParallelism(t *testing.T) {
	client := &fakeExtractionClient{}
	o := NewChunkUploadOrchestrator(client, 3)

	var logs []string
	var mu sync.Mutex
	_, err := o.UploadChunks(context.Background(), [][]byte{[]byte("a"), []byte("b")}, "noc.pdf", nil,
		func(msg string) {
			mu.Lock()
			logs = append(logs, msg)
			mu.Unlock()
		})

	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.True(t, strings.Contains(logs[0], "2 chunks in parallel"), "got %q", logs[0])
}

func TestUploadChunksEmptyInput(t *testing.T) {
	o := NewChunkUploadOrchestrator(&fakeExtractionClient{}, 3)

	_, err := o.UploadChunks(context.Background(), nil, "noc.pdf", nil, nil)

	assert.ErrorIs(t, err, ErrMergeInconsistency)
}
