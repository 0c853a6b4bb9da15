package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineOptsFixture() PipelineOptions {
	return PipelineOptions{
		UseValidation:     true,
		MaxPagesPerChunk:  10,
		MaxParallelChunks: 3,
		Scoring:           scoringFixture(),
		Rules: map[string]Rule{
			"issuingAuthority": WhitelistRule{
				AllowedValues: []string{"Dubai Municipality"},
				FuzzyMatch:    true,
				ErrorMessage:  "Issuing authority is not recognized",
			},
		},
		ApprovalThreshold: 0.85,
		ReviewThreshold:   0.6,
	}
}

func waitForTerminal(t *testing.T, registry *JobRegistry, jobID string) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := registry.Get(jobID)
		require.NoError(t, err)
		if snapshot.Status == JobStatusCompleted || snapshot.Status == JobStatusFailed {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return JobSnapshot{}
}

type staticExtractionClient struct {
	fields ExtractionResult
}

func (s *staticExtractionClient) Upload(_ context.Context, _ []byte, _ string) (ExtractionResult, error) {
	return s.fields, nil
}

func TestPipelineCompletesAndApproves(t *testing.T) {
	registry := NewJobRegistry()
	client := &staticExtractionClient{fields: ExtractionResult{
		"applicationNumber": {Value: "NOC-2024-001", Confidence: 0.95},
		"issuingAuthority":  {Value: "Dubai Municipality", Confidence: 0.93},
		"ownerName":         {Value: "Ahmed Al Mansouri", Confidence: 0.92},
		"issueDate":         {Value: "2024-06-01", Confidence: 0.9},
		"documentStatus":    {Value: "Active", Confidence: 0.9},
	}}
	pipeline := NewProcessingPipeline(registry, client, nil)

	jobID := registry.Create()
	require.NoError(t, pipeline.Submit(jobID, makePDF(t, 2), "noc.pdf", pipelineOptsFixture()))

	snapshot := waitForTerminal(t, registry, jobID)

	assert.Equal(t, JobStatusCompleted, snapshot.Status)
	assert.Equal(t, 100, snapshot.Progress)
	require.NotNil(t, snapshot.Result)
	assert.Equal(t, VerdictApproved, snapshot.Result.Status)
	assert.Equal(t, "noc.pdf", snapshot.Result.Filename)
	assert.Equal(t, 2, snapshot.Result.NumPages)
	assert.InDelta(t, 0.92, snapshot.Result.Confidence, 0.001)
	assert.Len(t, snapshot.Result.Breakdown, 5)
	require.NotNil(t, snapshot.Result.Validation)
	assert.True(t, snapshot.Result.Validation.Valid)
	assert.NotEmpty(t, snapshot.Logs)
}

func TestPipelineDowngradesApprovedOnRuleFailure(t *testing.T) {
	registry := NewJobRegistry()
	client := &staticExtractionClient{fields: ExtractionResult{
		"applicationNumber": {Value: "NOC-2024-001", Confidence: 0.95},
		"issuingAuthority":  {Value: "Unknown Entity", Confidence: 0.93},
		"ownerName":         {Value: "Ahmed Al Mansouri", Confidence: 0.92},
		"issueDate":         {Value: "2024-06-01", Confidence: 0.9},
		"documentStatus":    {Value: "Active", Confidence: 0.9},
	}}
	pipeline := NewProcessingPipeline(registry, client, nil)

	jobID := registry.Create()
	require.NoError(t, pipeline.Submit(jobID, makePDF(t, 1), "noc.pdf", pipelineOptsFixture()))

	snapshot := waitForTerminal(t, registry, jobID)

	require.NotNil(t, snapshot.Result)
	assert.Equal(t, VerdictNeedsReview, snapshot.Result.Status)
	require.NotNil(t, snapshot.Result.Validation)
	assert.False(t, snapshot.Result.Validation.Valid)
}

func TestPipelineLowConfidenceRejects(t *testing.T) {
	registry := NewJobRegistry()
	client := &staticExtractionClient{fields: ExtractionResult{
		"applicationNumber": {Value: "NOC-2024-001", Confidence: 0.3},
		"issuingAuthority":  {Value: "Dubai Municipality", Confidence: 0.4},
	}}
	pipeline := NewProcessingPipeline(registry, client, nil)

	opts := pipelineOptsFixture()
	opts.UseValidation = false

	jobID := registry.Create()
	require.NoError(t, pipeline.Submit(jobID, makePDF(t, 1), "noc.pdf", opts))

	snapshot := waitForTerminal(t, registry, jobID)

	require.NotNil(t, snapshot.Result)
	assert.Equal(t, VerdictRejected, snapshot.Result.Status)
	assert.Nil(t, snapshot.Result.Validation)
}

func TestPipelineFailsOnMalformedDocument(t *testing.T) {
	registry := NewJobRegistry()
	pipeline := NewProcessingPipeline(registry, &staticExtractionClient{}, nil)

	jobID := registry.Create()
	require.NoError(t, pipeline.Submit(jobID, []byte("not a pdf"), "noc.pdf", pipelineOptsFixture()))

	snapshot := waitForTerminal(t, registry, jobID)

	assert.Equal(t, JobStatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Error, "document analysis failed")
	assert.Nil(t, snapshot.Result)
}

func TestPipelineFailsOnChunkUploadError(t *testing.T) {
	registry := NewJobRegistry()
	client := &fakeExtractionClient{
		failLabels: map[string]error{"noc.pdf_chunk_1": assert.AnError},
	}
	pipeline := NewProcessingPipeline(registry, client, nil)

	jobID := registry.Create()
	require.NoError(t, pipeline.Submit(jobID, makePDF(t, 1), "noc.pdf", pipelineOptsFixture()))

	snapshot := waitForTerminal(t, registry, jobID)

	assert.Equal(t, JobStatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Error, "chunk 1")
}

func TestPipelineSubmitUnknownJob(t *testing.T) {
	pipeline := NewProcessingPipeline(NewJobRegistry(), &staticExtractionClient{}, nil)

	err := pipeline.Submit("missing", []byte("x"), "noc.pdf", pipelineOptsFixture())

	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPipelineSubmitWithoutClient(t *testing.T) {
	registry := NewJobRegistry()
	pipeline := NewProcessingPipeline(registry, nil, nil)

	jobID := registry.Create()
	err := pipeline.Submit(jobID, []byte("x"), "noc.pdf", pipelineOptsFixture())

	assert.Error(t, err)
}
