package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nocvalidator/backend/internal/logger"
)

// PipelineOptions is the externally supplied configuration for one job run.
// The core owns none of it; callers assemble it from config and per-upload
// flags.
type PipelineOptions struct {
	UseApproximation  bool
	UseValidation     bool
	MaxPagesPerChunk  int
	MaxParallelChunks int
	Scoring           ScoringConfig
	Rules             map[string]Rule
	ApprovalThreshold float64
	ReviewThreshold   float64
}

// ProcessingPipeline runs the full validation sequence for a job in a
// background goroutine: split → upload chunks → merge → score → validate →
// classify → store result. Any failure or panic lands in the job's Failed
// state; nothing escapes the pipeline boundary.
type ProcessingPipeline struct {
	registry *JobRegistry
	client   ExtractionClient
	records  *RecordStore // nil-safe, archive of completed jobs
}

func NewProcessingPipeline(registry *JobRegistry, client ExtractionClient, records *RecordStore) *ProcessingPipeline {
	return &ProcessingPipeline{registry: registry, client: client, records: records}
}

// Submit starts processing the document for an already-created job. It
// returns immediately; progress is observable through the registry.
func (p *ProcessingPipeline) Submit(jobID string, document []byte, filename string, opts PipelineOptions) error {
	if p.client == nil {
		return fmt.Errorf("no extraction client configured")
	}
	if _, err := p.registry.Get(jobID); err != nil {
		return err
	}
	go p.run(jobID, document, filename, opts)
	return nil
}

func (p *ProcessingPipeline) run(jobID string, document []byte, filename string, opts PipelineOptions) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panic", map[string]interface{}{"jobID": jobID, "panic": fmt.Sprint(r)})
			p.registry.AppendLog(jobID, fmt.Sprintf("Unexpected failure: %v", r))
			p.registry.Fail(jobID, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	start := time.Now()
	p.registry.MarkProcessing(jobID)
	p.registry.AppendLog(jobID, "Starting document processing")

	chunks, numPages, err := SplitDocument(document, opts.MaxPagesPerChunk)
	if err != nil {
		p.fail(jobID, fmt.Sprintf("document analysis failed: %v", err))
		return
	}
	p.registry.AppendLog(jobID, fmt.Sprintf("PDF has %d pages", numPages))
	if len(chunks) > 1 {
		p.registry.AppendLog(jobID, fmt.Sprintf("Split into %d chunks of up to %d pages", len(chunks), opts.MaxPagesPerChunk))
	}
	p.registry.SetProgress(jobID, 20)

	orchestrator := NewChunkUploadOrchestrator(p.client, opts.MaxParallelChunks)
	rawResults, err := orchestrator.UploadChunks(
		context.Background(),
		chunks,
		filename,
		func(progress int) { p.registry.SetProgress(jobID, progress) },
		func(message string) { p.registry.AppendLog(jobID, message) },
	)
	if err != nil {
		p.fail(jobID, err.Error())
		return
	}

	p.registry.SetProgress(jobID, 75)
	p.registry.AppendLog(jobID, "Combining results from all chunks")
	fields := MergeResults(rawResults)

	p.registry.AppendLog(jobID, "Computing confidence scores")
	confidence, breakdown, warnings := ComputeConfidence(fields, opts.Scoring, opts.UseApproximation)
	for _, warning := range warnings {
		p.registry.AppendLog(jobID, warning)
	}

	var validation *ValidationResult
	if opts.UseValidation {
		p.registry.SetProgress(jobID, 80)
		p.registry.AppendLog(jobID, "Running business rule validation")

		validator := NewRuleValidator(opts.Rules, opts.Scoring.FriendlyLabels)
		v := validator.Validate(fields, func(message string) { p.registry.AppendLog(jobID, message) })
		validation = &v

		if v.Valid {
			p.registry.AppendLog(jobID, "All business rules passed")
		} else {
			p.registry.AppendLog(jobID, fmt.Sprintf("%d validation rule(s) failed", len(v.Violations)))
		}
	}

	status := classifyStatus(confidence, validation, opts, func(message string) { p.registry.AppendLog(jobID, message) })

	p.registry.SetProgress(jobID, 90)
	p.registry.AppendLog(jobID, fmt.Sprintf("Final status: %s (%.1f%% confidence)", status, confidence*100))

	result := &JobResult{
		Filename:       filename,
		NumPages:       numPages,
		FileSizeMB:     math.Round(float64(len(document))/(1024*1024)*100) / 100,
		ProcessingTime: math.Round(time.Since(start).Seconds()*10) / 10,
		Confidence:     confidence,
		Status:         status,
		Breakdown:      breakdown,
		Fields:         fields,
		RawResults:     rawResults,
		Validation:     validation,
	}

	p.registry.Complete(jobID, result)
	p.registry.AppendLog(jobID, "Processing completed successfully")

	if p.records != nil {
		if err := p.records.Archive(jobID, result); err != nil {
			logger.Error("Failed to archive validation record", map[string]interface{}{"jobID": jobID, "error": err.Error()})
		}
	}
}

func (p *ProcessingPipeline) fail(jobID, message string) {
	p.registry.AppendLog(jobID, message)
	p.registry.Fail(jobID, message)
	logger.Error("Job failed", map[string]interface{}{"jobID": jobID, "error": message})
}

// classifyStatus maps the final score to a verdict and downgrades Approved
// to Needs Review when validation ran and failed. Needs Review and Rejected
// are never downgraded further.
func classifyStatus(score float64, validation *ValidationResult, opts PipelineOptions, logf JobLogFunc) string {
	var status string
	switch {
	case score >= opts.ApprovalThreshold:
		status = VerdictApproved
	case score >= opts.ReviewThreshold:
		status = VerdictNeedsReview
	default:
		status = VerdictRejected
	}

	if validation != nil && !validation.Valid && status == VerdictApproved {
		status = VerdictNeedsReview
		logf("Status downgraded to 'Needs Review' due to validation failures")
	}
	return status
}
