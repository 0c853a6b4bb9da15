package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nocvalidator/backend/internal/logger"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Verdict values assigned by the pipeline's status classification.
const (
	VerdictApproved    = "Approved"
	VerdictNeedsReview = "Needs Review"
	VerdictRejected    = "Rejected"
)

// JobResult is stored on a job once it completes.
type JobResult struct {
	Filename       string             `json:"filename"`
	NumPages       int                `json:"numPages"`
	FileSizeMB     float64            `json:"fileSizeMb"`
	ProcessingTime float64            `json:"processingTime"`
	Confidence     float64            `json:"confidence"`
	Status         string             `json:"status"`
	Breakdown      []BreakdownRow     `json:"breakdown"`
	Fields         ExtractionResult   `json:"fields"`
	RawResults     []ExtractionResult `json:"rawResults"`
	Validation     *ValidationResult  `json:"validationResult,omitempty"`
}

// job is the registry's internal mutable record. All access goes through the
// registry lock; callers only ever see JobSnapshot copies.
type job struct {
	id        string
	status    JobStatus
	progress  int
	logs      []string
	result    *JobResult
	err       string
	createdAt time.Time
	updatedAt time.Time
}

// JobSnapshot is an immutable copy of a job's state, safe to hand to
// concurrent pollers while the pipeline keeps mutating the job.
type JobSnapshot struct {
	JobID     string     `json:"jobId"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Logs      []string   `json:"logs"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// JobRegistry owns the id → job map. It is the only component that mutates
// job state; the processing pipeline drives it and HTTP pollers read
// snapshots from it.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*job)}
}

// Create registers a new queued job and returns its id.
func (r *JobRegistry) Create() string {
	id := uuid.New().String()
	now := time.Now()

	r.mu.Lock()
	r.jobs[id] = &job{
		id:        id,
		status:    JobStatusQueued,
		logs:      []string{},
		createdAt: now,
		updatedAt: now,
	}
	r.mu.Unlock()

	return id
}

// Get returns a snapshot of the job, or ErrJobNotFound.
func (r *JobRegistry) Get(id string) (JobSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

func (j *job) snapshot() JobSnapshot {
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	return JobSnapshot{
		JobID:     j.id,
		Status:    j.status,
		Progress:  j.progress,
		Logs:      logs,
		Result:    j.result,
		Error:     j.err,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

func (j *job) terminal() bool {
	return j.status == JobStatusCompleted || j.status == JobStatusFailed
}

// AppendLog appends a timestamped entry to the job's log trail.
func (r *JobRegistry) AppendLog(id, message string) {
	entry := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)

	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.logs = append(j.logs, entry)
		j.updatedAt = time.Now()
	}
	r.mu.Unlock()

	logger.Info(message, map[string]interface{}{"jobID": id})
}

// SetProgress raises the job's progress. Decreases are ignored, as are
// updates to terminal jobs, so concurrent chunk workers can report freely.
func (r *JobRegistry) SetProgress(id string, progress int) {
	if progress < 0 {
		return
	}
	if progress > 100 {
		progress = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.terminal() || progress <= j.progress {
		return
	}
	j.progress = progress
	j.updatedAt = time.Now()
}

// MarkProcessing moves a queued job to processing. It is a no-op for jobs
// that already left the queued state.
func (r *JobRegistry) MarkProcessing(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.status != JobStatusQueued {
		return
	}
	j.status = JobStatusProcessing
	if j.progress < 10 {
		j.progress = 10
	}
	j.updatedAt = time.Now()
}

// Complete stores the result and moves the job to its terminal completed
// state at 100% progress. Terminal jobs are never touched again.
func (r *JobRegistry) Complete(id string, result *JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.terminal() {
		return
	}
	j.status = JobStatusCompleted
	j.progress = 100
	j.result = result
	j.updatedAt = time.Now()
}

// Fail moves the job to its terminal failed state, freezing progress at
// whatever value it had when the failure was detected.
func (r *JobRegistry) Fail(id, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.terminal() {
		return
	}
	j.status = JobStatusFailed
	j.err = errMsg
	j.updatedAt = time.Now()
}
