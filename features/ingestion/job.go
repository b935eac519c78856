package ingestion

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrUnsupportedSource = errors.New("unsupported source database")
	ErrNotPaused         = errors.New("job is not paused")
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job is a bulk ingestion job record. The orchestrator owns the counters
// exclusively; processed always equals successful + failed + duplicate at
// every checkpoint. Parameters holds the submitted request verbatim so a
// resumed job re-fetches the same candidate sequence.
type Job struct {
	ID                  string     `json:"id"`
	Name                string     `json:"job_name"`
	Source              string     `json:"source"`
	SubjectAreas        []string   `json:"target_subject_areas"`
	Parameters          Request    `json:"parameters"`
	Status              string     `json:"status"`
	ProgressPercentage  float64    `json:"progress_percentage"`
	TotalDocuments      int        `json:"total_documents"`
	ProcessedDocuments  int        `json:"processed_documents"`
	SuccessfulDocuments int        `json:"successful_documents"`
	FailedDocuments     int        `json:"failed_documents"`
	DuplicateDocuments  int        `json:"duplicate_documents"`
	Errors              []string   `json:"errors"`
	Summary             *Summary   `json:"job_summary,omitempty"`
	ResumeFromPosition  int        `json:"resume_from_position"`
	CanResume           bool       `json:"can_resume"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// Summary captures the completion statistics of a finished job.
type Summary struct {
	TotalProcessed         int     `json:"total_processed"`
	Successful             int     `json:"successful"`
	Failed                 int     `json:"failed"`
	Duplicates             int     `json:"duplicates"`
	SuccessRate            float64 `json:"success_rate"`
	ProcessingTimeMinutes  float64 `json:"processing_time_minutes"`
	AveragePapersPerMinute float64 `json:"average_papers_per_minute"`
}

// Request describes what a bulk ingestion job should fetch and how strictly
// to gate quality.
type Request struct {
	Source           string     `json:"source_database"`
	SubjectAreas     []string   `json:"subject_areas"`
	DateRangeStart   *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd     *time.Time `json:"date_range_end,omitempty"`
	MaxDocuments     int        `json:"max_documents,omitempty"`
	IncludeFullText  bool       `json:"include_full_text"`
	QualityThreshold float64    `json:"quality_threshold"`
}

// Progress is a counter checkpoint persisted after every batch.
type Progress struct {
	TotalDocuments      int
	ProcessedDocuments  int
	SuccessfulDocuments int
	FailedDocuments     int
	DuplicateDocuments  int
	ProgressPercentage  float64
	Errors              []string
	ResumeFromPosition  int
}

type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id, status string, startedAt *time.Time) error
	UpdateProgress(ctx context.Context, id string, p Progress) error
	UpdateCompletion(ctx context.Context, id, status string, completedAt time.Time, summary *Summary, errs []string) error
}
