package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/internal/config"
)

// PaperSource delivers the full candidate set for a job in one logical call.
type PaperSource interface {
	FetchCandidates(ctx context.Context, subjectAreas []string, start, end *time.Time, maxPerArea int) ([]paper.Candidate, error)
}

// PaperIndexer generates and stores the embeddings for a created paper.
type PaperIndexer interface {
	IndexPaper(ctx context.Context, p *paper.Paper) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Options are the orchestration knobs, normally taken from config.
type Options struct {
	BatchSize           int
	BatchPause          time.Duration
	MaxDocumentsPerArea int
	DefaultQualityScore float64
	StrictCancellation  bool
}

// Service orchestrates bulk ingestion jobs: it owns the job lifecycle, the
// batch loop with per-document failure isolation, and the active-job registry
// used for cancellation signaling. The registry is process-local and not
// durable; the job store is the source of truth for status.
type Service struct {
	jobs    Repository
	papers  paper.Repository
	source  PaperSource
	indexer PaperIndexer
	dedup   *DuplicateDetector
	pub     EventPublisher
	opts    Options

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewService(jobs Repository, papers paper.Repository, source PaperSource, indexer PaperIndexer, dedup *DuplicateDetector, pub EventPublisher, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Service{
		jobs:    jobs,
		papers:  papers,
		source:  source,
		indexer: indexer,
		dedup:   dedup,
		pub:     pub,
		opts:    opts,
		active:  make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, creates a pending job record and schedules
// its execution in the background. It returns the job id immediately.
func (s *Service) Submit(ctx context.Context, req Request, name string) (string, error) {
	if req.Source != "pubmed" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, req.Source)
	}

	if name == "" {
		name = fmt.Sprintf("Bulk Ingestion %s", time.Now().Format("2006-01-02 15:04:05"))
	}

	job := &Job{
		ID:           uuid.New().String(),
		Name:         name,
		Source:       req.Source,
		SubjectAreas: req.SubjectAreas,
		Parameters:   req,
		Status:       StatusPending,
		CanResume:    true,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	s.spawn(job.ID, req)

	slog.InfoContext(ctx, "bulk ingestion job submitted", "job_id", job.ID, "name", name, "subject_areas", req.SubjectAreas)
	return job.ID, nil
}

// Status returns the stored job snapshot.
func (s *Service) Status(ctx context.Context, jobID string) (*Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// Pause flags the job paused. In strict mode the running loop is also
// signalled and stops at the next batch boundary; otherwise the in-flight
// execution keeps going and only the stored status changes.
func (s *Service) Pause(ctx context.Context, jobID string) error {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return err
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, StatusPaused, nil); err != nil {
		return err
	}
	if s.opts.StrictCancellation {
		s.signal(jobID)
	}
	return nil
}

// Resume re-marks a paused job pending and schedules a new execution that
// picks up from resume_from_position.
func (s *Service) Resume(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusPaused {
		return fmt.Errorf("%w: status is %s", ErrNotPaused, job.Status)
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, StatusPending, nil); err != nil {
		return err
	}

	// Replay the persisted request so the candidate sequence, date bounds
	// and quality gate match the original execution.
	s.spawn(jobID, job.Parameters)
	return nil
}

// Cancel marks the job cancelled and drops it from the active registry.
// Like Pause, interruption of in-flight work is strict-mode only.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return err
	}
	if err := s.jobs.UpdateStatus(ctx, jobID, StatusCancelled, nil); err != nil {
		return err
	}
	if s.opts.StrictCancellation {
		s.signal(jobID)
	}
	s.release(jobID)
	return nil
}

func (s *Service) spawn(jobID string, req Request) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[jobID] = cancel
	s.mu.Unlock()

	// The execution goroutine owns the cancel func. Nothing else invokes
	// it except signal, so a soft cancel leaves the in-flight context
	// intact and only strict mode interrupts collaborator calls.
	go func() {
		defer cancel()
		s.execute(ctx, jobID, req)
	}()
}

func (s *Service) signal(jobID string) {
	s.mu.Lock()
	cancel, ok := s.active[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// release drops the registry entry only. The execution keeps its context.
func (s *Service) release(jobID string) {
	s.mu.Lock()
	delete(s.active, jobID)
	s.mu.Unlock()
}

// ActiveJobs reports the ids currently owned by this process.
func (s *Service) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) execute(ctx context.Context, jobID string, req Request) {
	start := time.Now()
	defer s.release(jobID)

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "job vanished before execution", "job_id", jobID, "error", err)
		return
	}

	if err := s.jobs.UpdateStatus(ctx, jobID, StatusRunning, &start); err != nil {
		slog.ErrorContext(ctx, "failed to mark job running", "job_id", jobID, "error", err)
	}

	candidates, err := s.source.FetchCandidates(ctx, req.SubjectAreas, req.DateRangeStart, req.DateRangeEnd, s.maxPerArea(req))
	if err != nil {
		// Transport failure during the bulk fetch is job-fatal: no partial credit.
		s.fail(ctx, jobID, fmt.Errorf("fetch candidates: %w", err))
		return
	}

	total := len(candidates)

	// Counters continue from the stored checkpoint so a resumed job reports
	// cumulative progress and never reprocesses a committed document.
	processed := job.ProcessedDocuments
	successful := job.SuccessfulDocuments
	failed := job.FailedDocuments
	duplicates := job.DuplicateDocuments
	errs := append([]string(nil), job.Errors...)
	pos := job.ResumeFromPosition

	if err := s.jobs.UpdateProgress(ctx, jobID, Progress{
		TotalDocuments:      total,
		ProcessedDocuments:  processed,
		SuccessfulDocuments: successful,
		FailedDocuments:     failed,
		DuplicateDocuments:  duplicates,
		ProgressPercentage:  percentage(processed, total),
		Errors:              errs,
		ResumeFromPosition:  pos,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record initial progress", "job_id", jobID, "error", err)
	}

	for pos < total {
		end := pos + s.opts.BatchSize
		if end > total {
			end = total
		}

		for _, c := range candidates[pos:end] {
			outcome, procErr := s.processCandidate(ctx, c, req.QualityThreshold)
			switch outcome {
			case outcomeDuplicate:
				duplicates++
			case outcomeSuccess:
				successful++
			case outcomeRejected:
				failed++
			case outcomeFailed:
				failed++
				errs = append(errs, fmt.Sprintf("Paper %s: %v", c.ExternalID(), procErr))
				slog.ErrorContext(ctx, "error processing paper", "job_id", jobID, "external_id", c.ExternalID(), "error", procErr)
			}
		}

		processed += end - pos
		pos = end

		if err := s.jobs.UpdateProgress(ctx, jobID, Progress{
			TotalDocuments:      total,
			ProcessedDocuments:  processed,
			SuccessfulDocuments: successful,
			FailedDocuments:     failed,
			DuplicateDocuments:  duplicates,
			ProgressPercentage:  percentage(processed, total),
			Errors:              errs,
			ResumeFromPosition:  pos,
		}); err != nil {
			slog.ErrorContext(ctx, "failed to record progress", "job_id", jobID, "error", err)
		}

		if stopped := s.checkStop(ctx, jobID); stopped {
			return
		}

		if pos < total && s.opts.BatchPause > 0 {
			// Cooperative yield between batches to respect source rate limits.
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.BatchPause):
			}
		}
	}

	elapsed := time.Since(start)
	summary := &Summary{
		TotalProcessed:        processed,
		Successful:            successful,
		Failed:                failed,
		Duplicates:            duplicates,
		ProcessingTimeMinutes: elapsed.Minutes(),
	}
	if processed > 0 {
		summary.SuccessRate = float64(successful) / float64(processed) * 100
	}
	if elapsed.Minutes() > 0 {
		summary.AveragePapersPerMinute = float64(processed) / elapsed.Minutes()
	}

	if err := s.jobs.UpdateCompletion(ctx, jobID, StatusCompleted, time.Now(), summary, errs); err != nil {
		slog.ErrorContext(ctx, "failed to mark job completed", "job_id", jobID, "error", err)
	}

	s.publishStatus(JobStatusEvent{
		JobID:               jobID,
		Status:              StatusCompleted,
		TotalDocuments:      total,
		SuccessfulDocuments: successful,
		FailedDocuments:     failed,
		DuplicateDocuments:  duplicates,
	})

	slog.InfoContext(ctx, "bulk ingestion job completed", "job_id", jobID,
		"total", total, "successful", successful, "failed", failed, "duplicates", duplicates,
		"minutes", elapsed.Minutes())
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeFailed
)

// processCandidate handles a single document. Every error is contained here:
// one bad document never aborts the batch or the job.
func (s *Service) processCandidate(ctx context.Context, c paper.Candidate, qualityThreshold float64) (outcome, error) {
	if s.dedup.IsDuplicate(ctx, c) {
		return outcomeDuplicate, nil
	}

	p := paper.FromCandidate(c, s.opts.DefaultQualityScore)
	if err := s.papers.Create(ctx, p); err != nil {
		// A concurrent job may have inserted the same external id between
		// the duplicate check and this insert; the unique constraint
		// converts that race into a duplicate, not a failure.
		if isDuplicateErr(err) {
			return outcomeDuplicate, nil
		}
		return outcomeFailed, err
	}

	if p.QualityScore < qualityThreshold {
		if err := s.papers.UpdateStatus(ctx, p.ID, paper.StatusFailed); err != nil {
			return outcomeFailed, err
		}
		return outcomeRejected, nil
	}

	if err := s.indexer.IndexPaper(ctx, p); err != nil {
		return outcomeFailed, err
	}
	return outcomeSuccess, nil
}

// checkStop inspects the cancellation signal at the batch boundary. The
// stored status decides whether this is a pause (leave paused, keep resume
// position) or a cancel (leave as stored).
func (s *Service) checkStop(ctx context.Context, jobID string) bool {
	select {
	case <-ctx.Done():
	default:
		return false
	}

	job, err := s.jobs.Get(context.Background(), jobID)
	if err != nil {
		slog.Error("job lookup failed after cancellation signal", "job_id", jobID, "error", err)
		return true
	}
	slog.Info("job execution stopped at batch boundary", "job_id", jobID, "status", job.Status, "resume_from", job.ResumeFromPosition)
	return true
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) {
	if err := s.jobs.UpdateCompletion(ctx, jobID, StatusFailed, time.Now(), nil, []string{cause.Error()}); err != nil {
		slog.ErrorContext(ctx, "failed to mark job failed", "job_id", jobID, "error", err)
	}
	s.publishStatus(JobStatusEvent{JobID: jobID, Status: StatusFailed})
	slog.ErrorContext(ctx, "bulk ingestion job failed", "job_id", jobID, "error", cause)
}

func (s *Service) publishStatus(event JobStatusEvent) {
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.pub.Publish(config.TopicJobStatus, body); err != nil {
		slog.Error("failed to publish job status event", "job_id", event.JobID, "error", err)
	}
}

func (s *Service) maxPerArea(req Request) int {
	if req.MaxDocuments > 0 {
		return req.MaxDocuments
	}
	if s.opts.MaxDocumentsPerArea > 0 {
		return s.opts.MaxDocumentsPerArea
	}
	return 1000
}

func percentage(processed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}

func isDuplicateErr(err error) bool {
	return errors.Is(err, paper.ErrDuplicate)
}
