package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	paramsJSON, err := json.Marshal(job.Parameters)
	if err != nil {
		return err
	}
	query := `INSERT INTO ingestion_jobs (id, job_name, source, target_subject_areas, parameters, status, errors)
		VALUES ($1, $2, $3, $4, $5, $6, '[]') RETURNING created_at`
	return r.db.QueryRowContext(ctx, query,
		job.ID, job.Name, job.Source, pq.Array(job.SubjectAreas), paramsJSON, job.Status,
	).Scan(&job.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var paramsJSON []byte
	var errsJSON []byte
	var summaryJSON []byte
	query := `SELECT id, job_name, source, target_subject_areas, parameters, status, progress_percentage,
		total_documents, processed_documents, successful_documents, failed_documents,
		duplicate_documents, errors, job_summary, resume_from_position, can_resume,
		created_at, started_at, completed_at
		FROM ingestion_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.Name, &j.Source, pq.Array(&j.SubjectAreas), &paramsJSON, &j.Status, &j.ProgressPercentage,
		&j.TotalDocuments, &j.ProcessedDocuments, &j.SuccessfulDocuments, &j.FailedDocuments,
		&j.DuplicateDocuments, &errsJSON, &summaryJSON, &j.ResumeFromPosition, &j.CanResume,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &j.Parameters); err != nil {
			return nil, err
		}
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &j.Errors); err != nil {
			return nil, err
		}
	}
	if len(summaryJSON) > 0 {
		j.Summary = &Summary{}
		if err := json.Unmarshal(summaryJSON, j.Summary); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string, startedAt *time.Time) error {
	if startedAt != nil {
		query := `UPDATE ingestion_jobs SET status = $1, started_at = $2 WHERE id = $3`
		_, err := r.db.ExecContext(ctx, query, status, startedAt, id)
		return err
	}
	query := `UPDATE ingestion_jobs SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) UpdateProgress(ctx context.Context, id string, p Progress) error {
	errsJSON, err := json.Marshal(p.Errors)
	if err != nil {
		return err
	}
	if p.Errors == nil {
		errsJSON = []byte("[]")
	}
	query := `UPDATE ingestion_jobs SET
		total_documents = $1, processed_documents = $2, successful_documents = $3,
		failed_documents = $4, duplicate_documents = $5, progress_percentage = $6,
		errors = $7, resume_from_position = $8
		WHERE id = $9`
	_, err = r.db.ExecContext(ctx, query,
		p.TotalDocuments, p.ProcessedDocuments, p.SuccessfulDocuments,
		p.FailedDocuments, p.DuplicateDocuments, p.ProgressPercentage,
		errsJSON, p.ResumeFromPosition, id)
	return err
}

func (r *PostgresRepo) UpdateCompletion(ctx context.Context, id, status string, completedAt time.Time, summary *Summary, errs []string) error {
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	if errs == nil {
		errsJSON = []byte("[]")
	}
	var summaryJSON []byte
	if summary != nil {
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return err
		}
	}
	query := `UPDATE ingestion_jobs SET status = $1, completed_at = $2, job_summary = $3, errors = $4 WHERE id = $5`
	_, err = r.db.ExecContext(ctx, query, status, completedAt, summaryJSON, errsJSON, id)
	return err
}
