package paper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts the paper and its authors in one transaction. The unique
// constraints on pmid and doi make the duplicate-check-then-insert race safe:
// a concurrent insert of the same external id surfaces here as ErrDuplicate.
func (r *PostgresRepo) Create(ctx context.Context, p *Paper) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO papers
		(pmid, doi, title, abstract, full_text, journal, publication_date, publication_type,
		 keywords, mesh_terms, subject_areas, source_database, quality_score, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		nullable(p.PMID), nullable(p.DOI), p.Title, p.Abstract, p.FullText,
		p.Journal, p.PublicationDate, p.PublicationType,
		pq.Array(p.Keywords), pq.Array(p.MeshTerms), pq.Array(p.SubjectAreas),
		p.SourceDatabase, p.QualityScore, p.ProcessingStatus,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.ExternalID())
		}
		return err
	}

	for i, name := range p.Authors {
		first, last := splitAuthorName(name)
		var authorID string
		err = tx.QueryRowContext(ctx,
			`INSERT INTO authors (first_name, last_name) VALUES ($1, $2)
			 ON CONFLICT (first_name, last_name) DO UPDATE SET last_name = EXCLUDED.last_name
			 RETURNING id`,
			first, last,
		).Scan(&authorID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO paper_authors (paper_id, author_id, author_order) VALUES ($1, $2, $3)`,
			p.ID, authorID, i+1)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Paper, error) {
	p := &Paper{}
	var pmid, doi sql.NullString
	query := `SELECT id, pmid, doi, title, abstract, full_text, journal, publication_date,
		publication_type, keywords, mesh_terms, subject_areas, source_database,
		quality_score, processing_status, embedding_generated, created_at
		FROM papers WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &pmid, &doi, &p.Title, &p.Abstract, &p.FullText, &p.Journal,
		&p.PublicationDate, &p.PublicationType,
		pq.Array(&p.Keywords), pq.Array(&p.MeshTerms), pq.Array(&p.SubjectAreas),
		&p.SourceDatabase, &p.QualityScore, &p.ProcessingStatus,
		&p.EmbeddingGenerated, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.PMID = pmid.String
	p.DOI = doi.String
	return p, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE papers SET processing_status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) MarkEmbedded(ctx context.Context, id string) error {
	query := `UPDATE papers SET embedding_generated = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) ExistsByPMID(ctx context.Context, pmid string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM papers WHERE pmid = $1)`
	err := r.db.QueryRowContext(ctx, query, pmid).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) ExistsByDOI(ctx context.Context, doi string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM papers WHERE doi = $1)`
	err := r.db.QueryRowContext(ctx, query, doi).Scan(&exists)
	return exists, err
}

// ExistsByFingerprint matches the truncated md5 of the lower-cased title.
// The short prefix is collision-tolerant on purpose: it catches near-duplicate
// titles that lack identifiers.
func (r *PostgresRepo) ExistsByFingerprint(ctx context.Context, prefix string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM papers WHERE SUBSTRING(MD5(LOWER(title)), 1, 8) = $1)`
	err := r.db.QueryRowContext(ctx, query, prefix).Scan(&exists)
	return exists, err
}

func (p *Paper) ExternalID() string {
	if p.PMID != "" {
		return p.PMID
	}
	if p.DOI != "" {
		return p.DOI
	}
	return "unknown"
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func splitAuthorName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
