package paper

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("paper not found")
	ErrDuplicate = errors.New("paper already exists")
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

type Paper struct {
	ID                 string     `json:"id"`
	PMID               string     `json:"pmid,omitempty"`
	DOI                string     `json:"doi,omitempty"`
	Title              string     `json:"title"`
	Abstract           string     `json:"abstract,omitempty"`
	FullText           string     `json:"-"`
	Journal            string     `json:"journal,omitempty"`
	PublicationDate    *time.Time `json:"publication_date,omitempty"`
	PublicationType    string     `json:"publication_type,omitempty"`
	Keywords           []string   `json:"keywords"`
	MeshTerms          []string   `json:"mesh_terms"`
	SubjectAreas       []string   `json:"subject_areas"`
	Authors            []string   `json:"authors,omitempty"`
	SourceDatabase     string     `json:"source_database"`
	QualityScore       float64    `json:"quality_score"`
	ProcessingStatus   string     `json:"processing_status"`
	EmbeddingGenerated bool       `json:"embedding_generated"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Candidate is a normalized document record as delivered by a literature
// source, before a paper row exists for it.
type Candidate struct {
	PMID            string     `json:"pmid,omitempty"`
	DOI             string     `json:"doi,omitempty"`
	Title           string     `json:"title"`
	Abstract        string     `json:"abstract,omitempty"`
	FullText        string     `json:"full_text,omitempty"`
	Journal         string     `json:"journal,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	PublicationType string     `json:"publication_type,omitempty"`
	Keywords        []string   `json:"keywords"`
	MeshTerms       []string   `json:"mesh_terms"`
	Authors         []string   `json:"authors"`
	SubjectAreas    []string   `json:"subject_areas"`
}

// ExternalID returns the candidate's best external identifier for error
// reporting, matching the source's own naming.
func (c Candidate) ExternalID() string {
	if c.PMID != "" {
		return c.PMID
	}
	if c.DOI != "" {
		return c.DOI
	}
	return "unknown"
}

// FromCandidate builds a paper row in processing state with the ingestion
// default quality score.
func FromCandidate(c Candidate, qualityScore float64) *Paper {
	return &Paper{
		PMID:             c.PMID,
		DOI:              c.DOI,
		Title:            c.Title,
		Abstract:         c.Abstract,
		FullText:         c.FullText,
		Journal:          c.Journal,
		PublicationDate:  c.PublicationDate,
		PublicationType:  c.PublicationType,
		Keywords:         c.Keywords,
		MeshTerms:        c.MeshTerms,
		SubjectAreas:     c.SubjectAreas,
		Authors:          c.Authors,
		SourceDatabase:   "pubmed",
		QualityScore:     qualityScore,
		ProcessingStatus: StatusProcessing,
	}
}

type Repository interface {
	Create(ctx context.Context, p *Paper) error
	Get(ctx context.Context, id string) (*Paper, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkEmbedded(ctx context.Context, id string) error
	ExistsByPMID(ctx context.Context, pmid string) (bool, error)
	ExistsByDOI(ctx context.Context, doi string) (bool, error)
	ExistsByFingerprint(ctx context.Context, prefix string) (bool, error)
}
