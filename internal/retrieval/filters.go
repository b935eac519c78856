package retrieval

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dmoniz22/biomedical-rag/features/paper"
)

// Filters is the typed post-filter set applied to hydrated papers, evaluated
// in a fixed order: quality score, date range, subject area, journal, MeSH
// terms. A predicate that cannot be evaluated admits the paper (fail-open),
// matching the duplicate detector's policy.
type Filters struct {
	MinQualityScore *float64   `json:"min_quality_score,omitempty"`
	DateRangeStart  *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd    *time.Time `json:"date_range_end,omitempty"`
	SubjectArea     string     `json:"subject_area,omitempty"`
	Journal         string     `json:"journal,omitempty"`
	MeshTerms       []string   `json:"mesh_terms,omitempty"`
}

type predicate func(p *paper.Paper) (bool, error)

func (f *Filters) Match(p *paper.Paper) bool {
	if f == nil {
		return true
	}
	return matchAll(f.predicates(), p)
}

// matchAll is the named fail-open branch: an erroring predicate keeps the
// paper instead of dropping it.
func matchAll(preds []predicate, p *paper.Paper) bool {
	for _, pred := range preds {
		keep, err := pred(p)
		if err != nil {
			slog.Warn("filter evaluation failed, keeping paper", "paper_id", p.ID, "error", err)
			continue
		}
		if !keep {
			return false
		}
	}
	return true
}

func (f *Filters) predicates() []predicate {
	var preds []predicate

	if f.MinQualityScore != nil {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			return p.QualityScore >= *f.MinQualityScore, nil
		})
	}
	if f.DateRangeStart != nil {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			if p.PublicationDate == nil {
				return true, nil
			}
			return !p.PublicationDate.Before(*f.DateRangeStart), nil
		})
	}
	if f.DateRangeEnd != nil {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			if p.PublicationDate == nil {
				return true, nil
			}
			return !p.PublicationDate.After(*f.DateRangeEnd), nil
		})
	}
	if f.SubjectArea != "" {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			for _, area := range p.SubjectAreas {
				if area == f.SubjectArea {
					return true, nil
				}
			}
			return false, nil
		})
	}
	if f.Journal != "" {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			if p.Journal == "" {
				return false, nil
			}
			return strings.Contains(strings.ToLower(p.Journal), strings.ToLower(f.Journal)), nil
		})
	}
	if len(f.MeshTerms) > 0 {
		preds = append(preds, func(p *paper.Paper) (bool, error) {
			if len(p.MeshTerms) == 0 {
				return false, nil
			}
			have := make(map[string]bool, len(p.MeshTerms))
			for _, term := range p.MeshTerms {
				have[term] = true
			}
			for _, term := range f.MeshTerms {
				if have[term] {
					return true, nil
				}
			}
			return false, nil
		})
	}

	return preds
}
