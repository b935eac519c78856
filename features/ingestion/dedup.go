package ingestion

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmoniz22/biomedical-rag/features/paper"
)

// fingerprintLen is the hex-prefix width of the title fingerprint. The short
// prefix accepts a nonzero false-positive rate in exchange for catching
// near-duplicate titles that carry no pmid or doi.
const fingerprintLen = 8

// DuplicateDetector decides whether an equivalent paper already exists.
// Checks run in order, first match wins: pmid, doi, then the title
// fingerprint fallback. Repository errors are fail-open: an unverifiable
// candidate is admitted for ingestion rather than silently dropped.
type DuplicateDetector struct {
	repo           paper.Repository
	useFingerprint bool
}

func NewDuplicateDetector(repo paper.Repository, useFingerprint bool) *DuplicateDetector {
	return &DuplicateDetector{repo: repo, useFingerprint: useFingerprint}
}

func (d *DuplicateDetector) IsDuplicate(ctx context.Context, c paper.Candidate) bool {
	if c.PMID != "" {
		exists, err := d.repo.ExistsByPMID(ctx, c.PMID)
		if err != nil {
			slog.ErrorContext(ctx, "duplicate check failed, admitting candidate", "pmid", c.PMID, "error", err)
			return false
		}
		if exists {
			return true
		}
	}

	if c.DOI != "" {
		exists, err := d.repo.ExistsByDOI(ctx, c.DOI)
		if err != nil {
			slog.ErrorContext(ctx, "duplicate check failed, admitting candidate", "doi", c.DOI, "error", err)
			return false
		}
		if exists {
			return true
		}
	}

	if !d.useFingerprint {
		return false
	}

	exists, err := d.repo.ExistsByFingerprint(ctx, TitleFingerprint(c.Title))
	if err != nil {
		slog.ErrorContext(ctx, "fingerprint check failed, admitting candidate", "error", err)
		return false
	}
	return exists
}

// TitleFingerprint computes the truncated md5 of the lower-cased title.
func TitleFingerprint(title string) string {
	sum := md5.Sum([]byte(strings.ToLower(title)))
	return fmt.Sprintf("%x", sum)[:fingerprintLen]
}
