package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/internal/middleware"
)

type ReindexPayload struct {
	PaperID       string `json:"paper_id"`
	CorrelationID string `json:"correlation_id"`
}

type PaperGetter interface {
	Get(ctx context.Context, id string) (*paper.Paper, error)
}

type PaperIndexer interface {
	IndexPaper(ctx context.Context, p *paper.Paper) error
}

// ReindexConsumer regenerates the embeddings of a single paper on demand.
// Old embeddings are superseded inside the indexer (delete-then-store).
type ReindexConsumer struct {
	papers  PaperGetter
	indexer PaperIndexer
}

func NewReindexConsumer(papers PaperGetter, indexer PaperIndexer) *ReindexConsumer {
	return &ReindexConsumer{papers: papers, indexer: indexer}
}

func (h *ReindexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload ReindexPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.PaperID == "" {
		slog.Error("poison pill: missing paper_id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	p, err := h.papers.Get(ctx, payload.PaperID)
	if err != nil {
		slog.ErrorContext(ctx, "reindex: paper lookup failed", "paper_id", payload.PaperID, "error", err)
		if errors.Is(err, paper.ErrNotFound) {
			return nil // Deleted since the event was queued, don't retry
		}
		return err // Retry
	}

	if err := h.indexer.IndexPaper(ctx, p); err != nil {
		slog.ErrorContext(ctx, "reindex failed", "paper_id", payload.PaperID, "error", err)
		return err // Retry
	}

	slog.InfoContext(ctx, "paper reindexed", "paper_id", payload.PaperID)
	return nil
}
