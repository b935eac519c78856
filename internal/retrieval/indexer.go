package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmoniz22/biomedical-rag/features/paper"
)

// IndexPaper generates and stores the paper's embeddings: title, abstract and
// joined MeSH terms as single vectors, plus overlapping word chunks of the
// full text when present. Existing embeddings are deleted first, so a
// re-index supersedes rather than patches. The paper is marked processed only
// after its embeddings are stored; any failure marks it failed and returns
// the error to the caller.
func (s *Service) IndexPaper(ctx context.Context, p *paper.Paper) error {
	if err := s.indexPaper(ctx, p); err != nil {
		if statusErr := s.papers.UpdateStatus(ctx, p.ID, paper.StatusFailed); statusErr != nil {
			slog.ErrorContext(ctx, "failed to mark paper failed", "paper_id", p.ID, "error", statusErr)
		}
		return fmt.Errorf("index paper %s: %w", p.ID, err)
	}
	return nil
}

func (s *Service) indexPaper(ctx context.Context, p *paper.Paper) error {
	if err := s.store.DeleteAll(ctx, p.ID); err != nil {
		return fmt.Errorf("delete existing embeddings: %w", err)
	}

	singles := []struct {
		contentType ContentType
		text        string
	}{
		{ContentTitle, p.Title},
		{ContentAbstract, p.Abstract},
		{ContentMeshTerms, strings.Join(p.MeshTerms, " ")},
	}

	stored := 0
	for _, c := range singles {
		if strings.TrimSpace(c.text) == "" {
			continue
		}
		vec, err := s.embedder.Embed(ctx, c.text)
		if err != nil {
			return fmt.Errorf("embed %s: %w", c.contentType, err)
		}
		err = s.store.Upsert(ctx, Embedding{
			PaperID:     p.ID,
			ContentType: c.contentType,
			Text:        c.text,
			Vector:      vec,
			ModelName:   s.model,
		})
		if err != nil {
			return fmt.Errorf("store %s embedding: %w", c.contentType, err)
		}
		stored++
	}

	if strings.TrimSpace(p.FullText) != "" {
		chunks := s.chunker.Split(p.FullText)
		vectors, err := s.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i, chunk := range chunks {
			if i >= len(vectors) {
				break
			}
			err = s.store.Upsert(ctx, Embedding{
				PaperID:     p.ID,
				ContentType: ContentChunk,
				ChunkIndex:  i,
				Text:        chunk,
				Vector:      vectors[i],
				ModelName:   s.model,
			})
			if err != nil {
				return fmt.Errorf("store chunk %d: %w", i, err)
			}
			stored++
		}
	}

	if stored == 0 {
		return fmt.Errorf("paper has no embeddable content")
	}

	if err := s.papers.MarkEmbedded(ctx, p.ID); err != nil {
		return fmt.Errorf("mark embedded: %w", err)
	}
	if err := s.papers.UpdateStatus(ctx, p.ID, paper.StatusProcessed); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	slog.InfoContext(ctx, "paper indexed", "paper_id", p.ID, "embeddings", stored)
	return nil
}
