package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/dmoniz22/biomedical-rag/internal/retrieval"
)

const className = "PaperEmbedding"

// Store adapts Weaviate to the retrieval.VectorStore contract. Each object is
// one embedding record keyed by paper id and content type.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Upsert(ctx context.Context, emb retrieval.Embedding) error {
	_, err := s.client.Data().Creator().
		WithClassName(className).
		WithProperties(map[string]interface{}{
			"paperId":     emb.PaperID,
			"contentType": string(emb.ContentType),
			"chunkIndex":  emb.ChunkIndex,
			"content":     emb.Text,
			"modelName":   emb.ModelName,
		}).
		WithVector(emb.Vector).
		Do(ctx)
	return err
}

func (s *Store) Query(ctx context.Context, vector []float32, contentType retrieval.ContentType, topK int, minScore float64) ([]retrieval.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(minScore))

	where := filters.Where().
		WithPath([]string{"contentType"}).
		WithOperator(filters.Equal).
		WithValueString(string(contentType))

	fields := []graphql.Field{
		{Name: "paperId"},
		{Name: "content"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []retrieval.Match
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	objects, ok := data[className].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		m := retrieval.Match{ContentType: contentType}
		if id, ok := props["paperId"].(string); ok {
			m.PaperID = id
		}
		if content, ok := props["content"].(string); ok {
			m.Content = content
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			switch v := additional["certainty"].(type) {
			case float64:
				m.Score = v
			case string:
				// Some server versions return _additional numbers as strings.
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					m.Score = f
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Store) DeleteAll(ctx context.Context, paperID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"paperId"}).
			WithOperator(filters.Equal).
			WithValueString(paperID)).
		Do(ctx)
	return err
}
