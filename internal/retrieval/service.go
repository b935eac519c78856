package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/internal/text"
)

type ContentType string

const (
	ContentTitle     ContentType = "title"
	ContentAbstract  ContentType = "abstract"
	ContentMeshTerms ContentType = "mesh_terms"
	ContentChunk     ContentType = "chunk"
)

type SearchType string

const (
	SearchNaturalLanguage SearchType = "natural_language"
	SearchKeyword         SearchType = "keyword"
	SearchMeshTerm        SearchType = "mesh_term"
)

// Embedding is one stored vector for a paper content facet. ChunkIndex is
// meaningful only for ContentChunk.
type Embedding struct {
	PaperID     string
	ContentType ContentType
	ChunkIndex  int
	Text        string
	Vector      []float32
	ModelName   string
}

// Match is one vector-store candidate with its similarity score in [0,1].
type Match struct {
	PaperID     string
	Content     string
	Score       float64
	ContentType ContentType
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, emb Embedding) error
	Query(ctx context.Context, vector []float32, contentType ContentType, topK int, minScore float64) ([]Match, error)
	DeleteAll(ctx context.Context, paperID string) error
}

type PaperStore interface {
	Get(ctx context.Context, id string) (*paper.Paper, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkEmbedded(ctx context.Context, id string) error
}

type SearchRequest struct {
	Query           string     `json:"query"`
	Type            SearchType `json:"search_type"`
	MaxResults      int        `json:"max_results"`
	MinScore        float64    `json:"min_confidence_score"`
	IncludeFullText bool       `json:"include_full_text"`
	Filters         *Filters   `json:"filters,omitempty"`
}

type SearchResult struct {
	Paper          *paper.Paper `json:"paper"`
	Score          float64      `json:"relevance_score"`
	Highlight      string       `json:"highlight,omitempty"`
	MatchedContent ContentType  `json:"matched_content_type"`
}

type SearchResponse struct {
	Query           string         `json:"query"`
	Results         []SearchResult `json:"results"`
	TotalResults    int            `json:"total_results"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	QueryType       SearchType     `json:"query_type"`
}

type Service struct {
	embedder Embedder
	store    VectorStore
	papers   PaperStore
	chunker  *text.Chunker
	model    string
	topK     int
	minScore float64
}

func NewService(e Embedder, vs VectorStore, ps PaperStore, chunker *text.Chunker, model string, topK int, minScore float64) *Service {
	return &Service{
		embedder: e,
		store:    vs,
		papers:   ps,
		chunker:  chunker,
		model:    model,
		topK:     topK,
		minScore: minScore,
	}
}

// Search runs the full retrieval pipeline: embed the query, fan out across
// content types, merge with first-seen-wins dedup, rank, hydrate, filter and
// highlight. Pipeline failures degrade to an empty result set.
func (s *Service) Search(ctx context.Context, req SearchRequest) *SearchResponse {
	start := time.Now()

	results, err := s.search(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err, "query", req.Query)
		results = []SearchResult{}
	}
	if results == nil {
		results = []SearchResult{}
	}

	return &SearchResponse{
		Query:           req.Query,
		Results:         results,
		TotalResults:    len(results),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		QueryType:       req.Type,
	}
}

func (s *Service) search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.topK
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = s.minScore
	}

	queryVec, err := s.embedQuery(ctx, req.Query, req.Type)
	if err != nil {
		return nil, err
	}

	contentTypes := []ContentType{ContentTitle, ContentAbstract}
	if req.IncludeFullText {
		contentTypes = append(contentTypes, ContentChunk)
	}

	// Per-type searches are independent and read-only, so they run
	// concurrently into ordered slots; the merge below still walks the
	// content types in enumeration order.
	perType := make([][]Match, len(contentTypes))
	errs := make([]error, len(contentTypes))
	var wg sync.WaitGroup
	for i, ct := range contentTypes {
		wg.Add(1)
		go func(i int, ct ContentType) {
			defer wg.Done()
			perType[i], errs[i] = s.store.Query(ctx, queryVec, ct, maxResults, minScore)
		}(i, ct)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// First-seen-wins: a paper already matched by an earlier content type
	// keeps that match even when a later type scores higher.
	seen := make(map[string]bool)
	var merged []Match
	for _, matches := range perType {
		for _, m := range matches {
			if seen[m.PaperID] {
				continue
			}
			seen[m.PaperID] = true
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	var results []SearchResult
	for _, m := range merged {
		p, err := s.papers.Get(ctx, m.PaperID)
		if err != nil {
			slog.WarnContext(ctx, "failed to hydrate paper", "paper_id", m.PaperID, "error", err)
			continue
		}
		if !req.Filters.Match(p) {
			continue
		}
		results = append(results, SearchResult{
			Paper:          p,
			Score:          m.Score,
			Highlight:      Highlight(m.Content, req.Query),
			MatchedContent: m.ContentType,
		})
	}
	return results, nil
}

// embedQuery turns the query text into the similarity-search vector. Keyword
// queries are embedded per keyword and mean-pooled; everything else embeds
// the raw query text.
func (s *Service) embedQuery(ctx context.Context, query string, searchType SearchType) ([]float32, error) {
	if searchType != SearchKeyword {
		return s.embedder.Embed(ctx, query)
	}

	keywords := strings.Fields(query)
	if len(keywords) <= 1 {
		return s.embedder.Embed(ctx, query)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, keywords)
	if err != nil {
		return nil, err
	}
	return meanPool(vectors), nil
}

func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	pooled := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			pooled[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled
}
