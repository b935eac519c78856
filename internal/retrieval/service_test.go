package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/internal/text"
)

type mockEmbedder struct {
	mu         sync.Mutex
	embedCalls []string
	batchCalls [][]string
	vector     []float32
	err        error
}

func (m *mockEmbedder) Embed(ctx context.Context, t string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls = append(m.embedCalls, t)
	if m.err != nil {
		return nil, m.err
	}
	if m.vector != nil {
		return m.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls = append(m.batchCalls, texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), float32(i) + 1}
	}
	return out, nil
}

type mockVectorStore struct {
	mu       sync.Mutex
	byType   map[ContentType][]Match
	upserts  []Embedding
	deletes  []string
	queryErr error
}

func (m *mockVectorStore) Upsert(ctx context.Context, emb Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, emb)
	return nil
}

func (m *mockVectorStore) Query(ctx context.Context, vector []float32, ct ContentType, topK int, minScore float64) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []Match
	for _, match := range m.byType[ct] {
		if match.Score >= minScore {
			out = append(out, match)
		}
	}
	return out, nil
}

func (m *mockVectorStore) DeleteAll(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, paperID)
	return nil
}

type mockPaperStore struct {
	mu       sync.Mutex
	papers   map[string]*paper.Paper
	statuses map[string]string
	embedded map[string]bool
}

func newMockPaperStore(papers ...*paper.Paper) *mockPaperStore {
	ps := &mockPaperStore{
		papers:   make(map[string]*paper.Paper),
		statuses: make(map[string]string),
		embedded: make(map[string]bool),
	}
	for _, p := range papers {
		ps.papers[p.ID] = p
	}
	return ps
}

func (m *mockPaperStore) Get(ctx context.Context, id string) (*paper.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.papers[id]
	if !ok {
		return nil, paper.ErrNotFound
	}
	return p, nil
}

func (m *mockPaperStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

func (m *mockPaperStore) MarkEmbedded(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedded[id] = true
	return nil
}

func newTestService(e Embedder, vs VectorStore, ps PaperStore) *Service {
	return NewService(e, vs, ps, text.NewChunker(1000, 200), "test-model", 10, 0.7)
}

func TestSearch_FirstSeenWins(t *testing.T) {
	// The same paper matches on both title and abstract; the title match is
	// seen first and is kept even though the abstract scores higher.
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentTitle:    {{PaperID: "p1", Content: "diabetes care", Score: 0.6, ContentType: ContentTitle}},
		ContentAbstract: {{PaperID: "p1", Content: "a study of diabetes", Score: 0.95, ContentType: ContentAbstract}},
	}}
	papers := newMockPaperStore(&paper.Paper{ID: "p1", Title: "Diabetes Care"})
	svc := newTestService(&mockEmbedder{}, store, papers)

	resp := svc.Search(context.Background(), SearchRequest{Query: "diabetes", Type: SearchNaturalLanguage, MinScore: 0.5})

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].Paper.ID)
	assert.Equal(t, ContentTitle, resp.Results[0].MatchedContent)
	assert.Equal(t, 0.6, resp.Results[0].Score)
}

func TestSearch_SortedAndBounded(t *testing.T) {
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentTitle: {
			{PaperID: "p1", Score: 0.75, ContentType: ContentTitle},
			{PaperID: "p2", Score: 0.9, ContentType: ContentTitle},
		},
		ContentAbstract: {
			{PaperID: "p3", Score: 0.8, ContentType: ContentAbstract},
		},
	}}
	papers := newMockPaperStore(
		&paper.Paper{ID: "p1"}, &paper.Paper{ID: "p2"}, &paper.Paper{ID: "p3"},
	)
	svc := newTestService(&mockEmbedder{}, store, papers)

	resp := svc.Search(context.Background(), SearchRequest{Query: "test", MaxResults: 2})

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "p2", resp.Results[0].Paper.ID)
	assert.Equal(t, "p3", resp.Results[1].Paper.ID)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
	assert.Equal(t, 2, resp.TotalResults)
}

func TestSearch_ChunksOnlyWithFullText(t *testing.T) {
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentChunk: {{PaperID: "p1", Score: 0.82, ContentType: ContentChunk}},
	}}
	papers := newMockPaperStore(&paper.Paper{ID: "p1"})
	svc := newTestService(&mockEmbedder{}, store, papers)

	resp := svc.Search(context.Background(), SearchRequest{Query: "test"})
	assert.Empty(t, resp.Results)

	resp = svc.Search(context.Background(), SearchRequest{Query: "test", IncludeFullText: true})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.82, resp.Results[0].Score)
	assert.Equal(t, ContentChunk, resp.Results[0].MatchedContent)
}

func TestSearch_ChunkMatchIgnoredWithoutFullText(t *testing.T) {
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentAbstract: {{PaperID: "p1", Score: 0.82, ContentType: ContentAbstract}},
		ContentChunk:    {{PaperID: "p1", Score: 0.91, ContentType: ContentChunk}},
	}}
	papers := newMockPaperStore(&paper.Paper{ID: "p1"})
	svc := newTestService(&mockEmbedder{}, store, papers)

	resp := svc.Search(context.Background(), SearchRequest{Query: "diabetes treatment"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.82, resp.Results[0].Score)
	assert.Equal(t, ContentAbstract, resp.Results[0].MatchedContent)
}

func TestSearch_MinScoreApplied(t *testing.T) {
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentTitle: {
			{PaperID: "p1", Score: 0.65, ContentType: ContentTitle},
			{PaperID: "p2", Score: 0.71, ContentType: ContentTitle},
		},
	}}
	papers := newMockPaperStore(&paper.Paper{ID: "p1"}, &paper.Paper{ID: "p2"})
	svc := newTestService(&mockEmbedder{}, store, papers)

	// Service default of 0.7 applies when the request leaves MinScore unset.
	resp := svc.Search(context.Background(), SearchRequest{Query: "test"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p2", resp.Results[0].Paper.ID)
}

func TestSearch_HydrationFailureSkipsResult(t *testing.T) {
	store := &mockVectorStore{byType: map[ContentType][]Match{
		ContentTitle: {
			{PaperID: "gone", Score: 0.9, ContentType: ContentTitle},
			{PaperID: "p1", Score: 0.8, ContentType: ContentTitle},
		},
	}}
	papers := newMockPaperStore(&paper.Paper{ID: "p1"})
	svc := newTestService(&mockEmbedder{}, store, papers)

	resp := svc.Search(context.Background(), SearchRequest{Query: "test"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].Paper.ID)
}

func TestSearch_ErrorDegradesToEmpty(t *testing.T) {
	store := &mockVectorStore{queryErr: errors.New("weaviate unreachable")}
	svc := newTestService(&mockEmbedder{}, store, newMockPaperStore())

	resp := svc.Search(context.Background(), SearchRequest{Query: "test", Type: SearchKeyword})

	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalResults)
	assert.Equal(t, SearchKeyword, resp.QueryType)
	assert.GreaterOrEqual(t, resp.ExecutionTimeMS, int64(0))
}

func TestSearch_EmbedderErrorDegradesToEmpty(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("quota exhausted")}
	svc := newTestService(embedder, &mockVectorStore{}, newMockPaperStore())

	resp := svc.Search(context.Background(), SearchRequest{Query: "test"})
	assert.Empty(t, resp.Results)
}

func TestEmbedQuery_KeywordMeanPooling(t *testing.T) {
	embedder := &mockEmbedder{}
	svc := newTestService(embedder, &mockVectorStore{}, newMockPaperStore())

	vec, err := svc.embedQuery(context.Background(), "insulin glucose metformin", SearchKeyword)
	require.NoError(t, err)

	// Three keywords go through the batch path, not three single calls.
	require.Len(t, embedder.batchCalls, 1)
	assert.Equal(t, []string{"insulin", "glucose", "metformin"}, embedder.batchCalls[0])
	assert.Empty(t, embedder.embedCalls)

	// Mean of [0,1], [1,2], [2,3] per dimension.
	require.Len(t, vec, 2)
	assert.InDelta(t, 1.0, vec[0], 1e-6)
	assert.InDelta(t, 2.0, vec[1], 1e-6)
}

func TestEmbedQuery_SingleKeywordEmbedsDirectly(t *testing.T) {
	embedder := &mockEmbedder{}
	svc := newTestService(embedder, &mockVectorStore{}, newMockPaperStore())

	_, err := svc.embedQuery(context.Background(), "insulin", SearchKeyword)
	require.NoError(t, err)
	assert.Equal(t, []string{"insulin"}, embedder.embedCalls)
	assert.Empty(t, embedder.batchCalls)
}

func TestMeanPool_Empty(t *testing.T) {
	assert.Nil(t, meanPool(nil))
}
