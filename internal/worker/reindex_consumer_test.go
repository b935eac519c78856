package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"

	"github.com/dmoniz22/biomedical-rag/features/paper"
	"github.com/dmoniz22/biomedical-rag/internal/worker"
)

type MockPaperGetter struct {
	papers map[string]*paper.Paper
	err    error
}

func (m *MockPaperGetter) Get(ctx context.Context, id string) (*paper.Paper, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.papers[id]
	if !ok {
		return nil, paper.ErrNotFound
	}
	return p, nil
}

type MockPaperIndexer struct {
	indexed []string
	err     error
}

func (m *MockPaperIndexer) IndexPaper(ctx context.Context, p *paper.Paper) error {
	if m.err != nil {
		return m.err
	}
	m.indexed = append(m.indexed, p.ID)
	return nil
}

func reindexMessage(paperID string) *nsq.Message {
	body, _ := json.Marshal(worker.ReindexPayload{PaperID: paperID, CorrelationID: "corr-1"})
	return &nsq.Message{Body: body}
}

func TestReindexConsumer_HandleMessage(t *testing.T) {
	papers := &MockPaperGetter{papers: map[string]*paper.Paper{
		"p1": {ID: "p1", Title: "A Study"},
	}}
	indexer := &MockPaperIndexer{}
	consumer := worker.NewReindexConsumer(papers, indexer)

	err := consumer.HandleMessage(reindexMessage("p1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"p1"}, indexer.indexed)
}

func TestReindexConsumer_PoisonPill(t *testing.T) {
	consumer := worker.NewReindexConsumer(&MockPaperGetter{}, &MockPaperIndexer{})

	// Invalid JSON is acked, not retried
	err := consumer.HandleMessage(&nsq.Message{Body: []byte("invalid json")})
	assert.NoError(t, err)

	// Missing paper_id is acked too
	err = consumer.HandleMessage(&nsq.Message{Body: []byte(`{"correlation_id":"x"}`)})
	assert.NoError(t, err)

	// Empty body
	err = consumer.HandleMessage(&nsq.Message{Body: nil})
	assert.NoError(t, err)
}

func TestReindexConsumer_DeletedPaperNotRetried(t *testing.T) {
	consumer := worker.NewReindexConsumer(&MockPaperGetter{papers: map[string]*paper.Paper{}}, &MockPaperIndexer{})

	err := consumer.HandleMessage(reindexMessage("gone"))
	assert.NoError(t, err)
}

func TestReindexConsumer_LookupFailureRetried(t *testing.T) {
	papers := &MockPaperGetter{err: errors.New("db down")}
	consumer := worker.NewReindexConsumer(papers, &MockPaperIndexer{})

	err := consumer.HandleMessage(reindexMessage("p1"))
	assert.Error(t, err)
}

func TestReindexConsumer_IndexFailureRetried(t *testing.T) {
	papers := &MockPaperGetter{papers: map[string]*paper.Paper{
		"p1": {ID: "p1"},
	}}
	indexer := &MockPaperIndexer{err: errors.New("weaviate unavailable")}
	consumer := worker.NewReindexConsumer(papers, indexer)

	err := consumer.HandleMessage(reindexMessage("p1"))
	assert.Error(t, err)
}
