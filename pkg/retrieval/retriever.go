package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"
	"github.com/lrfluobida/agent-job-coach/pkg/embedding"

	gocache "github.com/patrickmn/go-cache"
)

// Evidence is one retrieved chunk. Score carries the vector distance, so
// lower means closer.
type Evidence struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// Filter narrows a retrieval to a source type / bound source / doc kind.
type Filter struct {
	SourceType string
	SourceID   string
	DocKind    string
}

// Retriever is the evidence-retrieval contract the conversation core calls
// through.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Evidence, error)
	GetByIDs(ctx context.Context, ids []string) ([]Evidence, error)
}

// Service implements Retriever over the pgvector-backed evidence repository.
// Query embeddings are cached for a short while since interview selection
// re-issues the same profiling queries every turn.
type Service struct {
	repo       contract.EvidenceRepository
	provider   embedding.EmbeddingProvider
	queryCache *gocache.Cache
}

func NewService(repo contract.EvidenceRepository, provider embedding.EmbeddingProvider) *Service {
	return &Service{
		repo:       repo,
		provider:   provider,
		queryCache: gocache.New(10*time.Minute, 30*time.Minute),
	}
}

func (s *Service) embedQuery(query string) ([]float32, error) {
	if cached, found := s.queryCache.Get(query); found {
		return cached.([]float32), nil
	}
	res, err := s.provider.Generate(query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.queryCache.Set(query, res.Embedding.Values, gocache.DefaultExpiration)
	return res.Embedding.Values, nil
}

func (s *Service) Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Evidence, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	vector, err := s.embedQuery(query)
	if err != nil {
		return nil, err
	}

	scored, err := s.repo.SearchSimilar(ctx, vector, topK, contract.EvidenceFilter{
		SourceType: filter.SourceType,
		SourceId:   filter.SourceID,
		DocKind:    filter.DocKind,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Evidence, len(scored))
	for i, sc := range scored {
		out[i] = Evidence{
			ID:       sc.Chunk.Id,
			Text:     sc.Chunk.Text,
			Metadata: sc.Chunk.Metadata,
			Score:    sc.Distance,
		}
	}
	return out, nil
}

// GetByIDs rehydrates evidence by chunk id, preserving the requested order
// and skipping unknown ids.
func (s *Service) GetByIDs(ctx context.Context, ids []string) ([]Evidence, error) {
	chunks, err := s.repo.FindByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Evidence, len(chunks))
	for _, c := range chunks {
		byID[c.Id] = Evidence{ID: c.Id, Text: c.Text, Metadata: c.Metadata, Score: 0}
	}
	var out []Evidence
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}
