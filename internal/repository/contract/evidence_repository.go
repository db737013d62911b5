package contract

import (
	"context"

	"github.com/lrfluobida/agent-job-coach/internal/entity"
)

// EvidenceFilter narrows similarity search to a source type, a bound source
// id and/or a document kind. Empty fields match everything.
type EvidenceFilter struct {
	SourceType string
	SourceId   string
	DocKind    string
}

type EvidenceRepository interface {
	CreateBulk(ctx context.Context, chunks []*entity.EvidenceChunk) error
	FindByIds(ctx context.Context, ids []string) ([]*entity.EvidenceChunk, error)
	// SearchSimilar returns the closest chunks ordered by cosine distance,
	// ascending. The distance is reported as-is (lower means closer).
	SearchSimilar(ctx context.Context, embedding []float32, limit int, filter EvidenceFilter) ([]*entity.ScoredEvidenceChunk, error)
	DeleteBySourceId(ctx context.Context, sourceId string) error
	ListSources(ctx context.Context) ([]*entity.SourceSummary, error)
	Count(ctx context.Context) (int64, error)
}
