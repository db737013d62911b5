// FILE: internal/service/source_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"
)

type ISourceService interface {
	ListSources(ctx context.Context) ([]dto.SourceSummaryDTO, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

type sourceService struct {
	evidenceRepository contract.EvidenceRepository
}

func NewSourceService(evidenceRepository contract.EvidenceRepository) ISourceService {
	return &sourceService{evidenceRepository: evidenceRepository}
}

func (s *sourceService) ListSources(ctx context.Context) ([]dto.SourceSummaryDTO, error) {
	summaries, err := s.evidenceRepository.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]dto.SourceSummaryDTO, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, dto.SourceSummaryDTO{
			SourceId:   sum.SourceId,
			SourceType: sum.SourceType,
			ChunkCount: sum.ChunkCount,
		})
	}
	return out, nil
}

func (s *sourceService) DeleteSource(ctx context.Context, sourceID string) error {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return fmt.Errorf("delete source: source id is required")
	}
	if err := s.evidenceRepository.DeleteBySourceId(ctx, sourceID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}
