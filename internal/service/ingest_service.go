// FILE: internal/service/ingest_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"
	"github.com/lrfluobida/agent-job-coach/pkg/qacard"
	"github.com/lrfluobida/agent-job-coach/pkg/utils"
)

type IIngestService interface {
	// IngestText replaces every chunk of the source and schedules embedding.
	// It returns the number of chunks produced.
	IngestText(ctx context.Context, text, sourceType, sourceID string) (int, error)
}

type ingestService struct {
	evidenceRepository contract.EvidenceRepository
	publisherService   IPublisherService
	chunkSize          int
	chunkOverlap       int
	logger             logger.ILogger
}

func NewIngestService(
	evidenceRepository contract.EvidenceRepository,
	publisherService IPublisherService,
	chunkSize int,
	chunkOverlap int,
	log logger.ILogger,
) IIngestService {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &ingestService{
		evidenceRepository: evidenceRepository,
		publisherService:   publisherService,
		chunkSize:          chunkSize,
		chunkOverlap:       chunkOverlap,
		logger:             log,
	}
}

func (s *ingestService) IngestText(ctx context.Context, text, sourceType, sourceID string) (int, error) {
	sourceID = strings.TrimSpace(sourceID)
	sourceType = strings.TrimSpace(sourceType)
	if sourceID == "" {
		return 0, fmt.Errorf("ingest: source id is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("ingest: text is empty")
	}

	// Re-ingesting a source replaces it wholesale.
	if err := s.evidenceRepository.DeleteBySourceId(ctx, sourceID); err != nil {
		return 0, fmt.Errorf("ingest: delete existing source: %w", err)
	}

	chunks := s.buildChunks(text, sourceType, sourceID)
	if len(chunks) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(dto.PublishEmbedEvidenceMessage{
		SourceId:   sourceID,
		SourceType: sourceType,
		Chunks:     chunks,
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: marshal embed job: %w", err)
	}
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		return 0, fmt.Errorf("ingest: publish embed job: %w", err)
	}

	s.logger.Info("ingest_service", "scheduled embed job", map[string]interface{}{
		"source_id":   sourceID,
		"source_type": sourceType,
		"chunks":      len(chunks),
	})
	return len(chunks), nil
}

// buildChunks prepares the chunk payloads. Interview notes are parsed into
// QA cards addressed by their stable question ids; everything else is split
// by rune windows.
func (s *ingestService) buildChunks(text, sourceType, sourceID string) []dto.EmbedChunkPayload {
	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	if sourceType == "note" {
		cards := qacard.Parse(text, sourceID)
		if len(cards) > 0 {
			out := make([]dto.EmbedChunkPayload, 0, len(cards))
			for _, card := range cards {
				meta := qacard.Metadata(card)
				meta["source_id"] = sourceID
				meta["source_type"] = sourceType
				meta["uploaded_at"] = uploadedAt
				out = append(out, dto.EmbedChunkPayload{
					Id:       card.QuestionID,
					DocKind:  "qa_card",
					Text:     qacard.BuildDocument(card),
					Metadata: meta,
				})
			}
			return out
		}
	}

	parts := utils.SplitText(text, s.chunkSize, s.chunkOverlap)
	out := make([]dto.EmbedChunkPayload, 0, len(parts))
	for idx, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, dto.EmbedChunkPayload{
			Id:      fmt.Sprintf("%s:%d", sourceID, idx),
			DocKind: "text",
			Metadata: map[string]interface{}{
				"source_id":   sourceID,
				"source_type": sourceType,
				"chunk_index": idx,
				"uploaded_at": uploadedAt,
			},
			Text: part,
		})
	}
	return out
}
