// FILE: internal/service/consumer_service.go
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/entity"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"
	"github.com/lrfluobida/agent-job-coach/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub             *gochannel.GoChannel
	topicName          string
	evidenceRepository contract.EvidenceRepository
	embeddingProvider  embedding.EmbeddingProvider
	logger             logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	evidenceRepository contract.EvidenceRepository,
	embeddingProvider embedding.EmbeddingProvider,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:             pubSub,
		topicName:          topicName,
		evidenceRepository: evidenceRepository,
		embeddingProvider:  embeddingProvider,
		logger:             log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishEmbedEvidenceMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("consumer_service", "failed to unmarshal embed job", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // malformed jobs never become valid, no point retrying
		return
	}

	entities := make([]*entity.EvidenceChunk, 0, len(payload.Chunks))
	for _, chunk := range payload.Chunks {
		res, err := cs.embeddingProvider.Generate(chunk.Text, embedding.TaskRetrievalDocument)
		if err != nil {
			cs.logger.Error("consumer_service", "embedding failed", map[string]interface{}{
				"source_id": payload.SourceId,
				"chunk_id":  chunk.Id,
				"error":     err.Error(),
			})
			msg.Nack()
			return
		}
		entities = append(entities, &entity.EvidenceChunk{
			Id:         chunk.Id,
			SourceType: payload.SourceType,
			SourceId:   payload.SourceId,
			DocKind:    chunk.DocKind,
			Text:       chunk.Text,
			Metadata:   chunk.Metadata,
			Embedding:  res.Embedding.Values,
			CreatedAt:  time.Now().UTC(),
		})
	}

	if err := cs.evidenceRepository.CreateBulk(ctx, entities); err != nil {
		cs.logger.Error("consumer_service", "failed to persist evidence chunks", map[string]interface{}{
			"source_id": payload.SourceId,
			"error":     err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Info("consumer_service", "embedded evidence chunks", map[string]interface{}{
		"source_id": payload.SourceId,
		"chunks":    len(entities),
	})
	msg.Ack()
}
