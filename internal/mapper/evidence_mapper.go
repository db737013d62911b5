package mapper

import (
	"github.com/lrfluobida/agent-job-coach/internal/entity"
	"github.com/lrfluobida/agent-job-coach/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type EvidenceMapper struct{}

func NewEvidenceMapper() *EvidenceMapper {
	return &EvidenceMapper{}
}

func (m *EvidenceMapper) ToModel(e *entity.EvidenceChunk) *model.EvidenceChunk {
	meta := datatypes.JSONMap{}
	for k, v := range e.Metadata {
		meta[k] = v
	}
	return &model.EvidenceChunk{
		Id:         e.Id,
		SourceType: e.SourceType,
		SourceId:   e.SourceId,
		DocKind:    e.DocKind,
		Text:       e.Text,
		Metadata:   meta,
		Embedding:  pgvector.NewVector(e.Embedding),
		CreatedAt:  e.CreatedAt,
	}
}

func (m *EvidenceMapper) ToEntity(mod *model.EvidenceChunk) *entity.EvidenceChunk {
	meta := map[string]interface{}{}
	for k, v := range mod.Metadata {
		meta[k] = v
	}
	return &entity.EvidenceChunk{
		Id:         mod.Id,
		SourceType: mod.SourceType,
		SourceId:   mod.SourceId,
		DocKind:    mod.DocKind,
		Text:       mod.Text,
		Metadata:   meta,
		Embedding:  mod.Embedding.Slice(),
		CreatedAt:  mod.CreatedAt,
	}
}
