package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type EvidenceChunk struct {
	Id         string            `gorm:"column:id;primaryKey"`
	SourceType string            `gorm:"column:source_type;index:idx_evidence_source"`
	SourceId   string            `gorm:"column:source_id;index:idx_evidence_source"`
	DocKind    string            `gorm:"column:doc_kind;index"`
	Text       string            `gorm:"column:text;type:text"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata"`
	Embedding  pgvector.Vector   `gorm:"column:embedding;type:vector(1024)"`
	CreatedAt  time.Time         `gorm:"column:created_at"`
}

func (EvidenceChunk) TableName() string {
	return "evidence_chunks"
}
