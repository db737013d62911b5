package entity

import "time"

// EvidenceChunk is one unit of ingested text in the evidence corpus. Chunks
// are addressed by string ids so citation markers can reference them
// directly.
type EvidenceChunk struct {
	Id         string
	SourceType string
	SourceId   string
	DocKind    string
	Text       string
	Metadata   map[string]interface{}
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredEvidenceChunk pairs a chunk with its retrieval distance (lower is
// closer).
type ScoredEvidenceChunk struct {
	Chunk    *EvidenceChunk
	Distance float64
}

// SourceSummary aggregates the chunks belonging to one ingested source.
type SourceSummary struct {
	SourceId   string
	SourceType string
	ChunkCount int64
}
