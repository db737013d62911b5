package dto

type IngestTextRequest struct {
	SourceId   string `json:"source_id" validate:"required"`
	SourceType string `json:"source_type" validate:"required,oneof=note resume doc"`
	Text       string `json:"text" validate:"required"`
}

// PublishEmbedEvidenceMessage is the embed job published after ingest. The
// chunks carry no embeddings yet; the consumer embeds and bulk-writes them.
type PublishEmbedEvidenceMessage struct {
	SourceId   string              `json:"source_id"`
	SourceType string              `json:"source_type"`
	Chunks     []EmbedChunkPayload `json:"chunks"`
}

type EmbedChunkPayload struct {
	Id       string                 `json:"id"`
	DocKind  string                 `json:"doc_kind"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

type IngestResponse struct {
	Ok         bool   `json:"ok"`
	SourceId   string `json:"source_id"`
	SourceType string `json:"source_type"`
	Chunks     int    `json:"chunks"`
}
