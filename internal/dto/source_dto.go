package dto

type SourceSummaryDTO struct {
	SourceId   string `json:"source_id"`
	SourceType string `json:"source_type"`
	ChunkCount int64  `json:"chunk_count"`
}

type ListSourcesResponse struct {
	Ok    bool               `json:"ok"`
	Items []SourceSummaryDTO `json:"items"`
}

type DeleteSourceResponse struct {
	Ok       bool   `json:"ok"`
	SourceId string `json:"source_id"`
}
