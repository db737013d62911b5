package dto

// ChatRequest is the synchronous chat endpoint payload.
type ChatRequest struct {
	Question string         `json:"question" validate:"required"`
	TopK     int            `json:"top_k" validate:"omitempty,gte=1,lte=20"`
	Filter   *EvidenceScope `json:"filter,omitempty"`
}

// ChatStreamRequest is the SSE endpoint payload. Session fields are optional;
// a resume interview turn needs mode, active_source_type and active_source_id
// together.
type ChatStreamRequest struct {
	Question         string           `json:"question" validate:"required"`
	TopK             int              `json:"top_k" validate:"omitempty,gte=1,lte=20"`
	Filter           *EvidenceScope   `json:"filter,omitempty"`
	History          []ChatMessageDTO `json:"history,omitempty"`
	Topic            string           `json:"topic,omitempty"`
	Mode             string           `json:"mode,omitempty" validate:"omitempty,oneof=chat resume_interview"`
	ActiveSourceId   string           `json:"active_source_id,omitempty"`
	ActiveSourceType string           `json:"active_source_type,omitempty"`
	ConversationId   string           `json:"conversation_id,omitempty"`
	RequestId        string           `json:"request_id,omitempty"`
}

type ChatMessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EvidenceScope narrows retrieval to a source type, source id and/or document
// kind.
type EvidenceScope struct {
	SourceType string `json:"source_type,omitempty"`
	SourceId   string `json:"source_id,omitempty"`
	DocKind    string `json:"doc_kind,omitempty"`
}

type CitationDTO struct {
	Id    string `json:"id"`
	Quote string `json:"quote"`
}

type EvidenceDTO struct {
	Id       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

type ChatResponse struct {
	Ok          bool          `json:"ok"`
	Answer      string        `json:"answer"`
	Citations   []CitationDTO `json:"citations"`
	UsedContext []EvidenceDTO `json:"used_context"`
}
