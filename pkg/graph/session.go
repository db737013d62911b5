package graph

import (
	"encoding/json"
	"strings"

	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
)

// SessionMarkerPrefix tags the hidden system message that carries session
// metadata inside chat history.
const SessionMarkerPrefix = "__SESSION__:"

const (
	ModeChat            = "chat"
	ModeResumeInterview = "resume_interview"
)

// SessionMeta is the per-conversation metadata recovered from the history
// marker. Every field has a usable default so a missing or malformed
// marker degrades to plain chat.
type SessionMeta struct {
	Mode             string                  `json:"mode"`
	ActiveSourceID   string                  `json:"active_source_id"`
	ActiveSourceType string                  `json:"active_source_type"`
	ConversationID   string                  `json:"conversation_id"`
	InterviewState   *session.InterviewState `json:"resume_interview_state,omitempty"`
}

// ResumeBound reports whether this session routes deterministically to the
// resume interview engine.
func (m SessionMeta) ResumeBound() bool {
	return m.Mode == ModeResumeInterview &&
		m.ActiveSourceType == "resume" &&
		strings.TrimSpace(m.ActiveSourceID) != ""
}

// BuildSessionMarker renders the metadata as the hidden leading system
// message.
func BuildSessionMarker(meta SessionMeta) llm.Message {
	raw, _ := json.Marshal(meta)
	return llm.Message{Role: "system", Content: SessionMarkerPrefix + string(raw)}
}

// ExtractSession scans leading system messages for a session marker,
// returning the parsed metadata and the history with marker messages
// stripped. Without a marker the mode defaults to chat.
func ExtractSession(history []llm.Message) (SessionMeta, []llm.Message) {
	meta := SessionMeta{Mode: ModeChat}
	var cleaned []llm.Message
	found := false

	for i, msg := range history {
		if !found && msg.Role == "system" && strings.HasPrefix(msg.Content, SessionMarkerPrefix) {
			raw := strings.TrimPrefix(msg.Content, SessionMarkerPrefix)
			var parsed SessionMeta
			if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
				if parsed.Mode == "" {
					parsed.Mode = ModeChat
				}
				meta = parsed
			}
			found = true
			continue
		}
		// Only the leading run of system messages may carry the marker.
		if !found && msg.Role != "system" {
			cleaned = append(cleaned, history[i:]...)
			return meta, cleaned
		}
		cleaned = append(cleaned, msg)
	}
	return meta, cleaned
}
