package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
)

func TestExtractSessionRoundTrip(t *testing.T) {
	meta := SessionMeta{
		Mode:             ModeResumeInterview,
		ActiveSourceID:   "resume_1",
		ActiveSourceType: "resume",
		ConversationID:   "conv_1",
		InterviewState:   &session.InterviewState{SourceID: "resume_1", AskedQuestionIDs: []string{"q1"}},
	}
	history := []llm.Message{
		BuildSessionMarker(meta),
		{Role: "user", Content: "开始面试"},
	}

	got, cleaned := ExtractSession(history)
	assert.Equal(t, ModeResumeInterview, got.Mode)
	assert.Equal(t, "resume_1", got.ActiveSourceID)
	assert.True(t, got.ResumeBound())
	assert.Equal(t, []string{"q1"}, got.InterviewState.AskedQuestionIDs)
	// The marker is stripped from the forwarded history.
	assert.Len(t, cleaned, 1)
	assert.Equal(t, "user", cleaned[0].Role)
}

func TestExtractSessionDefaults(t *testing.T) {
	got, cleaned := ExtractSession([]llm.Message{{Role: "user", Content: "你好"}})
	assert.Equal(t, ModeChat, got.Mode)
	assert.False(t, got.ResumeBound())
	assert.Len(t, cleaned, 1)
}

func TestExtractSessionMalformedMarker(t *testing.T) {
	history := []llm.Message{
		{Role: "system", Content: SessionMarkerPrefix + "{not json"},
		{Role: "user", Content: "你好"},
	}
	got, cleaned := ExtractSession(history)
	assert.Equal(t, ModeChat, got.Mode)
	assert.Len(t, cleaned, 1)
}

func TestExtractSessionMarkerOnlyInLeadingRun(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "你好"},
		{Role: "system", Content: SessionMarkerPrefix + `{"mode":"resume_interview"}`},
	}
	got, cleaned := ExtractSession(history)
	assert.Equal(t, ModeChat, got.Mode)
	assert.Len(t, cleaned, 2)
}

func TestResumeBoundRequiresAllFields(t *testing.T) {
	assert.False(t, SessionMeta{Mode: ModeResumeInterview, ActiveSourceType: "resume"}.ResumeBound())
	assert.False(t, SessionMeta{Mode: ModeResumeInterview, ActiveSourceID: "x", ActiveSourceType: "note"}.ResumeBound())
	assert.False(t, SessionMeta{Mode: ModeChat, ActiveSourceID: "x", ActiveSourceType: "resume"}.ResumeBound())
	assert.True(t, SessionMeta{Mode: ModeResumeInterview, ActiveSourceID: "x", ActiveSourceType: "resume"}.ResumeBound())
}
