// FILE: internal/service/chat_service_test.go
package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/graph"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  int
	output *graph.TurnOutput
	err    error
}

func (f *fakeRunner) RunTurn(_ context.Context, _ graph.TurnInput) (*graph.TurnOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := *f.output
	return &out, nil
}

type fakeStore struct {
	denyLock bool
	pingErr  error

	lockToken    string
	released     string
	states       map[string]session.InterviewState
	requestCache map[string]session.RequestCacheEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:       map[string]session.InterviewState{},
		requestCache: map[string]session.RequestCacheEntry{},
	}
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeStore) AcquireLock(_ context.Context, _, token string) (bool, error) {
	if f.denyLock {
		return false, nil
	}
	f.lockToken = token
	return true, nil
}

func (f *fakeStore) ReleaseLock(_ context.Context, _, token string) error {
	f.released = token
	return nil
}

func (f *fakeStore) GetRequestResult(_ context.Context, cid, rid string) (*session.RequestCacheEntry, error) {
	entry, ok := f.requestCache[cid+"/"+rid]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (f *fakeStore) SetRequestResult(_ context.Context, cid, rid string, entry session.RequestCacheEntry) error {
	f.requestCache[cid+"/"+rid] = entry
	return nil
}

func (f *fakeStore) GetInterviewState(_ context.Context, cid string) (session.InterviewState, error) {
	return f.states[cid], nil
}

func (f *fakeStore) SetInterviewState(_ context.Context, cid string, state session.InterviewState) error {
	f.states[cid] = state
	return nil
}

type idRetriever struct{}

func (idRetriever) Retrieve(_ context.Context, _ string, _ int, _ retrieval.Filter) ([]retrieval.Evidence, error) {
	return nil, nil
}

func (idRetriever) GetByIDs(_ context.Context, ids []string) ([]retrieval.Evidence, error) {
	out := make([]retrieval.Evidence, 0, len(ids))
	for _, id := range ids {
		out = append(out, retrieval.Evidence{
			ID:       id,
			Text:     fmt.Sprintf("doc::%s", id),
			Metadata: map[string]interface{}{"source_id": "s1", "source_type": "note"},
			Score:    0,
		})
	}
	return out, nil
}

func resumeRequest(requestID string) *dto.ChatStreamRequest {
	return &dto.ChatStreamRequest{
		Question:         "开始面试",
		Mode:             "resume_interview",
		ActiveSourceId:   "resume_1",
		ActiveSourceType: "resume",
		ConversationId:   "conv_fixed",
		RequestId:        requestID,
	}
}

func newChatServiceForTest(runner *fakeRunner, store *fakeStore) IChatService {
	return NewChatService(runner, store, idRetriever{}, nil, logger.NoopLogger{})
}

func TestCompactForRequestCacheDedupesIds(t *testing.T) {
	out := &graph.TurnOutput{
		Answer: "hello",
		Citations: []coerce.Citation{
			{ID: "c1", Quote: "q1"},
			{ID: "c2"},
			{ID: "c1", Quote: "again"},
			{ID: "  "},
		},
	}
	compact := compactForRequestCache(out)
	assert.Equal(t, "hello", compact.Answer)
	assert.Equal(t, []string{"c1", "c2"}, compact.CitationIDs)
}

func TestStreamTurnRunsOnceAndReplaysFromCache(t *testing.T) {
	state := session.InterviewState{SourceID: "resume_1", AskedQuestionIDs: []string{"q1"}}
	runner := &fakeRunner{output: &graph.TurnOutput{
		Answer:         "题目：讲讲 HashMap",
		Citations:      []coerce.Citation{{ID: "c1", Quote: "q"}},
		UsedContext:    []retrieval.Evidence{{ID: "c1", Text: "card text"}},
		InterviewState: &state,
	}}
	store := newFakeStore()
	svc := newChatServiceForTest(runner, store)

	first, err := svc.StreamTurn(context.Background(), resumeRequest("req_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "conv_fixed", first.ConversationId)
	assert.Equal(t, state, store.states["conv_fixed"])
	assert.Equal(t, store.lockToken, store.released)

	cached, ok := store.requestCache["conv_fixed/req_1"]
	require.True(t, ok)
	assert.Equal(t, "题目：讲讲 HashMap", cached.Answer)
	assert.Equal(t, []string{"c1"}, cached.CitationIDs)

	// Retried request id replays the compact entry without re-running the
	// turn; context is rehydrated from the evidence store.
	second, err := svc.StreamTurn(context.Background(), resumeRequest("req_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, first.Answer, second.Answer)
	require.Len(t, second.UsedContext, 1)
	assert.Equal(t, "c1", second.UsedContext[0].ID)
	assert.Equal(t, "doc::c1", second.UsedContext[0].Text)
	assert.Equal(t, float64(0), second.UsedContext[0].Score)
	require.Len(t, second.Citations, 1)
	assert.Equal(t, "doc::c1", second.Citations[0].Quote)
}

func TestStreamTurnBusyConversation(t *testing.T) {
	runner := &fakeRunner{output: &graph.TurnOutput{Answer: "x"}}
	store := newFakeStore()
	store.denyLock = true
	svc := newChatServiceForTest(runner, store)

	_, err := svc.StreamTurn(context.Background(), resumeRequest("req_1"))
	require.ErrorIs(t, err, session.ErrConversationBusy)
	assert.Equal(t, 0, runner.calls)
}

func TestStreamTurnStoreUnavailable(t *testing.T) {
	runner := &fakeRunner{output: &graph.TurnOutput{Answer: "x"}}
	store := newFakeStore()
	store.pingErr = session.ErrUnavailable
	svc := newChatServiceForTest(runner, store)

	_, err := svc.StreamTurn(context.Background(), resumeRequest("req_1"))
	require.ErrorIs(t, err, session.ErrUnavailable)
}

func TestStreamTurnPlainChatSkipsSessionStore(t *testing.T) {
	runner := &fakeRunner{output: &graph.TurnOutput{Answer: "plain"}}
	store := newFakeStore()
	svc := newChatServiceForTest(runner, store)

	res, err := svc.StreamTurn(context.Background(), &dto.ChatStreamRequest{Question: "如何准备自我介绍"})
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Answer)
	assert.Equal(t, 1, runner.calls)
	assert.Empty(t, store.lockToken)
	assert.Empty(t, store.requestCache)
	assert.True(t, strings.HasPrefix(res.ConversationId, "conv_"))
	assert.True(t, strings.HasPrefix(res.RequestId, "req_"))
}

func TestChatMapsCitationsAndContext(t *testing.T) {
	runner := &fakeRunner{output: &graph.TurnOutput{
		Answer:      "answer",
		Citations:   []coerce.Citation{{ID: "c1"}},
		UsedContext: []retrieval.Evidence{{ID: "c1", Text: "evidence text", Score: 0.12}},
	}}
	svc := newChatServiceForTest(runner, newFakeStore())

	res, err := svc.Chat(context.Background(), &dto.ChatRequest{Question: "面试怎么准备", TopK: 5})
	require.NoError(t, err)
	assert.True(t, res.Ok)
	require.Len(t, res.Citations, 1)
	// Empty quote falls back to the cited context text.
	assert.Equal(t, "evidence text", res.Citations[0].Quote)
	require.Len(t, res.UsedContext, 1)
	assert.Equal(t, 0.12, res.UsedContext[0].Score)
}
