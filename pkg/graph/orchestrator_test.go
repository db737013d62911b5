package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/pkg/interview"
	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/skill"
)

// fakeLLM routes replies by prompt content: planner prompts get the plan
// reply, everything else the chat reply.
type fakeLLM struct {
	planReply string
	chatReply string
	chatErr   error
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	f.calls++
	if len(history) == 1 && strings.Contains(history[0].Content, "工具规划器") {
		return f.planReply, nil
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatReply, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

type stubRetriever struct {
	byType map[string][]retrieval.Evidence
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Evidence, error) {
	if items, ok := s.byType[filter.SourceType]; ok {
		return items, nil
	}
	return s.byType[""], nil
}

func (s *stubRetriever) GetByIDs(ctx context.Context, ids []string) ([]retrieval.Evidence, error) {
	var out []retrieval.Evidence
	for _, items := range s.byType {
		for _, item := range items {
			for _, id := range ids {
				if item.ID == id {
					out = append(out, item)
				}
			}
		}
	}
	return out, nil
}

func newOrchestratorForTest(provider llm.LLMProvider, retriever retrieval.Retriever) *Orchestrator {
	engine := interview.NewEngine(retriever, interview.FirstSampler{})
	interviewer := skill.NewInterviewer(provider, retriever)
	return NewOrchestrator(provider, retriever, engine, interviewer, nil, 3, logger.NoopLogger{})
}

func chunkEvidence() map[string][]retrieval.Evidence {
	return map[string][]retrieval.Evidence{
		"": {
			{ID: "note:1", Text: "STAR 法则：情境、任务、行动、结果。", Score: 0.02},
			{ID: "note:2", Text: "自我介绍要围绕岗位匹配点。", Score: 0.04},
		},
		"resume": {
			{ID: "resume:0", Text: "负责 Redis 缓存与库存扣减。", Metadata: map[string]interface{}{"source_type": "resume"}, Score: 0.05},
		},
		"note": {
			{
				ID:   "note:qa:1",
				Text: "Question: Redis 缓存穿透如何处理？\nStandardAnswer:\n布隆过滤器加空值缓存。\nTopic: database",
				Metadata: map[string]interface{}{
					"question_id":     "q_redis",
					"question":        "Redis 缓存穿透如何处理？",
					"standard_answer": "布隆过滤器加空值缓存。",
					"topic":           "database",
					"tags":            "redis",
					"key_points_json": `["布隆过滤器","空值缓存"]`,
				},
				Score: 0.01,
			},
		},
	}
}

func TestRunTurnDirectAnswerWithMarkers(t *testing.T) {
	provider := &fakeLLM{
		planReply: `{"tool_plan":[]}`,
		chatReply: "面试时建议使用 STAR 法则组织回答 [@note:1]。",
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	out, err := orch.RunTurn(context.Background(), TurnInput{Question: "怎么组织行为面试的回答？", TopK: 5})
	require.NoError(t, err)
	assert.NotContains(t, out.Answer, "[@note:1]")
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "note:1", out.Citations[0].ID)
	assert.Equal(t, ModeChat, out.Session.Mode)
	assert.Nil(t, out.InterviewState)
}

func TestRunTurnFallbackCitationIsTopContext(t *testing.T) {
	provider := &fakeLLM{
		planReply: `{"tool_plan":[]}`,
		chatReply: "一个没有任何引用标记的回答。",
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	out, err := orch.RunTurn(context.Background(), TurnInput{Question: "随便聊聊", TopK: 5})
	require.NoError(t, err)
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "note:1", out.Citations[0].ID)
}

func TestRunTurnPlannedInterviewSkill(t *testing.T) {
	provider := &fakeLLM{
		planReply: `{"tool_plan":[{"name":"skill_interview_qa","args":{"question":"如何回答自我介绍？"}}]}`,
		chatReply: "分类：模糊\n反馈：缺少重点。\n下一步问题：你的核心优势是什么？",
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	out, err := orch.RunTurn(context.Background(), TurnInput{Question: "如何回答自我介绍？", TopK: 5})
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.Equal(t, ToolInterviewQA, out.ToolResults[0].Name)
	assert.True(t, out.ToolResults[0].OK)
	assert.Contains(t, out.Answer, "分类：")
}

func TestRunTurnKeywordFallbackPlanning(t *testing.T) {
	// Planner output is unparseable, so the interview keyword routes the
	// turn to the interview skill.
	provider := &fakeLLM{
		planReply: "我不会输出 JSON",
		chatReply: "分类：正确\n反馈：可以。\n下一步问题：展开讲讲？",
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	out, err := orch.RunTurn(context.Background(), TurnInput{Question: "面试该怎么准备？", TopK: 5})
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.Equal(t, ToolInterviewQA, out.ToolResults[0].Name)
}

func TestRunTurnDeterministicResumeRoute(t *testing.T) {
	// The planner reply would route elsewhere, but resume-bound sessions
	// never consult it.
	provider := &fakeLLM{
		planReply: `{"tool_plan":[{"name":"rag_retrieve","args":{}}]}`,
		chatReply: "不应被使用",
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	meta := SessionMeta{
		Mode:             ModeResumeInterview,
		ActiveSourceID:   "resume_1",
		ActiveSourceType: "resume",
		ConversationID:   "conv_1",
	}
	out, err := orch.RunTurn(context.Background(), TurnInput{
		Question: "开始面试",
		TopK:     5,
		History:  []llm.Message{BuildSessionMarker(meta)},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Answer, "题目")
	require.NotNil(t, out.InterviewState)
	assert.Len(t, out.InterviewState.AskedQuestionIDs, 1)
	assert.Empty(t, out.ToolResults)
}

func TestRunTurnSafetyFallbackOnGenerationFailure(t *testing.T) {
	provider := &fakeLLM{
		planReply: `{"tool_plan":[]}`,
		chatErr:   assert.AnError,
	}
	orch := newOrchestratorForTest(provider, &stubRetriever{byType: chunkEvidence()})

	out, err := orch.RunTurn(context.Background(), TurnInput{Question: "随便聊聊", TopK: 5})
	require.NoError(t, err)
	// Both generation and the fallback skill fail, so the diagnostic
	// answer surfaces instead of an error.
	assert.Equal(t, diagnosticAnswer, out.Answer)
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, 5, clampTopK(0))
	assert.Equal(t, 1, clampTopK(1))
	assert.Equal(t, 20, clampTopK(99))
}
