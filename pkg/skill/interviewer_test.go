package skill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
)

type scriptedLLM struct {
	reply    string
	messages []llm.Message
}

func (s *scriptedLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	s.messages = history
	return s.reply, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

type staticRetriever struct {
	items []retrieval.Evidence
}

func (r *staticRetriever) Retrieve(ctx context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Evidence, error) {
	return r.items, nil
}

func (r *staticRetriever) GetByIDs(ctx context.Context, ids []string) ([]retrieval.Evidence, error) {
	return r.items, nil
}

func TestEnforceKickoffOutput(t *testing.T) {
	got := enforceKickoffOutput("介绍一下你在项目里的缓存设计\n分类：正确\n反馈：不该出现")
	assert.Equal(t, "问题：介绍一下你在项目里的缓存设计", got)

	got = enforceKickoffOutput("问题：讲讲你的 Redis 使用经验")
	assert.Equal(t, "问题：讲讲你的 Redis 使用经验", got)
}

func TestNormalizeStructuredOutput(t *testing.T) {
	in := "Answer Classification: 模糊\nFeedback: 缺少量化数据。\nFollow-up Question: QPS 是多少？"
	got := normalizeStructuredOutput(in)
	assert.Equal(t, "分类：模糊\n\n反馈：缺少量化数据。\n\n下一步问题：QPS 是多少？", got)

	// Plain prose without labels passes through.
	assert.Equal(t, "随便聊聊", normalizeStructuredOutput("随便聊聊"))
}

func TestHasInterviewStarted(t *testing.T) {
	assert.False(t, HasInterviewStarted(nil))
	assert.False(t, HasInterviewStarted([]llm.Message{{Role: "user", Content: "下一步问题：x"}}))
	assert.True(t, HasInterviewStarted([]llm.Message{{Role: "assistant", Content: "问题：介绍一下项目"}}))
	assert.True(t, HasInterviewStarted([]llm.Message{{Role: "assistant", Content: "分类：正确\n反馈：好"}}))
}

func TestIsInterviewKickoff(t *testing.T) {
	assert.True(t, IsInterviewKickoff("针对我的简历提问", nil))
	assert.True(t, IsInterviewKickoff("根据简历问我几个问题", nil))
	assert.True(t, IsInterviewKickoff("mock interview please", nil))
	assert.False(t, IsInterviewKickoff("我的回答是用了读写锁", nil))

	started := []llm.Message{{Role: "assistant", Content: "问题：说说你的项目"}}
	assert.False(t, IsInterviewKickoff("针对我的简历提问", started))
}

func TestResumeTurnKickoffUsesEvidence(t *testing.T) {
	provider := &scriptedLLM{reply: "讲讲你在订单系统里的幂等设计"}
	retriever := &staticRetriever{items: []retrieval.Evidence{
		{ID: "resume:0", Text: "负责订单系统，设计幂等扣减。", Score: 0.03},
	}}
	interviewer := NewInterviewer(provider, retriever)

	res, err := interviewer.RunResumeInterviewTurn(context.Background(), "请针对我的简历提问", nil, "resume_1", 4)
	require.NoError(t, err)
	assert.Equal(t, "问题：讲讲你在订单系统里的幂等设计", res.Answer)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "resume:0", res.Citations[0].ID)

	// The kickoff prompt carries the evidence block.
	last := provider.messages[len(provider.messages)-1]
	assert.Contains(t, last.Content, "[[resume:0]]")
}

func TestResumeTurnFollowUpNormalizesLabels(t *testing.T) {
	provider := &scriptedLLM{reply: "Feedback: 缺少细节。\nFollow-up Question: 如何处理重试？"}
	retriever := &staticRetriever{items: []retrieval.Evidence{
		{ID: "resume:0", Text: "负责订单系统。", Score: 0.03},
	}}
	interviewer := NewInterviewer(provider, retriever)

	history := []llm.Message{{Role: "assistant", Content: "问题：说说幂等设计"}}
	res, err := interviewer.RunResumeInterviewTurn(context.Background(), "我用了唯一索引。", history, "resume_1", 4)
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "反馈：缺少细节。")
	assert.Contains(t, res.Answer, "下一步问题：如何处理重试？")
}

func TestResumeTurnWithoutSourceFallsBack(t *testing.T) {
	provider := &scriptedLLM{reply: "分类：模糊\n反馈：再具体些。\n下一步问题：举个例子？"}
	interviewer := NewInterviewer(provider, &staticRetriever{})

	res, err := interviewer.RunResumeInterviewTurn(context.Background(), "随便问问", nil, "", 4)
	require.NoError(t, err)
	assert.Empty(t, res.Citations)
	assert.Contains(t, res.Answer, "分类：")
}

func TestCitationCapAtThree(t *testing.T) {
	items := []retrieval.Evidence{
		{ID: "a", Text: "一"}, {ID: "b", Text: "二"}, {ID: "c", Text: "三"}, {ID: "d", Text: "四"},
	}
	res := buildEvidenceResult("答", items)
	assert.Len(t, res.Citations, 3)
	assert.Len(t, res.UsedContext, 3)
}
