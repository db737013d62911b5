package interview

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
)

type fakeRetriever struct {
	resume []retrieval.Evidence
	notes  []retrieval.Evidence
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Evidence, error) {
	switch filter.SourceType {
	case "resume":
		return f.resume, nil
	case "note":
		return f.notes, nil
	}
	return nil, nil
}

func (f *fakeRetriever) GetByIDs(ctx context.Context, ids []string) ([]retrieval.Evidence, error) {
	var out []retrieval.Evidence
	for _, id := range ids {
		for _, ev := range append(f.resume, f.notes...) {
			if ev.ID == id {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func keyPointsJSON(t *testing.T, points []string) string {
	t.Helper()
	raw, err := json.Marshal(points)
	require.NoError(t, err)
	return string(raw)
}

func newTwoCardRetriever(t *testing.T) *fakeRetriever {
	t.Helper()
	return &fakeRetriever{
		resume: []retrieval.Evidence{
			{
				ID:       "resume:0",
				Text:     "项目里做过 Redis 缓存和 Lua 脚本扣减库存。",
				Metadata: map[string]interface{}{"source_type": "resume", "source_id": "resume_1"},
				Score:    0.05,
			},
		},
		notes: []retrieval.Evidence{
			{
				ID:   "note:qa:1",
				Text: "Question: HashMap 原理？\nStandardAnswer:\n数组+链表/红黑树，put/get 过程会用 hash 定位和 equals 判等。\nTopic: collections",
				Metadata: map[string]interface{}{
					"question_id":     "q_hashmap",
					"question":        "HashMap 原理？",
					"standard_answer": "数组+链表/红黑树，put/get 过程会用 hash 定位和 equals 判等。",
					"topic":           "collections",
					"tags":            "hashmap,collection",
					"key_points_json": keyPointsJSON(t, []string{"数组+链表/红黑树", "put/get 流程", "hash 和 equals 判等"}),
				},
				Score: 0.01,
			},
			{
				ID:   "note:qa:2",
				Text: "Question: ConcurrentHashMap 原理？\nStandardAnswer:\nJDK8 使用 CAS + synchronized 桶头锁，并发读基本无锁。\nTopic: collections",
				Metadata: map[string]interface{}{
					"question_id":     "q_chm",
					"question":        "ConcurrentHashMap 原理？",
					"standard_answer": "JDK8 使用 CAS + synchronized 桶头锁，并发读基本无锁。",
					"topic":           "collections",
					"tags":            "concurrenthashmap,collection",
					"key_points_json": keyPointsJSON(t, []string{"JDK8", "CAS + synchronized", "读基本无锁"}),
				},
				Score: 0.02,
			},
		},
	}
}

func TestRunTurnNoRepeatAndEval(t *testing.T) {
	engine := NewEngine(newTwoCardRetriever(t), FirstSampler{})
	ctx := context.Background()

	first, err := engine.RunTurn(ctx, "开始面试", "resume_1", 10, &session.InterviewState{})
	require.NoError(t, err)
	assert.Contains(t, first.Answer, "题目")
	assert.Len(t, first.State.AskedQuestionIDs, 1)
	firstQID := first.State.CurrentQuestionID
	require.NotEmpty(t, firstQID)
	require.Len(t, first.Citations, 1)

	second, err := engine.RunTurn(ctx, "HashMap 底层是数组和链表，查找会先 hash 再 equals。", "resume_1", 10, &first.State)
	require.NoError(t, err)
	assert.Contains(t, second.Answer, "参考答案")
	assert.Len(t, second.State.AskedQuestionIDs, 2)
	assert.NotEqual(t, firstQID, second.State.CurrentQuestionID)
}

func TestRunTurnExhaustedPool(t *testing.T) {
	engine := NewEngine(newTwoCardRetriever(t), FirstSampler{})
	ctx := context.Background()

	state := &session.InterviewState{}
	first, err := engine.RunTurn(ctx, "开始面试", "resume_1", 10, state)
	require.NoError(t, err)
	second, err := engine.RunTurn(ctx, "第一题的回答。", "resume_1", 10, &first.State)
	require.NoError(t, err)

	// Both cards asked; answering the second exhausts the pool.
	third, err := engine.RunTurn(ctx, "第二题的回答。", "resume_1", 10, &second.State)
	require.NoError(t, err)
	assert.Contains(t, third.Answer, "题库已抽完")
	assert.Empty(t, third.State.CurrentQuestionID)
	assert.Len(t, third.State.AskedQuestionIDs, 2)
}

func TestRunTurnMissingSource(t *testing.T) {
	engine := NewEngine(newTwoCardRetriever(t), FirstSampler{})
	res, err := engine.RunTurn(context.Background(), "开始面试", "  ", 10, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "未绑定简历 source_id")
	assert.Empty(t, res.Citations)
}

func TestRunTurnNoCandidates(t *testing.T) {
	engine := NewEngine(&fakeRetriever{}, FirstSampler{})
	res, err := engine.RunTurn(context.Background(), "开始面试", "resume_1", 10, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "没有匹配到可用题目")
}

func TestRunTurnTopicCommandResetsQuestion(t *testing.T) {
	engine := NewEngine(newTwoCardRetriever(t), FirstSampler{})
	stored := &session.InterviewState{
		SourceID:          "resume_1",
		CurrentQuestionID: "q_hashmap",
		CurrentQuestion:   "HashMap 原理？",
	}
	res, err := engine.RunTurn(context.Background(), "ask me about concurrency", "resume_1", 10, stored)
	require.NoError(t, err)
	assert.Equal(t, "concurrency", res.State.Topic)
	// A topic command always asks a fresh question even mid-answer.
	assert.Contains(t, res.Answer, "题目")
	assert.Contains(t, res.Answer, "主题：concurrency")
}

func TestRunTurnDiscardsForeignState(t *testing.T) {
	engine := NewEngine(newTwoCardRetriever(t), FirstSampler{})
	stored := &session.InterviewState{
		SourceID:         "resume_other",
		AskedQuestionIDs: []string{"q_hashmap", "q_chm"},
	}
	res, err := engine.RunTurn(context.Background(), "开始面试", "resume_1", 10, stored)
	require.NoError(t, err)
	// State bound to another resume is ignored, so the pool is fresh.
	assert.Len(t, res.State.AskedQuestionIDs, 1)
}

func TestEvaluateAnswerBoundaries(t *testing.T) {
	keyPoints := []string{"数组结构", "链表结构", "红黑树转换", "扩容机制"}

	full := EvaluateAnswer("数组结构 链表结构 红黑树转换 扩容机制", strings.Join(keyPoints, " "), keyPoints)
	assert.Equal(t, "正确", full.Label)
	assert.Empty(t, full.Missing)

	partial := EvaluateAnswer("数组结构和链表结构，会转红黑树转换", "完全不同的参考答案文本", keyPoints)
	// 3 of 4 points hit with zero token similarity: 0.7*0.75 = 0.525.
	assert.Equal(t, "部分正确", partial.Label)
	assert.InDelta(t, 0.525, partial.Score, 0.001)
	assert.Equal(t, []string{"扩容机制"}, partial.Missing)

	wrong := EvaluateAnswer("不知道", "数组加链表", keyPoints)
	assert.Equal(t, "不正确", wrong.Label)
}

func TestEvaluateAnswerNoKeyPoints(t *testing.T) {
	res := EvaluateAnswer("hash map uses arrays", "hash map uses arrays", nil)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "正确", res.Label)
}

func TestPickQuestionSamplesFromTopPool(t *testing.T) {
	retr := newTwoCardRetriever(t)
	engine := NewEngine(retr, NewRandomSampler(42))
	ctx := context.Background()

	// Whatever the draw, the selected card must come from the candidate set
	// and never repeat an asked question.
	for i := 0; i < 20; i++ {
		card, err := engine.pickQuestion(ctx, map[string]bool{"q_hashmap": true}, "", nil, 10)
		require.NoError(t, err)
		require.NotNil(t, card)
		assert.Equal(t, "q_chm", card.QuestionID)
	}
}

func TestExtractTopicCommand(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"ask me about redis", "redis"},
		{"Question me about java concurrency", "java concurrency"},
		// The optional suffix can match empty, so greedy capture keeps it.
		{"提问我关于并发的问题", "并发的问题"},
		{"关于集合提问", "集合"},
		{"今天天气不错", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractTopicCommand(tc.input), "input %q", tc.input)
	}
}

func TestQuestionAndSkipRequests(t *testing.T) {
	assert.True(t, IsQuestionRequest("开始面试"))
	assert.True(t, IsQuestionRequest("来一题"))
	assert.True(t, IsQuestionRequest("Interview me please"))
	assert.False(t, IsQuestionRequest("我的回答是数组加链表"))

	assert.True(t, IsSkipRequest("跳过"))
	assert.True(t, IsSkipRequest("skip this one"))
	assert.False(t, IsSkipRequest("我的回答"))
}
