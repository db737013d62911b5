// Package interview runs the resume-targeted mock interview loop on top of
// the evidence store: pick a fresh question biased toward the candidate's
// resume, grade the answer against the card's reference answer, and hand
// the next question over, all without repeating questions within a
// conversation.
package interview

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
)

const (
	resumeProfileQuery = "候选人简历 技术栈 项目 经验 产出"

	maxResumeKeywords = 12
	topCandidatePool  = 5
	sampleDecay       = 0.90

	rankWeightSimilarity = 0.50
	rankWeightResume     = 0.35
	rankWeightTopic      = 0.15
)

// TurnResult is the outcome of one interview turn.
type TurnResult struct {
	Answer      string
	Citations   []coerce.Citation
	UsedContext []retrieval.Evidence
	State       session.InterviewState
}

type Engine struct {
	retriever retrieval.Retriever
	sampler   Sampler
}

func NewEngine(retriever retrieval.Retriever, sampler Sampler) *Engine {
	if sampler == nil {
		sampler = NewRandomSampler(1)
	}
	return &Engine{retriever: retriever, sampler: sampler}
}

// coerceState validates a stored state against the bound source. A state
// written for another source is discarded.
func coerceState(stored *session.InterviewState, sourceID string) session.InterviewState {
	state := session.InterviewState{SourceID: sourceID}
	if stored == nil {
		return state
	}
	if strings.TrimSpace(stored.SourceID) != "" && strings.TrimSpace(stored.SourceID) != sourceID {
		return state
	}

	for _, id := range stored.AskedQuestionIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			state.AskedQuestionIDs = append(state.AskedQuestionIDs, trimmed)
		}
	}
	state.Topic = strings.TrimSpace(stored.Topic)
	state.CurrentQuestionID = strings.TrimSpace(stored.CurrentQuestionID)
	state.CurrentQuestion = strings.TrimSpace(stored.CurrentQuestion)
	state.CurrentStandardAnswer = strings.TrimSpace(stored.CurrentStandardAnswer)
	for _, p := range stored.CurrentKeyPoints {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			state.CurrentKeyPoints = append(state.CurrentKeyPoints, trimmed)
		}
	}
	state.CurrentContextID = strings.TrimSpace(stored.CurrentContextID)
	return state
}

// resumeProfile retrieves the candidate's resume chunks and distills up to
// 12 unique keywords in first-seen order.
func (e *Engine) resumeProfile(ctx context.Context, sourceID string, topK int) ([]retrieval.Evidence, []string, error) {
	limit := topK
	if limit < 4 {
		limit = 4
	}
	resumeCtx, err := e.retriever.Retrieve(ctx, resumeProfileQuery, limit, retrieval.Filter{
		SourceType: "resume",
		SourceID:   sourceID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resume profile: %w", err)
	}

	var parts []string
	for _, item := range resumeCtx {
		parts = append(parts, item.Text)
	}
	merged := strings.Join(parts, "\n")

	seen := make(map[string]bool)
	var keywords []string
	for _, token := range Tokenize(merged) {
		if len([]rune(token)) < 2 || seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
		if len(keywords) >= maxResumeKeywords {
			break
		}
	}
	return resumeCtx, keywords, nil
}

// collectCandidates merges QA card hits across several probe queries,
// keeping the lowest distance per chunk id.
func (e *Engine) collectCandidates(ctx context.Context, topic string, resumeKeywords []string, topK int) ([]retrieval.Evidence, error) {
	filter := retrieval.Filter{SourceType: "note", DocKind: "qa_card"}

	var queries []string
	if topic != "" {
		queries = append(queries, topic+" interview questions")
		queries = append(queries, topic+" 面试题")
	}
	if len(resumeKeywords) > 0 {
		head := resumeKeywords
		if len(head) > 6 {
			head = head[:6]
		}
		queries = append(queries, strings.Join(head, " ")+" interview")
	}
	queries = append(queries, "technical interview questions")

	limit := topK
	if limit < 15 {
		limit = 15
	}

	merged := make(map[string]retrieval.Evidence)
	var order []string
	for _, query := range queries {
		items, err := e.retriever.Retrieve(ctx, query, limit, filter)
		if err != nil {
			return nil, fmt.Errorf("collect candidates: %w", err)
		}
		for _, item := range items {
			cid := strings.TrimSpace(item.ID)
			if cid == "" {
				continue
			}
			existing, ok := merged[cid]
			if !ok {
				merged[cid] = item
				order = append(order, cid)
			} else if item.Score < existing.Score {
				merged[cid] = item
			}
		}
	}

	out := make([]retrieval.Evidence, 0, len(order))
	for _, cid := range order {
		out = append(out, merged[cid])
	}
	return out, nil
}

type rankedCard struct {
	score float64
	card  *QuestionCard
}

// pickQuestion ranks unasked candidates and samples from the top of the
// list with decaying weights, so the best match dominates while new
// conversations still see variety.
func (e *Engine) pickQuestion(ctx context.Context, asked map[string]bool, topic string, resumeKeywords []string, topK int) (*QuestionCard, error) {
	candidates, err := e.collectCandidates(ctx, topic, resumeKeywords, topK)
	if err != nil {
		return nil, err
	}

	resumeTokens := make(map[string]bool, len(resumeKeywords))
	for _, t := range resumeKeywords {
		resumeTokens[strings.ToLower(t)] = true
	}
	topicNorm := strings.ToLower(strings.TrimSpace(topic))

	var ranked []rankedCard
	for _, item := range candidates {
		card := normalizeCandidate(item)
		if card == nil || asked[card.QuestionID] {
			continue
		}

		questionTokens := tokenSet(card.Question)
		resumeOverlap := overlapRatio(questionTokens, resumeTokens)
		similarity := distanceToSimilarity(card.Score)

		haystack := strings.ToLower(strings.Join([]string{card.Topic, card.TopicGroup, card.Tags, card.Question}, " "))
		topicBonus := 0.0
		if topicNorm != "" && strings.Contains(haystack, topicNorm) {
			topicBonus = 1.0
		}

		rankScore := rankWeightSimilarity*similarity + rankWeightResume*resumeOverlap + rankWeightTopic*topicBonus
		ranked = append(ranked, rankedCard{score: rankScore, card: card})
	}

	if len(ranked) == 0 {
		return nil, nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	topN := topCandidatePool
	if len(ranked) < topN {
		topN = len(ranked)
	}
	pool := ranked[:topN]

	weights := make([]float64, len(pool))
	decay := 1.0
	for i, rc := range pool {
		w := rc.score
		if w < 0.001 {
			w = 0.001
		}
		weights[i] = w * decay
		decay *= sampleDecay
	}

	idx := e.sampler.Pick(weights)
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	return pool[idx].card, nil
}

func buildQuestionOnlyAnswer(question, topic string) string {
	topicLine := ""
	if topic != "" {
		topicLine = fmt.Sprintf("（主题：%s）", topic)
	}
	return fmt.Sprintf(
		"题目%s：%s\n\n请结合你的简历经历作答，尽量说清楚：场景、方案、关键取舍和结果。",
		topicLine, question,
	)
}

func buildEvalAnswer(result Evaluation, referenceAnswer, nextQuestion string) string {
	lines := []string{
		fmt.Sprintf("**评分**：%.2f（%s）", result.Score, result.Label),
		"",
		fmt.Sprintf("**反馈**：%s", result.Feedback),
	}
	if len(result.Missing) > 0 {
		lines = append(lines, "", "**缺失要点**：")
		for _, point := range result.Missing {
			lines = append(lines, "- "+point)
		}
	}

	lines = append(lines, "", "---", "", "**参考答案**：", referenceAnswer, "")
	if nextQuestion != "" {
		lines = append(lines, fmt.Sprintf("**下一题**：%s", nextQuestion))
	} else {
		lines = append(lines, "**下一题**：题库已抽完，可上传更多 note 或调整提问主题。")
	}
	return strings.Join(lines, "\n")
}

func limitContext(items []retrieval.Evidence, n int) []retrieval.Evidence {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// RunTurn executes one interview turn. Command turns (no active question,
// an explicit request, or a skip) select and ask a fresh question; answer
// turns grade the reply, reveal the reference answer and move to the next
// question.
func (e *Engine) RunTurn(ctx context.Context, userInput string, sourceID string, topK int, stored *session.InterviewState) (*TurnResult, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return &TurnResult{
			Answer: "未绑定简历 source_id，无法进行简历定向提问。",
			State:  session.InterviewState{},
		}, nil
	}
	if topK <= 0 {
		topK = 12
	}

	state := coerceState(stored, sourceID)
	userText := strings.TrimSpace(userInput)

	if topicCmd := ExtractTopicCommand(userText); topicCmd != "" {
		state.Topic = topicCmd
		state.CurrentQuestionID = ""
		state.CurrentQuestion = ""
		state.CurrentStandardAnswer = ""
		state.CurrentKeyPoints = nil
		state.CurrentContextID = ""
	}

	asked := make(map[string]bool, len(state.AskedQuestionIDs))
	for _, id := range state.AskedQuestionIDs {
		asked[id] = true
	}

	resumeCtx, resumeKeywords, err := e.resumeProfile(ctx, sourceID, topK)
	if err != nil {
		return nil, err
	}

	commandMode := state.CurrentQuestionID == "" || IsQuestionRequest(userText) || IsSkipRequest(userText)

	if commandMode {
		card, err := e.pickQuestion(ctx, asked, state.Topic, resumeKeywords, topK)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return &TurnResult{
				Answer:      "没有匹配到可用题目。请补充 note 题库，或换一个更具体的主题。",
				UsedContext: limitContext(resumeCtx, 2),
				State:       state,
			}, nil
		}

		state.AskedQuestionIDs = appendUnique(state.AskedQuestionIDs, card.QuestionID)
		state.CurrentQuestionID = card.QuestionID
		state.CurrentQuestion = card.Question
		state.CurrentStandardAnswer = card.StandardAnswer
		state.CurrentKeyPoints = card.KeyPoints
		state.CurrentContextID = card.ID

		return &TurnResult{
			Answer:      buildQuestionOnlyAnswer(card.Question, state.Topic),
			Citations:   []coerce.Citation{{ID: card.ID, Quote: card.Question}},
			UsedContext: append([]retrieval.Evidence{card.Raw}, limitContext(resumeCtx, 2)...),
			State:       state,
		}, nil
	}

	reference := state.CurrentStandardAnswer
	evalResult := EvaluateAnswer(userText, reference, state.CurrentKeyPoints)

	asked[state.CurrentQuestionID] = true
	nextCard, err := e.pickQuestion(ctx, asked, state.Topic, resumeKeywords, topK)
	if err != nil {
		return nil, err
	}

	var citations []coerce.Citation
	if state.CurrentContextID != "" {
		citations = append(citations, coerce.Citation{ID: state.CurrentContextID, Quote: state.CurrentQuestion})
	}

	if nextCard != nil {
		state.AskedQuestionIDs = appendUnique(state.AskedQuestionIDs, nextCard.QuestionID)
		state.CurrentQuestionID = nextCard.QuestionID
		state.CurrentQuestion = nextCard.Question
		state.CurrentStandardAnswer = nextCard.StandardAnswer
		state.CurrentKeyPoints = nextCard.KeyPoints
		state.CurrentContextID = nextCard.ID
		citations = append(citations, coerce.Citation{ID: nextCard.ID, Quote: nextCard.Question})

		return &TurnResult{
			Answer:      buildEvalAnswer(evalResult, reference, nextCard.Question),
			Citations:   citations,
			UsedContext: append([]retrieval.Evidence{nextCard.Raw}, limitContext(resumeCtx, 2)...),
			State:       state,
		}, nil
	}

	state.CurrentQuestionID = ""
	state.CurrentQuestion = ""
	state.CurrentStandardAnswer = ""
	state.CurrentKeyPoints = nil
	state.CurrentContextID = ""

	return &TurnResult{
		Answer:      buildEvalAnswer(evalResult, reference, ""),
		Citations:   citations,
		UsedContext: limitContext(resumeCtx, 2),
		State:       state,
	}, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
