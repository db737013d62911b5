// Package skill hosts the LLM-backed interviewer skills: the generic mock
// interviewer and the resume-grounded variant that retrieves resume
// evidence before every reply.
package skill

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
)

const maxEvidenceCitations = 3

const interviewerSystemPrompt = "你是一名严格但有帮助的技术面试官。\n" +
	"每轮按顺序完成：\n" +
	"1) 先判断候选人回答属于：正确 / 模糊 / 错误；\n" +
	"2) 给出1-2句简短反馈，指出关键点和缺失点；\n" +
	"3) 提出一个更深入的下一步问题。\n" +
	"必须使用以下中文结构输出：\n" +
	"分类：<正确|模糊|错误>\n" +
	"反馈：<简短反馈>\n" +
	"下一步问题：<一个追问>\n" +
	"只输出 Markdown 自然语言，不要 JSON，不要输出推理过程。"

const resumeInterviewerSystemPrompt = "你是一名严格但有帮助的技术面试官。\n" +
	"你必须基于简历证据进行反馈和追问，不得臆造。\n" +
	"每轮按顺序完成：\n" +
	"1) 分类候选人回答：正确 / 模糊 / 错误；\n" +
	"2) 给出简短反馈；\n" +
	"3) 提出一个更深入的下一步问题。\n" +
	"必须使用以下中文结构输出：\n" +
	"分类：<正确|模糊|错误>\n" +
	"反馈：<简短反馈>\n" +
	"下一步问题：<一个追问>\n" +
	"只输出 Markdown 自然语言，不要 JSON，不要输出推理过程。"

const resumeKickoffSystemPrompt = "你是一名严格但有帮助的技术面试官。\n" +
	"现在是简历面试的首轮启动。\n" +
	"只做一件事：基于简历证据提出一个聚焦技术问题。\n" +
	"不要做分类，不要给反馈。\n" +
	"输出格式：问题：<你的问题>"

// Result is what a skill hands back to the orchestrator.
type Result struct {
	Answer      string
	Citations   []coerce.Citation
	UsedContext []retrieval.Evidence
}

type Interviewer struct {
	llm       llm.LLMProvider
	retriever retrieval.Retriever
}

func NewInterviewer(provider llm.LLMProvider, retriever retrieval.Retriever) *Interviewer {
	return &Interviewer{llm: provider, retriever: retriever}
}

func sanitizeHistory(history []llm.Message) []llm.Message {
	var out []llm.Message
	for _, msg := range history {
		switch msg.Role {
		case "system", "user", "assistant":
			out = append(out, msg)
		default:
			out = append(out, llm.Message{Role: "user", Content: msg.Content})
		}
	}
	return out
}

// RunInterviewTurn is the generic mock interviewer: classify, give brief
// feedback and ask one deeper follow-up.
func (s *Interviewer) RunInterviewTurn(ctx context.Context, userInput string, history []llm.Message, topic string) (string, error) {
	messages := []llm.Message{{Role: "system", Content: interviewerSystemPrompt}}
	if topic != "" {
		messages = append(messages, llm.Message{Role: "system", Content: "Interview topic: " + topic})
	}
	messages = append(messages, sanitizeHistory(history)...)
	messages = append(messages, llm.Message{Role: "user", Content: userInput})

	answer, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("interview turn: %w", err)
	}
	return answer, nil
}

func evidenceBlock(contexts []retrieval.Evidence) string {
	var lines []string
	for _, item := range contexts {
		lines = append(lines, fmt.Sprintf("[[%s]] %s", item.ID, item.Text))
	}
	return strings.Join(lines, "\n")
}

var kickoffPatterns = []*regexp.Regexp{
	regexp.MustCompile(`针对.*简历.*提问`),
	regexp.MustCompile(`根据.*简历.*提问`),
	regexp.MustCompile(`简历.*面试`),
	regexp.MustCompile(`(?i)mock\s*interview`),
	regexp.MustCompile(`(?i)interview\s*me`),
	regexp.MustCompile(`(?i)ask\s*me\s*questions`),
}

var askQuestionHints = []string{"提问", "问题", "问我", "问几个", "问一", "问一下", "面试"}

// HasInterviewStarted checks the assistant history for markers of an
// interview already in flight.
func HasInterviewStarted(history []llm.Message) bool {
	for _, item := range history {
		if item.Role != "assistant" {
			continue
		}
		content := strings.ToLower(item.Content)
		trimmed := strings.TrimSpace(content)
		if strings.Contains(content, "下一步问题") ||
			strings.Contains(content, "follow-up question") ||
			strings.HasPrefix(trimmed, "问题：") ||
			strings.HasPrefix(trimmed, "question:") ||
			strings.Contains(content, "分类：") ||
			strings.Contains(content, "answer classification") {
			return true
		}
	}
	return false
}

// IsInterviewKickoff reports whether the user is starting a resume
// interview rather than answering a question. A kickoff phrasing inside a
// running interview is not a kickoff.
func IsInterviewKickoff(userInput string, history []llm.Message) bool {
	text := strings.ToLower(strings.TrimSpace(userInput))
	if text == "" {
		return false
	}
	explicit := false
	for _, re := range kickoffPatterns {
		if re.MatchString(text) {
			explicit = true
			break
		}
	}
	if !explicit && strings.Contains(text, "简历") {
		for _, hint := range askQuestionHints {
			if strings.Contains(text, hint) {
				explicit = true
				break
			}
		}
	}
	if !explicit {
		return false
	}
	return !HasInterviewStarted(history)
}

func shorten(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func buildEvidenceResult(answer string, contexts []retrieval.Evidence) *Result {
	var citations []coerce.Citation
	var usedContext []retrieval.Evidence
	for _, item := range contexts {
		cid := strings.TrimSpace(item.ID)
		if cid == "" {
			continue
		}
		usedContext = append(usedContext, item)
		citations = append(citations, coerce.Citation{ID: cid, Quote: shorten(item.Text, 180)})
		if len(citations) >= maxEvidenceCitations {
			break
		}
	}
	return &Result{Answer: answer, Citations: citations, UsedContext: usedContext}
}

var kickoffCutMarkers = []string{"answer classification", "feedback", "follow-up question", "分类", "反馈", "下一步问题"}

// enforceKickoffOutput trims a kickoff reply down to the single opening
// question and guarantees the 问题： prefix.
func enforceKickoffOutput(answer string) string {
	text := strings.TrimSpace(answer)
	lower := strings.ToLower(text)
	cutIndex := -1
	for _, marker := range kickoffCutMarkers {
		idx := strings.Index(lower, marker)
		if idx > 0 && (cutIndex == -1 || idx < cutIndex) {
			cutIndex = idx
		}
	}
	if cutIndex > 0 {
		text = strings.TrimSpace(text[:cutIndex])
	}
	if !strings.HasPrefix(text, "问题：") {
		text = "问题：" + text
	}
	return text
}

var (
	englishClassRe    = regexp.MustCompile(`(?i)answer\s*classification\s*[:：]`)
	englishFeedbackRe = regexp.MustCompile(`(?i)feedback\s*[:：]`)
	englishFollowUpRe = regexp.MustCompile(`(?i)follow-?\s*up\s*question\s*[:：]`)

	classLabelRe    = regexp.MustCompile(`分类[:：]`)
	feedbackLabelRe = regexp.MustCompile(`反馈[:：]`)
	followUpLabelRe = regexp.MustCompile(`下一步问题[:：]`)
)

// normalizeStructuredOutput converts English labels to the Chinese ones
// and re-renders the three sections with blank lines between them. Output
// without any labels passes through untouched.
func normalizeStructuredOutput(answer string) string {
	text := strings.TrimSpace(answer)
	text = englishClassRe.ReplaceAllString(text, "分类：")
	text = englishFeedbackRe.ReplaceAllString(text, "反馈：")
	text = englishFollowUpRe.ReplaceAllString(text, "下一步问题：")

	type section struct {
		label string
		start int // content start
		pos   int // label start
	}
	var sections []section
	if loc := classLabelRe.FindStringIndex(text); loc != nil {
		sections = append(sections, section{"分类：", loc[1], loc[0]})
	}
	if loc := feedbackLabelRe.FindStringIndex(text); loc != nil {
		sections = append(sections, section{"反馈：", loc[1], loc[0]})
	}
	if loc := followUpLabelRe.FindStringIndex(text); loc != nil {
		sections = append(sections, section{"下一步问题：", loc[1], loc[0]})
	}
	if len(sections) == 0 {
		return text
	}

	var parts []string
	for _, sec := range sections {
		end := len(text)
		for _, other := range sections {
			if other.pos > sec.pos && other.pos < end {
				end = other.pos
			}
		}
		content := strings.TrimSpace(text[sec.start:end])
		if content != "" {
			parts = append(parts, sec.label+content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RunResumeInterviewTurn runs one resume-grounded interview turn. The
// first turn only asks an opening question; later turns classify the
// answer and follow up, always citing resume evidence.
func (s *Interviewer) RunResumeInterviewTurn(ctx context.Context, userInput string, history []llm.Message, sourceID string, topK int) (*Result, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		answer, err := s.RunInterviewTurn(ctx, userInput, history, "resume interview")
		if err != nil {
			return nil, err
		}
		return &Result{Answer: answer}, nil
	}
	if topK < 1 {
		topK = 1
	}

	contexts, err := s.retriever.Retrieve(ctx, userInput, topK, retrieval.Filter{
		SourceType: "resume",
		SourceID:   sourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("resume evidence: %w", err)
	}

	// The first turn always asks one opening question regardless of
	// wording, so a kickoff phrase is never graded as an answer.
	kickoff := !HasInterviewStarted(history)

	var messages []llm.Message
	if kickoff {
		evidence := evidenceBlock(contexts)
		if evidence == "" {
			evidence = "(no resume evidence found)"
		}
		messages = append(messages, llm.Message{Role: "system", Content: resumeKickoffSystemPrompt})
		messages = append(messages, sanitizeHistory(history)...)
		messages = append(messages, llm.Message{Role: "user", Content: "请基于以下简历证据发起首轮提问：\n" + evidence})
	} else {
		evidence := evidenceBlock(contexts)
		if evidence == "" {
			evidence = "（未检索到简历证据）"
		}
		user := fmt.Sprintf("候选人最新回答：%s\n\n以下是相关简历证据片段，请优先据此追问：\n%s", userInput, evidence)
		messages = append(messages, llm.Message{Role: "system", Content: resumeInterviewerSystemPrompt})
		messages = append(messages, sanitizeHistory(history)...)
		messages = append(messages, llm.Message{Role: "user", Content: user})
	}

	answer, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("resume interview turn: %w", err)
	}

	if kickoff {
		answer = enforceKickoffOutput(answer)
	} else {
		answer = normalizeStructuredOutput(answer)
	}
	return buildEvidenceResult(answer, contexts), nil
}
