// Package graph implements the per-turn conversation orchestrator: recover
// session metadata from history, route the turn (deterministic resume
// interview, planned skill, or direct grounded answer) and assemble the
// final answer with normalized citations.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/interview"
	"github.com/lrfluobida/agent-job-coach/pkg/llm"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
	"github.com/lrfluobida/agent-job-coach/pkg/skill"
)

const diagnosticAnswer = "抱歉，本轮处理出现内部错误。请稍后重试，或换一个提问方式。"

const noEvidenceAnswer = "暂无可用证据，请先导入资料后再提问。"

// TextIngestor lets the planned ingest tool import raw text. Optional;
// without one the tool reports failure.
type TextIngestor interface {
	IngestText(ctx context.Context, text, sourceType, sourceID string) (int, error)
}

// TurnInput is one orchestrated turn request.
type TurnInput struct {
	Question string
	TopK     int
	Filter   retrieval.Filter
	History  []llm.Message
}

// ToolResult records one executed plan step.
type ToolResult struct {
	Name        string
	OK          bool
	Answer      string
	Citations   []coerce.Citation
	UsedContext []retrieval.Evidence
	Retrieved   []retrieval.Evidence
	Error       string
}

// TurnOutput is the assembled turn result.
type TurnOutput struct {
	Answer         string
	Citations      []coerce.Citation
	UsedContext    []retrieval.Evidence
	ToolResults    []ToolResult
	Session        SessionMeta
	InterviewState *session.InterviewState
}

type Orchestrator struct {
	llm          llm.LLMProvider
	retriever    retrieval.Retriever
	engine       *interview.Engine
	interviewer  *skill.Interviewer
	ingestor     TextIngestor
	maxCitations int
	logger       logger.ILogger
}

func NewOrchestrator(
	provider llm.LLMProvider,
	retriever retrieval.Retriever,
	engine *interview.Engine,
	interviewer *skill.Interviewer,
	ingestor TextIngestor,
	maxCitations int,
	log logger.ILogger,
) *Orchestrator {
	if maxCitations <= 0 {
		maxCitations = 3
	}
	return &Orchestrator{
		llm:          provider,
		retriever:    retriever,
		engine:       engine,
		interviewer:  interviewer,
		ingestor:     ingestor,
		maxCitations: maxCitations,
		logger:       log,
	}
}

func clampTopK(topK int) int {
	if topK < 1 {
		return 5
	}
	if topK > 20 {
		return 20
	}
	return topK
}

func candidateMap(contexts []retrieval.Evidence) map[string]string {
	out := make(map[string]string, len(contexts))
	for _, c := range contexts {
		out[c.ID] = c.Text
	}
	return out
}

// RunTurn executes a single conversation turn.
func (o *Orchestrator) RunTurn(ctx context.Context, input TurnInput) (*TurnOutput, error) {
	meta, history := ExtractSession(input.History)
	topK := clampTopK(input.TopK)

	// Resume-bound conversations route deterministically to the interview
	// engine; model-based routing would drift mid-interview.
	if meta.ResumeBound() {
		return o.runResumeTurn(ctx, input.Question, meta, topK)
	}

	retrieveTopK := topK
	if retrieveTopK > 8 {
		retrieveTopK = 8
	}
	usedContext, err := o.retriever.Retrieve(ctx, input.Question, retrieveTopK, input.Filter)
	if err != nil {
		o.logger.Warn("GRAPH", "Evidence retrieval failed", map[string]interface{}{"error": err.Error()})
		usedContext = nil
	}

	filterArgs := map[string]interface{}{}
	if input.Filter.SourceType != "" {
		filterArgs["source_type"] = input.Filter.SourceType
	}
	if input.Filter.SourceID != "" {
		filterArgs["source_id"] = input.Filter.SourceID
	}

	plan := o.planTools(ctx, input.Question, topK, filterArgs)
	toolResults := o.executeTools(ctx, plan, input.Question, history, topK)

	out := o.generateFinal(ctx, input.Question, history, usedContext, toolResults)
	out.Session = meta
	return out, nil
}

func (o *Orchestrator) runResumeTurn(ctx context.Context, question string, meta SessionMeta, topK int) (*TurnOutput, error) {
	result, err := o.engine.RunTurn(ctx, question, meta.ActiveSourceID, topK, meta.InterviewState)
	if err != nil {
		o.logger.Error("GRAPH", "Resume interview turn failed", map[string]interface{}{
			"conversation_id": meta.ConversationID,
			"error":           err.Error(),
		})
		fallback := o.safetyFallback(ctx, question, nil)
		fallback.Session = meta
		return fallback, nil
	}

	state := result.State
	return &TurnOutput{
		Answer:         result.Answer,
		Citations:      coerce.NormalizeCitationStructs(result.Citations, candidateMap(result.UsedContext), o.maxCitations),
		UsedContext:    result.UsedContext,
		Session:        meta,
		InterviewState: &state,
	}, nil
}

func (o *Orchestrator) executeTools(ctx context.Context, plan []PlanStep, question string, history []llm.Message, topK int) []ToolResult {
	var results []ToolResult
	for _, step := range plan {
		o.logger.Info("GRAPH", "Executing planned tool", map[string]interface{}{"tool": step.Name})
		results = append(results, o.callTool(ctx, step, question, history, topK))
	}
	return results
}

func argString(args map[string]interface{}, key, fallback string) string {
	if args != nil {
		if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return fallback
}

func argFilter(args map[string]interface{}) retrieval.Filter {
	var out retrieval.Filter
	raw, ok := args["filter"].(map[string]interface{})
	if !ok {
		return out
	}
	if v, ok := raw["source_type"].(string); ok {
		out.SourceType = v
	}
	if v, ok := raw["source_id"].(string); ok {
		out.SourceID = v
	}
	return out
}

func (o *Orchestrator) callTool(ctx context.Context, step PlanStep, question string, history []llm.Message, topK int) ToolResult {
	switch step.Name {
	case ToolInterviewQA:
		q := argString(step.Args, "question", question)
		topic := ""
		if f, ok := step.Args["filter"].(map[string]interface{}); ok {
			if v, ok := f["topic"].(string); ok {
				topic = v
			}
		}
		answer, err := o.interviewer.RunInterviewTurn(ctx, q, history, topic)
		if err != nil {
			return ToolResult{Name: step.Name, Error: err.Error()}
		}
		return ToolResult{Name: step.Name, OK: true, Answer: answer}

	case ToolRagRetrieve:
		query := argString(step.Args, "query", question)
		items, err := o.retriever.Retrieve(ctx, query, topK, argFilter(step.Args))
		if err != nil {
			return ToolResult{Name: step.Name, Error: err.Error()}
		}
		return ToolResult{Name: step.Name, OK: true, Retrieved: items}

	case ToolIngestText:
		if o.ingestor == nil {
			return ToolResult{Name: step.Name, Error: "ingest tool not configured"}
		}
		text := argString(step.Args, "text", "")
		if strings.TrimSpace(text) == "" {
			return ToolResult{Name: step.Name, Error: "empty text"}
		}
		sourceType := argString(step.Args, "source_type", "note")
		sourceID := argString(step.Args, "source_id", "")
		chunks, err := o.ingestor.IngestText(ctx, text, sourceType, sourceID)
		if err != nil {
			return ToolResult{Name: step.Name, Error: err.Error()}
		}
		return ToolResult{Name: step.Name, OK: true, Answer: fmt.Sprintf("已导入 %d 个片段。", chunks)}
	}
	return ToolResult{Name: step.Name, Error: "unknown tool: " + step.Name}
}

// generateFinal turns tool results or raw evidence into the final answer.
func (o *Orchestrator) generateFinal(ctx context.Context, question string, history []llm.Message, usedContext []retrieval.Evidence, toolResults []ToolResult) *TurnOutput {
	out := &TurnOutput{UsedContext: usedContext, ToolResults: toolResults}

	for _, tr := range toolResults {
		if tr.Name != ToolInterviewQA {
			continue
		}
		if !tr.OK {
			// Skill invocation failed; recover once through the generic
			// interviewer before giving up.
			o.logger.Warn("GRAPH", "Interview skill failed, running safety fallback", map[string]interface{}{"error": tr.Error})
			fallback := o.safetyFallback(ctx, question, history)
			fallback.UsedContext = usedContext
			fallback.ToolResults = toolResults
			return fallback
		}
		answer, _ := coerce.Coerce(tr.Answer)
		toolContext := tr.UsedContext
		if len(toolContext) == 0 {
			toolContext = usedContext
		}
		out.Answer = answer
		out.Citations = coerce.NormalizeCitationStructs(tr.Citations, candidateMap(toolContext), o.maxCitations)
		out.UsedContext = toolContext
		return out
	}

	return o.generateWithLLM(ctx, question, usedContext, out)
}

func (o *Orchestrator) generateWithLLM(ctx context.Context, question string, usedContext []retrieval.Evidence, out *TurnOutput) *TurnOutput {
	var evidenceLines []string
	for _, c := range usedContext {
		evidenceLines = append(evidenceLines, fmt.Sprintf("[[%s]] %s", c.ID, c.Text))
	}
	prompt := "你是面试辅导助手，只能依据【证据块】回答，禁止编造。" +
		"输出必须是 Markdown 自然语言文本，不要输出 JSON，不要使用 ``` 代码块。" +
		"如果需要引用，请使用 [@chunk_id] 形式的标记（例如 [@resume_001:0]）。" +
		"不要在答案里输出 citations 或 used_context。\n" +
		fmt.Sprintf("问题：%s\n【证据块】\n%s", question, strings.Join(evidenceLines, "\n"))

	content, err := o.llm.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		o.logger.Warn("GRAPH", "Grounded generation failed, running safety fallback", map[string]interface{}{"error": err.Error()})
		fallback := o.safetyFallback(ctx, question, nil)
		fallback.UsedContext = out.UsedContext
		fallback.ToolResults = out.ToolResults
		return fallback
	}

	answer, rawCitations := coerce.Coerce(content)
	ctxMap := candidateMap(usedContext)

	citations := coerce.NormalizeCitations(rawCitations, ctxMap, o.maxCitations)

	if len(citations) == 0 {
		markers := coerce.ExtractMarkers(answer)
		if len(markers) > 0 {
			o.logger.Info("GRAPH", "Citation markers found", map[string]interface{}{"count": len(markers)})
		}
		for _, marker := range markers {
			if text, ok := ctxMap[marker]; ok {
				citations = append(citations, coerce.Citation{ID: marker, Quote: coerce.ShortenQuote(text, coerce.MaxQuoteLen)})
			}
			if len(citations) >= o.maxCitations {
				break
			}
		}
	}
	if len(citations) == 0 && len(usedContext) > 0 {
		top := usedContext[0]
		if top.ID != "" {
			citations = []coerce.Citation{{ID: top.ID, Quote: coerce.ShortenQuote(top.Text, coerce.MaxQuoteLen)}}
		}
	}
	if answer == "" && len(usedContext) == 0 {
		out.Answer = noEvidenceAnswer
		return out
	}

	out.Answer = coerce.StripMarkers(answer)
	out.Citations = coerce.NormalizeCitationStructs(citations, ctxMap, o.maxCitations)
	return out
}

// safetyFallback retries the turn through the generic interviewer; a
// second failure yields the diagnostic answer.
func (o *Orchestrator) safetyFallback(ctx context.Context, question string, history []llm.Message) *TurnOutput {
	answer, err := o.interviewer.RunInterviewTurn(ctx, question, history, "")
	if err != nil {
		o.logger.Error("GRAPH", "Safety fallback failed", map[string]interface{}{"error": err.Error()})
		return &TurnOutput{Answer: diagnosticAnswer}
	}
	clean, _ := coerce.Coerce(answer)
	return &TurnOutput{Answer: clean}
}
