package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/llm"
)

// Tool names the planner may choose from.
const (
	ToolInterviewQA = "skill_interview_qa"
	ToolRagRetrieve = "rag_retrieve"
	ToolIngestText  = "ingest_text"
)

// ToolSpec describes one plannable tool for the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	JSONSchema  map[string]interface{} `json:"json_schema"`
}

// PlanStep is one chosen tool invocation.
type PlanStep struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

func builtinToolSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolInterviewQA,
			Description: "面试问答技能：基于证据块输出结构化答案与引用",
			JSONSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{"type": "string"},
					"top_k":    map[string]interface{}{"type": "integer", "default": 5},
					"filter":   map[string]interface{}{"type": []string{"object", "null"}},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        ToolRagRetrieve,
			Description: "向量检索：返回 top_k 相关内容",
			JSONSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":  map[string]interface{}{"type": "string"},
					"top_k":  map[string]interface{}{"type": "integer", "default": 5},
					"filter": map[string]interface{}{"type": []string{"object", "null"}},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolIngestText,
			Description: "导入纯文本到知识库",
			JSONSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text":        map[string]interface{}{"type": "string"},
					"source_type": map[string]interface{}{"type": "string", "default": "note"},
					"source_id":   map[string]interface{}{"type": []string{"string", "null"}},
				},
				"required": []string{"text"},
			},
		},
	}
}

var interviewIntentKeywords = []string{"面试", "自我介绍", "项目", "如何回答", "怎么说"}

type toolPlanPayload struct {
	ToolPlan []PlanStep `json:"tool_plan"`
}

// planWithLLM asks the model to choose tools, returning an empty plan on
// any parse failure.
func (o *Orchestrator) planWithLLM(ctx context.Context, question string, specs []ToolSpec) []PlanStep {
	specsJSON, err := json.Marshal(specs)
	if err != nil {
		return nil
	}
	prompt := fmt.Sprintf(
		"你是工具规划器。只能从提供的工具列表中选择。\n"+
			"输出严格 JSON，格式：{\"tool_plan\":[{\"name\":\"...\",\"args\":{...}}]}。\n"+
			"问题：%s\n工具列表：%s",
		question, string(specsJSON),
	)

	content, err := o.llm.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		o.logger.Warn("GRAPH", "Tool planning call failed, falling back to keywords", map[string]interface{}{"error": err.Error()})
		return nil
	}

	var payload toolPlanPayload
	if err := json.Unmarshal([]byte(coerce.StripCodeFence(content)), &payload); err != nil {
		return nil
	}
	return payload.ToolPlan
}

// planTools produces the tool plan for a non-deterministic turn: model
// planning first, keyword heuristics as the fallback, direct answer as the
// default.
func (o *Orchestrator) planTools(ctx context.Context, question string, topK int, filter map[string]interface{}) []PlanStep {
	specs := builtinToolSpecs()

	plan := o.planWithLLM(ctx, question, specs)
	if len(plan) > 0 {
		allowed := make(map[string]bool, len(specs))
		for _, spec := range specs {
			allowed[spec.Name] = true
		}
		var filtered []PlanStep
		for _, step := range plan {
			if step.Name != "" && allowed[step.Name] {
				filtered = append(filtered, step)
			}
		}
		if len(filtered) > 0 {
			return filtered
		}
	}

	for _, k := range interviewIntentKeywords {
		if strings.Contains(question, k) {
			return []PlanStep{{
				Name: ToolInterviewQA,
				Args: map[string]interface{}{
					"question": question,
					"top_k":    topK,
					"filter":   filter,
				},
			}}
		}
	}
	return nil
}
