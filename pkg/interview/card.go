package interview

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
)

// QuestionCard is a normalized QA candidate ready for selection.
type QuestionCard struct {
	ID             string
	QuestionID     string
	Question       string
	StandardAnswer string
	KeyPoints      []string
	Topic          string
	TopicGroup     string
	Tags           string
	Score          float64
	Raw            retrieval.Evidence
}

var (
	docQuestionRe = regexp.MustCompile(`(?im)^question:\s*(.+?)\s*$`)
	docAnswerRe   = regexp.MustCompile(`(?is)standardanswer:\s*(.+?)(?:\n\s*topic:|\z)`)
)

// parseCardFromDocument recovers question and answer from the labeled
// chunk text when metadata is incomplete.
func parseCardFromDocument(doc string) (string, string) {
	var q, a string
	if m := docQuestionRe.FindStringSubmatch(doc); m != nil {
		q = strings.TrimSpace(m[1])
	}
	if m := docAnswerRe.FindStringSubmatch(doc); m != nil {
		a = strings.TrimSpace(m[1])
	}
	return q, a
}

func parseKeyPointsJSON(raw string) []string {
	if raw == "" {
		return nil
	}
	var data []interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	var out []string
	for _, item := range data {
		if s, ok := item.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func extractKeyPointsFromAnswer(answer string, limit int) []string {
	var points []string
	for _, line := range strings.Split(answer, "\n") {
		stripped := strings.TrimSpace(line)
		if !strings.HasPrefix(stripped, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(stripped, "-"))
		item = strings.ReplaceAll(item, "**", "")
		item = strings.TrimSpace(strings.ReplaceAll(item, "*", ""))
		if item != "" {
			points = append(points, item)
		}
		if len(points) >= limit {
			break
		}
	}
	return points
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// normalizeCandidate turns a retrieved chunk into a QuestionCard, reading
// the metadata first and falling back to the document text. Candidates
// without both a question and an answer are dropped.
func normalizeCandidate(item retrieval.Evidence) *QuestionCard {
	meta := item.Metadata

	questionID := strings.TrimSpace(metaString(meta, "question_id"))
	if questionID == "" {
		questionID = strings.TrimSpace(item.ID)
	}
	question := strings.TrimSpace(metaString(meta, "question"))
	answer := strings.TrimSpace(metaString(meta, "standard_answer"))
	if question == "" || answer == "" {
		q2, a2 := parseCardFromDocument(item.Text)
		if question == "" {
			question = q2
		}
		if answer == "" {
			answer = a2
		}
	}
	if question == "" || answer == "" {
		return nil
	}

	keyPoints := parseKeyPointsJSON(metaString(meta, "key_points_json"))
	if len(keyPoints) == 0 {
		keyPoints = extractKeyPointsFromAnswer(answer, 6)
	}

	return &QuestionCard{
		ID:             strings.TrimSpace(item.ID),
		QuestionID:     questionID,
		Question:       question,
		StandardAnswer: answer,
		KeyPoints:      keyPoints,
		Topic:          strings.TrimSpace(metaString(meta, "topic")),
		TopicGroup:     strings.TrimSpace(metaString(meta, "topic_group")),
		Tags:           strings.ToLower(strings.TrimSpace(metaString(meta, "tags"))),
		Score:          item.Score,
		Raw:            item,
	}
}
