// Package qacard parses markdown interview notes into question/answer
// cards. A note is expected to use "## section" headings for topic groups
// and "### n）question" headings for individual questions; everything until
// the next heading is the standard answer.
package qacard

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Card is one parsed question with its reference answer and scoring hints.
type Card struct {
	QuestionID     string   `json:"question_id"`
	Question       string   `json:"question"`
	StandardAnswer string   `json:"standard_answer"`
	Topic          string   `json:"topic"`
	TopicGroup     string   `json:"topic_group"`
	Tags           []string `json:"tags"`
	Difficulty     string   `json:"difficulty"`
	KeyPoints      []string `json:"key_points"`
}

const maxKeyPoints = 6

var (
	sectionRe  = regexp.MustCompile(`^##\s+(.+?)\s*$`)
	questionRe = regexp.MustCompile(`^###\s*(\d+)[）)]\s*(.+?)\s*$`)
	bulletRe   = regexp.MustCompile(`^\s*[-*]\s+(.+?)\s*$`)
	tokenRe    = regexp.MustCompile(`[a-zA-Z0-9_+#.]+|[\x{4e00}-\x{9fff}]{2,}`)
	spaceRe    = regexp.MustCompile(`\s+`)
	sentenceRe = regexp.MustCompile(`[。！？；;\n]+`)
)

func normalizeSpace(text string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

func cleanMarkdownInline(text string) string {
	value := strings.ReplaceAll(text, "`", "")
	value = strings.ReplaceAll(value, "**", "")
	value = strings.ReplaceAll(value, "*", "")
	return strings.TrimSpace(value)
}

func topicFromSection(section string) string {
	s := strings.ToLower(section)
	switch {
	case strings.Contains(section, "语言基础") || strings.Contains(section, "语法"):
		return "java_basic"
	case strings.Contains(section, "面向对象") || strings.Contains(section, "设计模式"):
		return "oop_design"
	case strings.Contains(section, "集合") || strings.Contains(section, "数据结构"):
		return "collections"
	case strings.Contains(section, "反射") || strings.Contains(s, "aop") || strings.Contains(section, "代理"):
		return "reflection_aop"
	case strings.Contains(section, "线程") || strings.Contains(section, "并发"):
		return "concurrency"
	case strings.Contains(s, "jvm") || strings.Contains(section, "内存"):
		return "jvm_memory"
	case strings.Contains(section, "数据库") || strings.Contains(s, "sql"):
		return "database"
	default:
		return "general"
	}
}

var tagHints = []struct {
	tag   string
	hints []string
}{
	{"hashmap", []string{"hashmap", "hash map"}},
	{"concurrenthashmap", []string{"concurrenthashmap", "concurrent hash map"}},
	{"thread", []string{"线程", "并发", "thread", "volatile", "cas", "lock"}},
	{"aop", []string{"aop", "动态代理", "cglib", "jdk 动态代理", "jdk动态代理"}},
	{"jvm", []string{"jvm", "内存", "oom", "垃圾回收", "gc"}},
	{"collection", []string{"集合", "list", "set", "map", "arraylist", "linkedlist", "treemap"}},
	{"design_pattern", []string{"设计模式", "单例", "工厂", "策略", "责任链", "模板方法"}},
	{"java_basic", []string{"integer", "int", "equals", "hashcode", "jdk", "jre", "getclass"}},
}

func tagsFromText(parts ...string) []string {
	text := strings.ToLower(strings.Join(parts, " "))
	var out []string
	for _, entry := range tagHints {
		for _, hint := range entry.hints {
			if strings.Contains(text, hint) {
				out = append(out, entry.tag)
				break
			}
		}
	}
	return out
}

var hardHints = []string{
	"原理", "实现", "并发", "线程安全", "扩容", "aop", "jvm", "排查", "hashmap", "concurrenthashmap",
}

var easyHints = []string{"什么是", "区别", "介绍", "定义", "作用"}

func difficultyFromQuestion(question string) string {
	q := strings.ToLower(question)
	for _, h := range hardHints {
		if strings.Contains(q, h) {
			return "hard"
		}
	}
	for _, h := range easyHints {
		if strings.Contains(q, h) {
			return "easy"
		}
	}
	return "medium"
}

func extractKeyPoints(answer string, limit int) []string {
	var points []string
	for _, line := range strings.Split(answer, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := cleanMarkdownInline(m[1]); item != "" {
			points = append(points, item)
		}
		if len(points) >= limit {
			break
		}
	}
	if len(points) > 0 {
		return points
	}

	// Prose answers fall back to sentence fragments.
	fallbackLimit := limit
	if fallbackLimit > 4 {
		fallbackLimit = 4
	}
	cleaned := cleanMarkdownInline(answer)
	for _, chunk := range sentenceRe.Split(cleaned, -1) {
		c := normalizeSpace(chunk)
		if len([]rune(c)) >= 8 {
			points = append(points, c)
		}
		if len(points) >= fallbackLimit {
			break
		}
	}
	return points
}

func stableQuestionID(sourceID, question string) string {
	digest := fmt.Sprintf("%x", sha1.Sum([]byte(sourceID+":"+question)))[:10]
	return fmt.Sprintf("qa_%s_%s", sourceID, digest)
}

func tokenize(text string) []string {
	matches := tokenRe.FindAllString(text, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ToLower(m)
	}
	return out
}

// Parse splits a markdown note into deduplicated QA cards. Questions with
// an empty answer body are skipped; duplicate questions keep the first
// occurrence.
func Parse(text string, sourceID string) []Card {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var cards []Card
	currentSection := "general"
	currentQuestion := ""
	var answerLines []string

	flush := func() {
		question := normalizeSpace(currentQuestion)
		answer := strings.TrimSpace(strings.Join(answerLines, "\n"))
		currentQuestion = ""
		answerLines = nil
		if question == "" || answer == "" {
			return
		}
		keyPoints := extractKeyPoints(answer, maxKeyPoints)
		cards = append(cards, Card{
			QuestionID:     stableQuestionID(sourceID, question),
			Question:       question,
			StandardAnswer: answer,
			Topic:          topicFromSection(currentSection),
			TopicGroup:     currentSection,
			Tags:           tagsFromText(currentSection, question, strings.Join(keyPoints, " ")),
			Difficulty:     difficultyFromQuestion(question),
			KeyPoints:      keyPoints,
		})
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimRight(rawLine, " \t\r")

		if m := sectionRe.FindStringSubmatch(line); m != nil {
			flush()
			currentSection = normalizeSpace(m[1])
			continue
		}
		if m := questionRe.FindStringSubmatch(line); m != nil {
			flush()
			currentQuestion = normalizeSpace(m[2])
			continue
		}
		if currentQuestion != "" {
			answerLines = append(answerLines, rawLine)
		}
	}
	flush()

	return dedupe(cards)
}

func dedupe(cards []Card) []Card {
	seen := make(map[string]bool, len(cards))
	var out []Card
	for _, card := range cards {
		key := strings.ToLower(normalizeSpace(card.Question))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, card)
	}
	return out
}

// BuildDocument renders the embedding text for a card. The labeled layout
// lets the interview engine recover question and answer from stored chunk
// text alone.
func BuildDocument(card Card) string {
	tags := strings.Join(card.Tags, ", ")
	var keyPoints strings.Builder
	for i, point := range card.KeyPoints {
		if i > 0 {
			keyPoints.WriteString("\n")
		}
		keyPoints.WriteString("- " + point)
	}
	return fmt.Sprintf(
		"Question: %s\nStandardAnswer:\n%s\n\nTopic: %s\nTopicGroup: %s\nDifficulty: %s\nTags: %s\nKeyPoints:\n%s",
		card.Question, card.StandardAnswer, card.Topic, card.TopicGroup, card.Difficulty, tags, keyPoints.String(),
	)
}

// Metadata builds the chunk metadata stored next to a card's embedding.
func Metadata(card Card) map[string]interface{} {
	keyPointsJSON, _ := json.Marshal(card.KeyPoints)
	return map[string]interface{}{
		"doc_kind":        "qa_card",
		"question_id":     card.QuestionID,
		"question":        card.Question,
		"standard_answer": card.StandardAnswer,
		"topic":           card.Topic,
		"topic_group":     card.TopicGroup,
		"difficulty":      card.Difficulty,
		"tags":            strings.Join(card.Tags, ","),
		"key_points_json": string(keyPointsJSON),
		"token_count":     len(tokenize(card.StandardAnswer)),
	}
}
