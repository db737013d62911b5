package interview

import (
	"regexp"
	"strings"
)

var (
	topicEnRe = regexp.MustCompile(`(?i)(?:ask me|question me)\s+about\s+([a-zA-Z0-9_+#\-/ ]{1,30})`)

	topicCnRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:提问我|问我|考我)关于([a-zA-Z0-9\x{4e00}-\x{9fff}+#\-/ ]{1,30})(?:的?问题)?`),
		regexp.MustCompile(`(?i)(?:关于)([a-zA-Z0-9\x{4e00}-\x{9fff}+#\-/ ]{1,30})(?:提问|面试我|问题)`),
	}
)

var questionRequestKeywords = []string{
	"提问我",
	"问我",
	"开始面试",
	"来一题",
	"出一道",
	"下一题",
	"换一题",
	"继续提问",
	"mock interview",
	"interview me",
	"ask me",
	"question me",
}

var skipRequestKeywords = []string{"下一题", "换一题", "跳过", "skip", "pass"}

// ExtractTopicCommand pulls a topic out of phrases like "ask me about
// redis" or "提问我关于并发的问题". Empty string means no topic command.
func ExtractTopicCommand(userInput string) string {
	text := strings.TrimSpace(userInput)
	if text == "" {
		return ""
	}

	if m := topicEnRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(whitespaceRe.ReplaceAllString(m[1], " "))
	}
	for _, re := range topicCnRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if topic := strings.TrimSpace(whitespaceRe.ReplaceAllString(m[1], " ")); topic != "" {
			return topic
		}
	}
	return ""
}

// IsQuestionRequest reports whether the user is asking for a (new)
// question rather than answering the current one.
func IsQuestionRequest(userInput string) bool {
	text := strings.ToLower(strings.TrimSpace(userInput))
	if text == "" {
		return false
	}
	for _, k := range questionRequestKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// IsSkipRequest reports whether the user wants to skip the current
// question.
func IsSkipRequest(userInput string) bool {
	text := strings.ToLower(strings.TrimSpace(userInput))
	for _, k := range skipRequestKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
