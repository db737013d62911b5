package interview

import (
	"math"
	"strings"
)

// Evaluation grades a user answer against the card's reference answer.
type Evaluation struct {
	Score    float64  `json:"score"`
	Label    string   `json:"label"`
	Feedback string   `json:"feedback"`
	Missing  []string `json:"missing"`
}

const maxMissingPoints = 4

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// pointHit checks whether a key point is covered by the normalized answer,
// either by a short normalized prefix or by any token of length >= 2.
func pointHit(answerNorm string, point string) bool {
	p := NormalizeText(point)
	if p == "" {
		return false
	}
	runes := []rune(p)
	if len(runes) >= 6 && strings.Contains(answerNorm, string(runes[:6])) {
		return true
	}
	for _, token := range Tokenize(point) {
		if len([]rune(token)) >= 2 && strings.Contains(answerNorm, token) {
			return true
		}
	}
	return false
}

// EvaluateAnswer scores the answer as a blend of key point coverage and
// token similarity with the reference answer. Without key points the score
// is the token similarity alone.
func EvaluateAnswer(userAnswer, standardAnswer string, keyPoints []string) Evaluation {
	answerNorm := NormalizeText(userAnswer)
	var hits, missing []string
	for _, point := range keyPoints {
		if pointHit(answerNorm, point) {
			hits = append(hits, point)
		} else {
			missing = append(missing, point)
		}
	}

	coverage := 0.0
	if len(keyPoints) > 0 {
		coverage = float64(len(hits)) / float64(len(keyPoints))
	}
	semantic := jaccardSimilarity(tokenSet(userAnswer), tokenSet(standardAnswer))

	score := semantic
	if len(keyPoints) > 0 {
		score = 0.7*coverage + 0.3*semantic
	}
	score = math.Max(0.0, math.Min(1.0, score))
	score = math.Round(score*1000) / 1000

	var label, feedback string
	switch {
	case score >= 0.75:
		label = "正确"
		feedback = "回答覆盖了主要要点，和标准答案基本一致。"
	case score >= 0.40:
		label = "部分正确"
		feedback = "回答抓住了部分关键点，但还不够完整。"
	default:
		label = "不正确"
		feedback = "回答与标准答案偏差较大，建议按参考答案重构回答框架。"
	}

	if len(missing) > maxMissingPoints {
		missing = missing[:maxMissingPoints]
	}

	return Evaluation{
		Score:    score,
		Label:    label,
		Feedback: feedback,
		Missing:  missing,
	}
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(a))
}

func distanceToSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + distance)
}
