package interview

import (
	"regexp"
	"strings"
)

// Tokens are latin identifiers (letters, digits and the symbol characters
// common in tech terms) or runs of at least two CJK characters.
var tokenRe = regexp.MustCompile(`(?i)[a-z0-9_+#.]+|[\x{4e00}-\x{9fff}]{2,}`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeText lowercases and removes all whitespace, the form used for
// substring matching against user answers.
func NormalizeText(text string) string {
	value := strings.ToLower(strings.TrimSpace(text))
	return whitespaceRe.ReplaceAllString(value, "")
}

// Tokenize extracts lowercase tokens for overlap and similarity scoring.
func Tokenize(text string) []string {
	matches := tokenRe.FindAllString(text, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ToLower(m)
	}
	return out
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(text) {
		set[t] = true
	}
	return set
}
