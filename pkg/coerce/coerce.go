package coerce

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Citation is one resolved piece of evidence backing an answer.
type Citation struct {
	ID    string `json:"id"`
	Quote string `json:"quote"`
}

// MaxQuoteLen is the display budget for a citation quote.
const MaxQuoteLen = 120

var (
	fenceRe  = regexp.MustCompile("(?is)^```(?:json)?\\s*([\\s\\S]*?)\\s*```$")
	markerRe = regexp.MustCompile(`\[@([^\[\]\s]+)\]`)
)

// StripCodeFence removes a surrounding ``` / ```json fence if the whole text
// is wrapped in one.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// stripLeadingJSONToken drops a stray `"json` / `json` prefix that some models
// emit before the actual object.
func stripLeadingJSONToken(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, `"json`) {
		trimmed = trimmed[5:]
	} else if strings.HasPrefix(lower, "json") {
		trimmed = trimmed[4:]
	}
	return strings.TrimLeft(trimmed, " \t\r\n:\"")
}

// Coerce parses free-form model output into a plain answer plus a raw
// citation list. Any parse failure degrades to plain-text passthrough; it
// never fails. A citations field that is not an array counts as malformed
// and yields an empty list, not a passthrough.
func Coerce(text string) (string, []json.RawMessage) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	cleaned := StripCodeFence(text)
	cleaned = stripLeadingJSONToken(cleaned)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err == nil {
		var answer string
		if raw, ok := fields["answer"]; ok && json.Unmarshal(raw, &answer) == nil {
			var citations []json.RawMessage
			if raw, ok := fields["citations"]; ok {
				// Ignored when not an array of entries.
				_ = json.Unmarshal(raw, &citations)
			}
			return answer, citations
		}
	}

	return strings.TrimSpace(cleaned), nil
}

// ExtractMarkers returns the evidence ids referenced by inline [@id] markers,
// in first-occurrence order, deduplicated.
func ExtractMarkers(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// StripMarkers removes [@id] tokens from displayed text.
func StripMarkers(text string) string {
	stripped := markerRe.ReplaceAllString(text, "")
	// Collapse double spaces left behind by removed markers.
	stripped = strings.ReplaceAll(stripped, "  ", " ")
	return strings.TrimSpace(stripped)
}

// ShortenQuote truncates a quote to n characters (runes) with an ellipsis.
func ShortenQuote(text string, n int) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

type rawCitation struct {
	ID    string `json:"id"`
	Quote string `json:"quote"`
}

// NormalizeCitations accepts raw citation entries that are either bare id
// strings or {id, quote} objects, resolves missing quotes from candidateMap,
// shortens every quote and caps the result at maxN entries. Entries without a
// resolvable id are dropped.
func NormalizeCitations(raw []json.RawMessage, candidateMap map[string]string, maxN int) []Citation {
	if len(raw) == 0 || maxN <= 0 {
		return nil
	}
	var out []Citation
	for _, item := range raw {
		var id, quote string

		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			id = strings.TrimSpace(s)
			quote = candidateMap[id]
		} else {
			var obj rawCitation
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			id = strings.TrimSpace(obj.ID)
			quote = obj.Quote
			if quote == "" {
				quote = candidateMap[id]
			}
		}
		if id == "" {
			continue
		}

		out = append(out, Citation{ID: id, Quote: ShortenQuote(quote, MaxQuoteLen)})
		if len(out) >= maxN {
			break
		}
	}
	return out
}

// NormalizeCitationStructs is NormalizeCitations for citations that are
// already structured, e.g. rebuilt from cached citation ids.
func NormalizeCitationStructs(citations []Citation, candidateMap map[string]string, maxN int) []Citation {
	if len(citations) == 0 || maxN <= 0 {
		return nil
	}
	var out []Citation
	for _, c := range citations {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			continue
		}
		quote := c.Quote
		if quote == "" {
			quote = candidateMap[id]
		}
		out = append(out, Citation{ID: id, Quote: ShortenQuote(quote, MaxQuoteLen)})
		if len(out) >= maxN {
			break
		}
	}
	return out
}
