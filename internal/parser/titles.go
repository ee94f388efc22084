package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Leading list markers followed by whitespace: "1. ", "12) ", "- ", "* ", "+ ", "• ".
	// "3.5 Tips" and "2024 Trends" keep their numbers.
	listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]|[-*+•])\s+`)

	// Lines made only of brackets and commas are leftovers of a broken JSON array
	bracketOnlyRe = regexp.MustCompile(`^[\[\],\s]+$`)
)

// ParseTitles extracts an ordered list of titles from raw model output.
// A JSON array (possibly surrounded by prose) is preferred and only its string
// elements are kept; otherwise each non-empty line becomes a title after list
// markers are stripped.
// A nil input yields an empty slice.
func ParseTitles(raw *string) []string {
	titles := []string{}
	if raw == nil {
		return titles
	}

	if fromJSON, ok := titlesFromJSON(*raw); ok {
		return appendTrimmed(titles, fromJSON)
	}

	return appendTrimmed(titles, titlesFromLines(*raw))
}

func titlesFromJSON(text string) ([]string, bool) {
	candidate, ok := extractBalanced(stripCodeFence(text), '[', ']')
	if !ok {
		return nil, false
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &elements); err != nil {
		return nil, false
	}

	out := make([]string, 0, len(elements))
	for _, el := range elements {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		// Some models answer with [{"title": "..."}]
		var obj struct {
			Title *string `json:"title"`
		}
		if err := json.Unmarshal(el, &obj); err == nil && obj.Title != nil {
			out = append(out, *obj.Title)
		}
		// Numbers, booleans, nulls and nested arrays are not titles
	}
	return out, true
}

func titlesFromLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || bracketOnlyRe.MatchString(line) {
			continue
		}
		if strings.HasPrefix(line, "```") {
			continue
		}
		line = listMarkerRe.ReplaceAllString(line, "")
		out = append(out, unquoteLine(line))
	}
	return out
}

// unquoteLine turns `"A title",` into `A title` for half-formed JSON arrays
func unquoteLine(line string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(line), ",")
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		if s, err := strconv.Unquote(trimmed); err == nil {
			return s
		}
	}
	return line
}

func appendTrimmed(dst, src []string) []string {
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
