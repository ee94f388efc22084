package parser

import (
	"strings"
)

// stripCodeFence removes a surrounding markdown fence (```json ... ``` or ``` ... ```).
// Text without a leading fence is returned trimmed.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the info string ("json", "JSON", ...) on the opening line
	if idx := strings.Index(text, "\n"); idx >= 0 {
		info := strings.TrimSpace(text[:idx])
		if !strings.ContainsAny(info, "{[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// extractBalanced returns the substring from the first open delimiter to its
// matching close delimiter. Delimiters inside JSON string literals are ignored
// and backslash escapes inside strings are honoured.
func extractBalanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// preview shortens raw model output for log lines
func preview(text string) string {
	const limit = 200
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
