package llm

import (
	"regexp"
	"strings"
)

// ExtractJSON strips markdown code fences from a model response, returning
// the inner JSON. Returns the trimmed input when no fence is present.
func ExtractJSON(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += 7
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "```"); start != -1 {
		start += 3
		if end := strings.Index(s[start:], "```"); end != -1 {
			content := strings.TrimSpace(s[start : start+end])
			// Skip language identifier line if present
			if idx := strings.Index(content, "\n"); idx != -1 && !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
				content = content[idx+1:]
			}
			return strings.TrimSpace(content)
		}
	}
	return strings.TrimSpace(s)
}

// Models sometimes emit explicitly signed numbers ("+2"), which is not
// valid JSON. Strip the sign where a number begins.
var plusSignedNumber = regexp.MustCompile(`([:\[,]\s*)\+(\d)`)

// SanitizeJSONNumbers makes leading-plus numbers parseable.
func SanitizeJSONNumbers(s string) string {
	return plusSignedNumber.ReplaceAllString(s, "${1}${2}")
}
