package structured

import (
	"encoding/json"
	"strings"
)

// recoverJSON returns the JSON document in content. Structured output is
// normally bare JSON; models behind gateways sometimes wrap it in a markdown
// fence, which is tried next. An object embedded in prose is only accepted
// when allowProse is set, and fromProse reports that it was.
func recoverJSON(content string, allowProse bool) (doc string, fromProse bool, ok bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false, false
	}
	if json.Valid([]byte(content)) {
		return content, false, true
	}
	if stripped := stripCodeFences(content); stripped != "" && json.Valid([]byte(stripped)) {
		return stripped, false, true
	}
	if !allowProse {
		return "", false, false
	}
	if extracted := extractObject(content); extracted != "" && json.Valid([]byte(extracted)) {
		return extracted, true, true
	}
	return "", false, false
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence (with optional language tag) and a trailing fence.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
