package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencePattern matches markdown code fences with an optional language tag.
var fencePattern = regexp.MustCompile(`(?s)` + "```" + `(\w*)\s*\n(.+?)\n` + "```")

// ExtractJSON pulls a JSON object or array out of an LLM response.
// Models wrap JSON in prose and markdown fences no matter how the prompt
// asks; this checks fenced blocks first, then scans for raw brackets.
func ExtractJSON(response string) (string, error) {
	if jsonStr, found := extractFromFence(response); found {
		return jsonStr, nil
	}

	if jsonStr, found := extractRawJSON(response); found {
		return jsonStr, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// ExtractJSONInto extracts JSON and unmarshals it into v.
func ExtractJSONInto(response string, v interface{}) error {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// extractFromFence returns the first fenced block holding valid JSON.
// Blocks tagged with a non-JSON language are skipped.
func extractFromFence(response string) (string, bool) {
	for _, match := range fencePattern.FindAllStringSubmatch(response, -1) {
		if len(match) < 3 {
			continue
		}

		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}

		content := strings.TrimSpace(match[2])
		if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
			continue
		}
		if isValidJSON(content) {
			return content, true
		}
	}

	return "", false
}

// extractRawJSON finds an unfenced JSON object or array in the response.
func extractRawJSON(response string) (string, bool) {
	startObj := strings.Index(response, "{")
	startArr := strings.Index(response, "[")

	start := -1
	closeChar := byte('}')
	if startObj >= 0 && (startArr < 0 || startObj < startArr) {
		start = startObj
	} else if startArr >= 0 {
		start = startArr
		closeChar = ']'
	}

	if start < 0 {
		return "", false
	}

	jsonStr := matchBrackets(response[start:], closeChar)
	if jsonStr != "" && isValidJSON(jsonStr) {
		return jsonStr, true
	}

	return "", false
}

// matchBrackets returns the prefix of s up to the bracket balancing s[0],
// skipping brackets inside JSON strings and escape sequences.
func matchBrackets(s string, closeChar byte) string {
	if len(s) == 0 {
		return ""
	}

	openChar := s[0]
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}

	return ""
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}
