package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses model output into target, tolerating the code fences and
// leading prose some models wrap around an otherwise valid JSON object.
func DecodeJSON(content string, target any) error {
	candidate := ExtractJSON(content)
	if candidate == "" {
		return fmt.Errorf("no JSON object found in model output")
	}
	decoder := json.NewDecoder(strings.NewReader(candidate))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// ExtractJSON returns the first balanced JSON object embedded in content, or
// an empty string when none is present.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if fenced := stripFence(content); fenced != "" {
		content = fenced
	}
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	rest := strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		rest = rest[newline+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
