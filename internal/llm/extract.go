package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a completion contains no decodable JSON.
var ErrNoJSON = errors.New("no JSON found in LLM output")

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// DecodeJSON decodes the first JSON value found in text into v. It tries the
// whole text, then a fenced code block, then the first balanced array or
// object.
func DecodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoJSON
	}

	var lastErr error
	candidates := []string{text, extractFromCodeBlock(text), extractBalanced(text, '[', ']'), extractBalanced(text, '{', '}')}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		err := json.Unmarshal([]byte(candidate), v)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return errors.Join(ErrNoJSON, lastErr)
	}
	return ErrNoJSON
}

func extractFromCodeBlock(text string) string {
	matches := codeBlockRe.FindStringSubmatch(text)
	if len(matches) >= 2 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func extractBalanced(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
