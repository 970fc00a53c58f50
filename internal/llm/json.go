package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when model output contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

var (
	fencedJSON  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedPlain = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

// ExtractJSON finds the first JSON object in raw and decodes it into v. It
// tries a ```json fence, then any fence, then the first balanced {...} span.
func ExtractJSON(raw string, v any) error {
	candidates := make([]string, 0, 3)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := fencedPlain.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, raw)

	var lastErr error = ErrNoJSON
	for _, c := range candidates {
		obj, ok := firstObject(c)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(obj), v); err != nil {
			lastErr = fmt.Errorf("decode model JSON: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// firstObject returns the first balanced {...} span in s, ignoring braces
// inside string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
