package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// decodeModelJSON parses the completion text into a generic value.
// Numbers are kept as json.Number so amounts do not pass through float64.
func decodeModelJSON(raw string) (any, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("decodeModelJSON: empty content")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decodeModelJSON: unmarshal: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decodeModelJSON: trailing data after JSON value")
	}

	return parsed, nil
}

// cleanModelJSON strips Markdown fences and surrounding prose in case the
// model ignored the JSON-only instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost object when prose surrounds it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = s[start : end+1]
		}
	}

	return strings.TrimSpace(s)
}
