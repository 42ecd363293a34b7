package scanning

import (
	"bytes"
	"fmt"
)

// cleanResponse strips markdown fences and surrounding prose from a model answer,
// keeping the outermost JSON object.
func cleanResponse(raw []byte) ([]byte, error) {
	text := bytes.TrimSpace(raw)
	text = bytes.TrimPrefix(text, []byte("```json"))
	text = bytes.TrimPrefix(text, []byte("```"))
	text = bytes.TrimSuffix(text, []byte("```"))
	text = bytes.TrimSpace(text)

	start := bytes.IndexByte(text, '{')
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := bytes.LastIndexByte(text, '}')
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	return text[start : end+1], nil
}
