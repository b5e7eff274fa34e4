package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Matches a fenced code block, language-tagged ("```json") or untagged.
var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// DecodeJSON decodes a JSON document from a model response into v.
// If the response contains a fenced code block, only the block's content is
// parsed; otherwise the whole response is parsed as JSON. There is no third
// branch: a response that fails both ways is an error, never coerced.
func DecodeJSON(text string, v any) error {
	candidate := strings.TrimSpace(text)
	if m := fencedBlockRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("response is not valid JSON: %w (response: %s)", err, truncate(text, 300))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
