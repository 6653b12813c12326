package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// ParseProfile decodes a model answer into a Profile restricted to schema
// keys. Keys the schema does not define are dropped. An answer that holds
// no JSON object is an error.
func ParseProfile(text string, schema model.Schema) (model.Profile, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" || cleaned[0] != '{' {
		return nil, eris.New("extract: no JSON object in response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: decode response")
	}
	if inner, ok := raw["profile"].(map[string]any); ok && len(raw) == 1 {
		raw = inner
	}

	profile := make(model.Profile, len(schema.Fields))
	for _, f := range schema.Fields {
		if v, ok := raw[f.Key]; ok && v != nil {
			profile[f.Key] = v
		}
	}
	return profile, nil
}

// cleanJSON strips markdown fences and surrounding prose from a JSON
// answer, keeping the span from the first '{' to the last '}'.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
