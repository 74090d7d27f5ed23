package intent

import (
	"encoding/json"
	"strings"
)

// wire is the JSON shape remote backends are prompted to emit.
type wire struct {
	Category          string            `json:"category"`
	Action            string            `json:"action"`
	Confidence        float32           `json:"confidence"`
	Entities          map[string]string `json:"entities"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
}

// ParseJSON parses a backend classification response into an Intent. Backends
// wrap output in markdown fences or prose often enough that this strips down
// to the outermost JSON object first. Malformed or out-of-range output
// degrades to Fallback() rather than erroring the turn.
func ParseJSON(content string) *Intent {
	raw := extractJSONObject(content)
	if raw == "" {
		return Fallback()
	}

	var w wire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Fallback()
	}

	category := Category(strings.ToLower(strings.TrimSpace(w.Category)))
	if !category.IsValid() {
		return Fallback()
	}

	action := strings.ToLower(strings.TrimSpace(w.Action))
	if action == "" {
		action = "chat"
	}

	confidence := w.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	return &Intent{
		Category:          category,
		Action:            action,
		Confidence:        confidence,
		Entities:          w.Entities,
		NeedsConfirmation: w.NeedsConfirmation,
	}
}

// extractJSONObject returns the outermost {...} block in content, or "".
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
