package intent

import (
	"strings"
)

// Matcher classifies messages against an ordered pattern table. It is the
// zero-cost first stage of classification and the whole of the offline
// engine's intent detection.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates a matcher over the given table. The table must have
// passed ValidatePatterns; NewMatcher returns the validation error otherwise.
func NewMatcher(patterns []Pattern) (*Matcher, error) {
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	return &Matcher{patterns: patterns}, nil
}

// MustDefaultMatcher returns a matcher over DefaultPatterns. The default
// table is validated by tests; a panic here means the table was edited into
// a shadowing state.
func MustDefaultMatcher() *Matcher {
	m, err := NewMatcher(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return m
}

// Match classifies the input. The first matching pattern wins. A message
// matching no pattern classifies as general chat with low confidence.
func (m *Matcher) Match(text string) *Intent {
	// Pad with spaces so word-boundary keywords ("hi ") match bare inputs.
	lower := " " + strings.ToLower(strings.TrimSpace(text)) + " "

	for i := range m.patterns {
		p := &m.patterns[i]
		if _, ok := p.Matches(lower); ok {
			return &Intent{
				Category:          p.Category,
				Action:            p.Action,
				Confidence:        p.Confidence,
				Entities:          ExtractEntities(text),
				NeedsConfirmation: p.NeedsConfirmation,
			}
		}
	}

	return &Intent{
		Category:   CategoryGeneral,
		Action:     "chat",
		Confidence: 0.4,
		Entities:   ExtractEntities(text),
	}
}
