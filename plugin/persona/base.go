package persona

import (
	"fmt"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// base carries the fields and trivial accessors shared by every persona.
type base struct {
	name       string
	role       platform.Role
	tone       string
	categories []intent.Category
	svc        platform.Service
}

func (b *base) Name() string                  { return b.name }
func (b *base) Role() platform.Role           { return b.role }
func (b *base) Tone() string                  { return b.tone }
func (b *base) Categories() []intent.Category { return append([]intent.Category(nil), b.categories...) }

func (b *base) CanHandle(category intent.Category) bool {
	for _, c := range b.categories {
		if c == category {
			return true
		}
	}
	return false
}

// generic is the graceful degradation for categories a persona receives but
// does not specifically handle. It must succeed, never error.
func (b *base) generic(it *intent.Intent) *ActionResult {
	return &ActionResult{
		Success: true,
		Message: fmt.Sprintf("I can help with that. Could you tell me a bit more about what you need regarding %s?", it.Category),
		Suggestions: []string{
			"What can you do?",
			"Contact support",
		},
	}
}

// failure wraps a domain-service error into a coherent, suggestion-carrying
// reply so the turn still ends with assistant-facing output.
func (b *base) failure(err error) *ActionResult {
	return &ActionResult{
		Success:     false,
		Message:     "I couldn't reach that information just now. Please try again in a moment.",
		Err:         err.Error(),
		Suggestions: []string{"Try again", "Contact support"},
	}
}

// confirmation asks the user to confirm a side-effecting action before any
// tool runs.
func (b *base) confirmation(what string) *ActionResult {
	return &ActionResult{
		Success:     true,
		Message:     fmt.Sprintf("Just to confirm: you'd like me to %s? Reply \"yes\" to go ahead.", what),
		Suggestions: []string{"Yes, go ahead", "No, never mind"},
	}
}
