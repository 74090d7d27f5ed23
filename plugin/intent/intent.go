// Package intent defines the intent classification model shared by all
// completion providers. Every backend, remote or offline, must resolve a user
// message to one of the canonical category/action pairs defined here.
package intent

import "fmt"

// Category is the closed set of topical domains the assistant understands.
type Category string

const (
	CategoryScheduling   Category = "scheduling"
	CategoryBilling      Category = "billing"
	CategoryProgress     Category = "progress"
	CategorySupport      Category = "support"
	CategoryPlatform     Category = "platform"
	CategoryOrganisation Category = "organisation"
	CategoryGeneral      Category = "general"
)

// Categories lists every valid category.
func Categories() []Category {
	return []Category{
		CategoryScheduling,
		CategoryBilling,
		CategoryProgress,
		CategorySupport,
		CategoryPlatform,
		CategoryOrganisation,
		CategoryGeneral,
	}
}

// IsValid reports whether c is one of the canonical categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryScheduling, CategoryBilling, CategoryProgress,
		CategorySupport, CategoryPlatform, CategoryOrganisation, CategoryGeneral:
		return true
	}
	return false
}

// Intent is the classified meaning of a user message.
type Intent struct {
	Category          Category          `json:"category"`
	Action            string            `json:"action"`
	Confidence        float32           `json:"confidence"`
	Entities          map[string]string `json:"entities,omitempty"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
}

// Operation returns the "category:action" pair used for permission checks.
func (i *Intent) Operation() string {
	return fmt.Sprintf("%s:%s", i.Category, i.Action)
}

// Fallback returns the degraded classification used when a backend produces
// malformed or unparseable output. The turn must continue, never error.
func Fallback() *Intent {
	return &Intent{
		Category:   CategoryGeneral,
		Action:     "chat",
		Confidence: 0.5,
	}
}
