// Package persona maps classified intents to role-appropriate replies. One
// persona exists per user role; sub-personas may claim individual turns for
// specialized topics without widening the base persona's permissions.
package persona

import (
	"context"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// Context carries the per-turn information a persona needs to answer.
type Context struct {
	Query   platform.QueryContext
	Message string
	// Preferences
	Locale    string
	Timezone  string
	Verbosity string
}

// ActionResult is the structured outcome of handling one intent.
type ActionResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Data        any      `json:"data,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Err         string   `json:"error,omitempty"`
}

// Persona is the role-specific behavior policy.
type Persona interface {
	// Name is the displayed persona name.
	Name() string
	// Role is the user role this persona serves.
	Role() platform.Role
	// Tone describes the persona's register, used in system prompts.
	Tone() string
	// Categories is the ordered list of topical categories the persona
	// handles. Order reflects priority in capability listings.
	Categories() []intent.Category
	// CanHandle reports whether the persona handles the category.
	CanHandle(category intent.Category) bool
	// Greeting returns the persona's opening message.
	Greeting() string
	// HandleIntent maps a classified intent to a concrete reply. A category
	// the persona does not handle degrades to a generic response; it never
	// errors for that reason.
	HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error)
}

// SubPersona layers specialization over a base persona. Claim is a cheap
// heuristic over the classified category and raw message text; when it
// returns true the sub-persona takes the turn. Selection is advisory and
// never bypasses the base persona's permission boundary, which the
// orchestrator checks before any sub-persona runs.
type SubPersona interface {
	Persona
	// BaseRole is the role whose turns this sub-persona may claim.
	BaseRole() platform.Role
	// Claim reports whether the sub-persona takes this turn.
	Claim(category intent.Category, message string) bool
}

// Registry resolves roles to personas by pure lookup.
type Registry struct {
	personas map[platform.Role]Persona
	subs     []SubPersona
}

// NewRegistry creates a registry with the standard persona per role and the
// standard sub-personas, all backed by the given domain service.
func NewRegistry(svc platform.Service) *Registry {
	r := &Registry{personas: make(map[platform.Role]Persona)}
	for _, p := range []Persona{
		NewStudentPersona(svc),
		NewTutorPersona(svc),
		NewParentPersona(svc),
		NewOrganisationPersona(svc),
		NewAdminPersona(svc),
	} {
		r.personas[p.Role()] = p
	}
	r.subs = []SubPersona{
		NewEarningsSpecialist(svc),
		NewStudyCoach(svc),
	}
	return r
}

// ForRole returns the base persona for role.
func (r *Registry) ForRole(role platform.Role) (Persona, bool) {
	p, ok := r.personas[role]
	return p, ok
}

// Select resolves the persona for one turn: the base persona for the role,
// substituted by the first claiming sub-persona. The permission check always
// runs against the base persona, so the result of Select can only narrow
// style, never widen capability.
func (r *Registry) Select(role platform.Role, category intent.Category, message string) (base Persona, active Persona, ok bool) {
	base, ok = r.personas[role]
	if !ok {
		return nil, nil, false
	}
	if !base.CanHandle(category) {
		return base, nil, false
	}
	for _, sub := range r.subs {
		if sub.BaseRole() == role && sub.Claim(category, message) {
			return base, sub, true
		}
	}
	return base, base, true
}
