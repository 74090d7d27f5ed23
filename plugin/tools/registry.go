package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/lessonloop/assistant/plugin/platform"
)

// HandlerFunc executes a tool against parsed arguments. The returned value
// is marshaled to JSON as the result content. Domain failures must be
// returned as *platform.ServiceError so they become structured error
// payloads instead of failing the turn.
type HandlerFunc func(ctx context.Context, args map[string]any, ec ExecContext) (any, error)

// Registry holds the tool definitions and their handlers. It is populated at
// process start and read-only afterwards.
type Registry struct {
	defs     map[string]*Definition
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]*Definition),
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(def *Definition, handler HandlerFunc) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	if handler == nil {
		return fmt.Errorf("tool %q requires a handler", def.Name)
	}
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// ForRole returns the tools the role may statically see, sorted by name.
// This is the first of the two authorization gates; executors re-validate
// resource ownership dynamically.
func (r *Registry) ForRole(role platform.Role) []*Definition {
	var defs []*Definition
	for _, def := range r.defs {
		if def.AllowedFor(role) {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// handler returns the handler for name.
func (r *Registry) handler(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
