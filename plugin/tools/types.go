// Package tools declares the callable side-effecting operations the
// assistant may invoke via structured function calls, authorizes them per
// role, and executes them against the tutoring-domain services.
package tools

import (
	"encoding/json"

	"github.com/lessonloop/assistant/plugin/platform"
)

// Definition is the immutable description of one tool: its name, what it
// does, the JSON schema of its parameters, and the roles permitted to call
// it. Definitions are registered at process start and looked up by name.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  map[string]any  `json:"parameters"`
	Roles       []platform.Role `json:"-"`
}

// AllowedFor reports whether role may invoke the tool.
func (d *Definition) AllowedFor(role platform.Role) bool {
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Call is a provider-emitted request to execute a tool. Arguments is the
// raw JSON argument object exactly as the backend produced it.
type Call struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"argumentsJSON"`
}

// Result is the structured outcome fed back into the conversation as a
// tool-role message. Content is always valid JSON: either the executor's
// payload or an {"error": kind} object. A Call is always correlated to
// exactly one Result.
type Result struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name"`
	Role       string `json:"role"` // always "tool"
	Content    string `json:"contentJSON"`
	IsError    bool   `json:"isError"`
}

// ExecContext identifies the actor on whose behalf a tool runs.
type ExecContext struct {
	ActorID   string
	Role      platform.Role
	OrgID     string
	SessionID string
}

// QueryContext converts the execution context to a domain-service scope.
func (ec ExecContext) QueryContext() platform.QueryContext {
	return platform.QueryContext{
		ActorID:   ec.ActorID,
		Role:      ec.Role,
		OrgID:     ec.OrgID,
		SessionID: ec.SessionID,
	}
}

// errorPayload is the structured failure content of a Result.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func errorContent(kind, message string) string {
	raw, _ := json.Marshal(errorPayload{Error: kind, Message: message})
	return string(raw)
}
