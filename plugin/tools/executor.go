package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/plugin/timeout"
)

// Executor runs tool calls with authorization and timeout enforcement.
// Execution is append-only: an executor never mutates conversation state,
// it only returns a Result for the orchestrator to append.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		timeout:  timeout.ToolExecutionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RateLimited builds the in-band result for a tool call denied by a request
// budget, so the conversation continues and can tell the user to slow down.
func RateLimited(call Call, retryAfter time.Duration) *Result {
	return &Result{
		ToolCallID: call.ID,
		Name:       call.Name,
		Role:       "tool",
		IsError:    true,
		Content:    errorContent("rate_limited", "retry in "+retryAfter.Round(time.Second).String()),
	}
}

// Execute runs one tool call. Authorization failures and domain-service
// failures are returned inside the Result as structured {error} payloads so
// the conversation can continue; a Go error is reserved for invariant
// violations (unknown tool requested by a provider is still reported in-band).
func (e *Executor) Execute(ctx context.Context, call Call, ec ExecContext) *Result {
	start := time.Now()
	result := &Result{
		ToolCallID: call.ID,
		Name:       call.Name,
		Role:       "tool",
	}

	def, ok := e.registry.Get(call.Name)
	if !ok {
		result.IsError = true
		result.Content = errorContent("unknown_tool", "no tool named "+call.Name)
		return result
	}

	// Static role gate. Providers only see role-filtered definitions, but a
	// hallucinated call must not slip through.
	if !def.AllowedFor(ec.Role) {
		result.IsError = true
		result.Content = errorContent("forbidden", "tool not available for role "+string(ec.Role))
		return result
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			result.IsError = true
			result.Content = errorContent("invalid_arguments", err.Error())
			return result
		}
	}

	handler, _ := e.registry.handler(call.Name)

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := handler(execCtx, args, ec)
	elapsed := time.Since(start)

	if err != nil {
		result.IsError = true
		var svcErr *platform.ServiceError
		switch {
		case errors.As(err, &svcErr):
			result.Content = errorContent(string(svcErr.Kind), svcErr.Message)
		case execCtx.Err() != nil:
			result.Content = errorContent("timeout", "tool execution timed out")
		default:
			result.Content = errorContent("internal", err.Error())
		}
		slog.Warn("tool execution failed",
			slog.String("tool", call.Name),
			slog.String("actor", ec.ActorID),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return result
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		result.IsError = true
		result.Content = errorContent("internal", "unmarshalable tool payload")
		return result
	}
	result.Content = string(raw)

	slog.Debug("tool execution succeeded",
		slog.String("tool", call.Name),
		slog.String("actor", ec.ActorID),
		slog.Duration("duration", elapsed))
	return result
}
