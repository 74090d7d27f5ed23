// Package timeout defines centralized timeout constants for assistant operations.
package timeout

import "time"

const (
	// StreamTimeout is the upper bound for a streaming completion.
	StreamTimeout = 5 * time.Minute

	// TurnTimeout is the upper bound for one blocking message turn.
	TurnTimeout = 2 * time.Minute

	// ProviderCallTimeout is the timeout for a single non-streaming provider call.
	ProviderCallTimeout = 60 * time.Second

	// IntentTimeout is the timeout for intent classification.
	IntentTimeout = 15 * time.Second

	// ToolExecutionTimeout is the timeout for individual tool execution.
	ToolExecutionTimeout = 30 * time.Second

	// MaxToolRounds is the maximum number of tool-call rounds per turn.
	MaxToolRounds = 3
)
