package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/assistant/plugin/platform"
)

func newTestExecutor(t *testing.T, svc platform.Service) (*Registry, *Executor) {
	t.Helper()
	registry, err := NewBuiltinRegistry(svc)
	require.NoError(t, err)
	return registry, NewExecutor(registry)
}

func studentCtx() ExecContext {
	return ExecContext{ActorID: "student-1", Role: platform.RoleStudent, SessionID: "sess-1"}
}

func TestRegistry_ForRole(t *testing.T) {
	registry, _ := newTestExecutor(t, platform.NewStubService())

	t.Run("StudentCannotSeeOrgOrEarningsTools", func(t *testing.T) {
		names := map[string]bool{}
		for _, def := range registry.ForRole(platform.RoleStudent) {
			names[def.Name] = true
		}
		assert.True(t, names["get_booking_status"])
		assert.True(t, names["list_upcoming_lessons"])
		assert.False(t, names["get_org_stats"])
		assert.False(t, names["get_earnings_summary"])
	})

	t.Run("TutorSeesEarnings", func(t *testing.T) {
		names := map[string]bool{}
		for _, def := range registry.ForRole(platform.RoleTutor) {
			names[def.Name] = true
		}
		assert.True(t, names["get_earnings_summary"])
		assert.False(t, names["get_org_stats"])
	})

	t.Run("SortedByName", func(t *testing.T) {
		defs := registry.ForRole(platform.RoleAdmin)
		require.NotEmpty(t, defs)
		for i := 1; i < len(defs); i++ {
			assert.Less(t, defs[i-1].Name, defs[i].Name)
		}
	})
}

func TestExecutor_BookingStatusRoundTrip(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	result := executor.Execute(context.Background(), Call{
		ID:        "call-1",
		Name:      "get_booking_status",
		Arguments: `{"bookingId":"B123"}`,
	}, studentCtx())

	require.NotNil(t, result)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Equal(t, "tool", result.Role)
	assert.False(t, result.IsError)

	var booking platform.Booking
	require.NoError(t, json.Unmarshal([]byte(result.Content), &booking),
		"result content must be valid JSON")
	assert.Equal(t, "B123", booking.BookingID)
	assert.Equal(t, "confirmed", booking.Status)
}

func TestExecutor_OwnershipRevalidated(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	// student-1 is not a party to B456.
	result := executor.Execute(context.Background(), Call{
		ID:        "call-2",
		Name:      "get_booking_status",
		Arguments: `{"bookingId":"B456"}`,
	}, studentCtx())

	assert.True(t, result.IsError)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "forbidden", payload["error"])
}

func TestExecutor_RoleGateOnHallucinatedCall(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	// A provider should never emit this for a student, but if it does the
	// executor refuses in-band.
	result := executor.Execute(context.Background(), Call{
		ID:   "call-3",
		Name: "get_org_stats",
	}, studentCtx())

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "forbidden")
}

func TestExecutor_UnknownTool(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	result := executor.Execute(context.Background(), Call{ID: "call-4", Name: "no_such_tool"}, studentCtx())
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown_tool")
}

func TestExecutor_InvalidArguments(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	result := executor.Execute(context.Background(), Call{
		ID:        "call-5",
		Name:      "get_booking_status",
		Arguments: `{not json`,
	}, studentCtx())

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "invalid_arguments")
}

func TestExecutor_ServiceUnavailableIsStructured(t *testing.T) {
	svc := platform.NewStubService()
	svc.Unreachable = true
	_, executor := newTestExecutor(t, svc)

	result := executor.Execute(context.Background(), Call{
		ID:        "call-6",
		Name:      "list_upcoming_lessons",
		Arguments: `{}`,
	}, studentCtx())

	require.NotNil(t, result, "service outage must not produce a nil result")
	assert.True(t, result.IsError)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "service_unavailable", payload["error"])
}

func TestExecutor_Timeout(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&Definition{
		Name:       "slow_tool",
		Parameters: objectSchema(map[string]any{}),
		Roles:      []platform.Role{platform.RoleStudent},
	}, func(ctx context.Context, _ map[string]any, _ ExecContext) (any, error) {
		select {
		case <-time.After(time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	executor := NewExecutor(registry, WithTimeout(20*time.Millisecond))
	result := executor.Execute(context.Background(), Call{ID: "call-7", Name: "slow_tool"}, studentCtx())

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "timeout")
}

func TestExecutor_TicketCreation(t *testing.T) {
	_, executor := newTestExecutor(t, platform.NewStubService())

	result := executor.Execute(context.Background(), Call{
		ID:        "call-8",
		Name:      "create_support_ticket",
		Arguments: `{"subject":"Video lessons will not load","body":"Spinner forever on Chrome."}`,
	}, studentCtx())

	require.False(t, result.IsError, result.Content)
	var ticket platform.Ticket
	require.NoError(t, json.Unmarshal([]byte(result.Content), &ticket))
	assert.Equal(t, "open", ticket.Status)
	assert.NotEmpty(t, ticket.ID)
}
