package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/platform"
)

// NewBuiltinRegistry registers the standard tutoring-platform tool set
// against the given domain service.
func NewBuiltinRegistry(svc platform.Service) (*Registry, error) {
	r := NewRegistry()

	register := func(def *Definition, handler HandlerFunc) error {
		return r.Register(def, handler)
	}

	allRoles := []platform.Role{
		platform.RoleStudent, platform.RoleTutor, platform.RoleParent,
		platform.RoleOrganisation, platform.RoleAdmin,
	}

	if err := register(&Definition{
		Name:        "get_booking_status",
		Description: "Look up the status of a specific lesson booking by its booking id.",
		Parameters: objectSchema(map[string]any{
			"bookingId": map[string]any{
				"type":        "string",
				"description": "The booking id, e.g. B123.",
			},
		}, "bookingId"),
		Roles: allRoles,
	}, func(ctx context.Context, args map[string]any, ec ExecContext) (any, error) {
		bookingID := strings.TrimSpace(stringArg(args, "bookingId"))
		if bookingID == "" {
			return nil, platform.NotFound("bookingId argument is required")
		}
		// Ownership of the specific booking is re-validated by the service.
		return svc.BookingStatus(ctx, ec.QueryContext(), bookingID)
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "list_upcoming_lessons",
		Description: "List the caller's upcoming booked lessons.",
		Parameters: objectSchema(map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lessons to return (default 3).",
			},
		}),
		Roles: allRoles,
	}, func(ctx context.Context, args map[string]any, ec ExecContext) (any, error) {
		return svc.UpcomingLessons(ctx, ec.QueryContext(), intArg(args, "limit"))
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "get_progress_summary",
		Description: "Summarize a student's recent learning progress.",
		Parameters: objectSchema(map[string]any{
			"studentId": map[string]any{
				"type":        "string",
				"description": "Student to summarize; defaults to the caller.",
			},
		}),
		Roles: []platform.Role{platform.RoleStudent, platform.RoleParent, platform.RoleTutor, platform.RoleAdmin},
	}, func(ctx context.Context, args map[string]any, ec ExecContext) (any, error) {
		studentID := stringArg(args, "studentId")
		// Students may only read their own progress.
		if ec.Role == platform.RoleStudent && studentID != "" && studentID != ec.ActorID {
			return nil, platform.Forbidden("students may only view their own progress")
		}
		return svc.Progress(ctx, ec.QueryContext(), studentID)
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "get_earnings_summary",
		Description: "Summarize the tutor's earnings and next payout.",
		Parameters:  objectSchema(map[string]any{}),
		Roles:       []platform.Role{platform.RoleTutor, platform.RoleAdmin},
	}, func(ctx context.Context, _ map[string]any, ec ExecContext) (any, error) {
		return svc.Earnings(ctx, ec.QueryContext())
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "get_referral_link",
		Description: "Fetch the caller's referral link and referral credit.",
		Parameters:  objectSchema(map[string]any{}),
		Roles:       allRoles,
	}, func(ctx context.Context, _ map[string]any, ec ExecContext) (any, error) {
		return svc.Referral(ctx, ec.QueryContext())
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "create_support_ticket",
		Description: "Open a support ticket on the caller's behalf.",
		Parameters: objectSchema(map[string]any{
			"subject": map[string]any{"type": "string", "description": "Short summary of the problem."},
			"body":    map[string]any{"type": "string", "description": "Full problem description."},
		}, "subject"),
		Roles: allRoles,
	}, func(ctx context.Context, args map[string]any, ec ExecContext) (any, error) {
		subject := strings.TrimSpace(stringArg(args, "subject"))
		if subject == "" {
			return nil, platform.NotFound("subject argument is required")
		}
		return svc.CreateTicket(ctx, ec.QueryContext(), subject, stringArg(args, "body"))
	}); err != nil {
		return nil, err
	}

	if err := register(&Definition{
		Name:        "get_org_stats",
		Description: "Fetch activity statistics for an organisation.",
		Parameters: objectSchema(map[string]any{
			"orgId": map[string]any{
				"type":        "string",
				"description": "Organisation id; defaults to the caller's organisation.",
			},
		}),
		Roles: []platform.Role{platform.RoleOrganisation, platform.RoleAdmin},
	}, func(ctx context.Context, args map[string]any, ec ExecContext) (any, error) {
		return svc.Stats(ctx, ec.QueryContext(), stringArg(args, "orgId"))
	}); err != nil {
		return nil, err
	}

	return r, nil
}

// objectSchema builds a JSON-schema object with the given properties.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
