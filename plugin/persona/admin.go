package persona

import (
	"context"
	"fmt"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// AdminPersona serves platform operators. It handles every category.
type AdminPersona struct {
	base
}

// NewAdminPersona creates the admin persona.
func NewAdminPersona(svc platform.Service) *AdminPersona {
	return &AdminPersona{base: base{
		name:       "Operations Assistant",
		role:       platform.RoleAdmin,
		tone:       "terse, technical, exact",
		categories: intent.Categories(),
		svc:        svc,
	}}
}

func (p *AdminPersona) Greeting() string {
	return "Operations Assistant ready. I can query bookings, org stats, progress and earnings across the platform."
}

func (p *AdminPersona) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Category {
	case intent.CategoryOrganisation:
		orgID := ""
		if it.Entities != nil {
			orgID = it.Entities["orgId"]
		}
		stats, err := p.svc.Stats(ctx, pc.Query, orgID)
		if err != nil {
			return p.failure(err), nil
		}
		return &ActionResult{
			Success: true,
			Message: fmt.Sprintf("org=%s students=%d tutors=%d lessons=%d open_tickets=%d",
				stats.OrgID, stats.ActiveStudents, stats.ActiveTutors, stats.LessonsTaught, stats.OpenTickets),
			Data: stats,
		}, nil

	case intent.CategoryScheduling:
		if bookingID := entity(it, "bookingId"); bookingID != "" {
			booking, err := p.svc.BookingStatus(ctx, pc.Query, bookingID)
			if err != nil {
				return p.failure(err), nil
			}
			return &ActionResult{
				Success: true,
				Message: fmt.Sprintf("booking %s: %s (%s, starts %s)",
					booking.BookingID, booking.Status, booking.Subject, booking.StartsAt.Format("2006-01-02 15:04")),
				Data: booking,
			}, nil
		}
		lessons, err := p.svc.UpcomingLessons(ctx, pc.Query, 10)
		if err != nil {
			return p.failure(err), nil
		}
		return &ActionResult{
			Success: true,
			Message: fmt.Sprintf("%d upcoming lessons in scope.", len(lessons)),
			Data:    lessons,
		}, nil

	case intent.CategoryGeneral:
		return generalReply(p, it), nil
	case intent.CategorySupport:
		return supportReply(it), nil
	case intent.CategoryPlatform:
		return platformReply(), nil
	default:
		return p.generic(it), nil
	}
}

func entity(it *intent.Intent, key string) string {
	if it.Entities == nil {
		return ""
	}
	return it.Entities[key]
}
