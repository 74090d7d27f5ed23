package persona

import (
	"context"
	"fmt"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// OrganisationPersona serves school and organisation administrators.
type OrganisationPersona struct {
	base
}

// NewOrganisationPersona creates the organisation persona.
func NewOrganisationPersona(svc platform.Service) *OrganisationPersona {
	return &OrganisationPersona{base: base{
		name: "Organisation Assistant",
		role: platform.RoleOrganisation,
		tone: "businesslike, data-driven",
		categories: []intent.Category{
			intent.CategoryOrganisation,
			intent.CategoryScheduling,
			intent.CategoryBilling,
			intent.CategorySupport,
			intent.CategoryPlatform,
			intent.CategoryGeneral,
		},
		svc: svc,
	}}
}

func (p *OrganisationPersona) Greeting() string {
	return "Welcome! I'm the Organisation Assistant. I can report on your members' activity, lessons and tickets, or help you manage the organisation."
}

func (p *OrganisationPersona) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Category {
	case intent.CategoryOrganisation:
		switch it.Action {
		case "manage":
			if it.NeedsConfirmation {
				return p.confirmation("make changes to your organisation's membership"), nil
			}
			return &ActionResult{
				Success:     true,
				Message:     "You can add or remove members under Organisation → Members. Tell me what change you'd like and I'll walk you through it.",
				Suggestions: []string{"Add a member", "Remove a member"},
			}, nil
		default:
			stats, err := p.svc.Stats(ctx, pc.Query, "")
			if err != nil {
				return p.failure(err), nil
			}
			msg := fmt.Sprintf("Your organisation has %d active students and %d active tutors. %d lessons were taught this month and %d support tickets are open.",
				stats.ActiveStudents, stats.ActiveTutors, stats.LessonsTaught, stats.OpenTickets)
			return &ActionResult{
				Success:     true,
				Message:     msg,
				Data:        stats,
				Suggestions: []string{"Show open tickets", "Export activity report"},
			}, nil
		}

	case intent.CategoryScheduling:
		lessons, err := p.svc.UpcomingLessons(ctx, pc.Query, 5)
		if err != nil {
			return p.failure(err), nil
		}
		return &ActionResult{
			Success:     true,
			Message:     fmt.Sprintf("There are %d lessons scheduled across your organisation in the coming days.", len(lessons)),
			Data:        lessons,
			Suggestions: []string{"Show org stats"},
		}, nil

	case intent.CategoryBilling:
		return &ActionResult{
			Success:     true,
			Message:     "Organisation invoices are issued monthly and available under Organisation → Billing. I can break down usage by member if you like.",
			Suggestions: []string{"Show org stats", "Download last invoice"},
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
