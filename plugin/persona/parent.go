package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// ParentPersona serves parents and guardians: their child's schedule and
// progress, and the family's billing.
type ParentPersona struct {
	base
}

// NewParentPersona creates the parent persona.
func NewParentPersona(svc platform.Service) *ParentPersona {
	return &ParentPersona{base: base{
		name: "Family Assistant",
		role: platform.RoleParent,
		tone: "warm, clear, reassuring",
		categories: []intent.Category{
			intent.CategoryScheduling,
			intent.CategoryBilling,
			intent.CategoryProgress,
			intent.CategorySupport,
			intent.CategoryPlatform,
			intent.CategoryGeneral,
		},
		svc: svc,
	}}
}

func (p *ParentPersona) Greeting() string {
	return "Hello! I'm the Family Assistant. I can show your child's lessons and progress, or help with payments and bookings. What would you like to know?"
}

func (p *ParentPersona) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Category {
	case intent.CategoryScheduling:
		if it.NeedsConfirmation {
			return p.confirmation(strings.ReplaceAll(it.Action, "_", " ")), nil
		}
		lessons, err := p.svc.UpcomingLessons(ctx, pc.Query, 3)
		if err != nil {
			return p.failure(err), nil
		}
		if len(lessons) == 0 {
			return &ActionResult{
				Success:     true,
				Message:     "There are no upcoming lessons booked for your child at the moment.",
				Suggestions: []string{"Book a lesson", "Browse tutors"},
			}, nil
		}
		var sb strings.Builder
		sb.WriteString("Your child's upcoming lessons:\n")
		for _, l := range lessons {
			fmt.Fprintf(&sb, "- %s with %s on %s\n", l.Subject, l.TutorName, l.StartsAt.Format("Mon 2 Jan 15:04"))
		}
		return &ActionResult{
			Success:     true,
			Message:     sb.String(),
			Data:        lessons,
			Suggestions: []string{"Reschedule a lesson", "View progress"},
		}, nil

	case intent.CategoryBilling:
		if it.Action == "referral" {
			return referralReply(ctx, p.svc, pc)
		}
		if it.Action == "refund" && it.NeedsConfirmation {
			return p.confirmation("request a refund for a lesson"), nil
		}
		return &ActionResult{
			Success:     true,
			Message:     "You can review invoices and payment methods in Account → Billing. Lessons are charged after they take place, and unused credit rolls over.",
			Suggestions: []string{"View invoices", "Get my referral link"},
		}, nil

	case intent.CategoryProgress:
		summary, err := p.svc.Progress(ctx, pc.Query, "")
		if err != nil {
			return p.failure(err), nil
		}
		msg := fmt.Sprintf("Your child has completed %d lessons with an average score of %.0f%% and is %s. %d homework tasks are waiting.",
			summary.LessonsCompleted, summary.AverageScore, summary.Trend, summary.HomeworkPending)
		return &ActionResult{
			Success:     true,
			Message:     msg,
			Data:        summary,
			Suggestions: []string{"See homework", "Message the tutor"},
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
