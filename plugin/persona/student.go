package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// StudentPersona is the learner-facing assistant: encouraging, concrete,
// focused on lessons and progress.
type StudentPersona struct {
	base
}

// NewStudentPersona creates the student persona.
func NewStudentPersona(svc platform.Service) *StudentPersona {
	return &StudentPersona{base: base{
		name: "Study Buddy",
		role: platform.RoleStudent,
		tone: "friendly, encouraging, plain language",
		categories: []intent.Category{
			intent.CategoryScheduling,
			intent.CategoryProgress,
			intent.CategoryBilling,
			intent.CategorySupport,
			intent.CategoryPlatform,
			intent.CategoryGeneral,
		},
		svc: svc,
	}}
}

func (p *StudentPersona) Greeting() string {
	return "Hi! I'm your Study Buddy. I can check your upcoming lessons, track your progress, or help if something's not working. What's up?"
}

func (p *StudentPersona) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Category {
	case intent.CategoryScheduling:
		return p.handleScheduling(ctx, it, pc)
	case intent.CategoryProgress:
		return p.handleProgress(ctx, pc)
	case intent.CategoryBilling:
		if it.Action == "referral" {
			return referralReply(ctx, p.svc, pc)
		}
		return &ActionResult{
			Success:     true,
			Message:     "Billing for your lessons is managed by your parent or guardian's account. I can help with lessons, homework and progress!",
			Suggestions: []string{"When is my next lesson?", "How am I doing?"},
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

func (p *StudentPersona) handleScheduling(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Action {
	case "cancel_booking", "reschedule", "book":
		if it.NeedsConfirmation {
			return p.confirmation(strings.ReplaceAll(it.Action, "_", " ") + " this lesson"), nil
		}
	}

	lessons, err := p.svc.UpcomingLessons(ctx, pc.Query, 3)
	if err != nil {
		return p.failure(err), nil
	}
	if len(lessons) == 0 {
		return &ActionResult{
			Success:     true,
			Message:     "You don't have any lessons booked yet. Want to set one up?",
			Suggestions: []string{"Book a lesson", "Browse tutors"},
		}, nil
	}

	var sb strings.Builder
	sb.WriteString("Here's what's coming up:\n")
	for _, l := range lessons {
		fmt.Fprintf(&sb, "- %s with %s on %s (%d min)\n",
			l.Subject, l.TutorName, l.StartsAt.Format("Mon 2 Jan 15:04"), l.Duration)
	}
	return &ActionResult{
		Success:     true,
		Message:     sb.String(),
		Data:        lessons,
		Suggestions: []string{"Reschedule a lesson", "Book another lesson"},
	}, nil
}

func (p *StudentPersona) handleProgress(ctx context.Context, pc *Context) (*ActionResult, error) {
	summary, err := p.svc.Progress(ctx, pc.Query, "")
	if err != nil {
		return p.failure(err), nil
	}
	msg := fmt.Sprintf(
		"You've completed %d lessons and %d homework tasks (%d still open). Your average score is %.0f%% and you're %s — keep it up!",
		summary.LessonsCompleted, summary.HomeworkDone, summary.HomeworkPending,
		summary.AverageScore, summary.Trend)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        summary,
		Suggestions: []string{"Show my homework", "Book a lesson"},
	}, nil
}
