package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// TutorPersona serves tutors: schedule, students' progress, earnings.
type TutorPersona struct {
	base
}

// NewTutorPersona creates the tutor persona.
func NewTutorPersona(svc platform.Service) *TutorPersona {
	return &TutorPersona{base: base{
		name: "Tutor Assistant",
		role: platform.RoleTutor,
		tone: "professional, efficient, collegial",
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

func (p *TutorPersona) Greeting() string {
	return "Hello! I'm your Tutor Assistant. I can pull up your teaching schedule, your students' progress, or your earnings. How can I help?"
}

func (p *TutorPersona) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	switch it.Category {
	case intent.CategoryScheduling:
		return p.handleScheduling(ctx, it, pc)
	case intent.CategoryBilling:
		return p.handleBilling(ctx, it, pc)
	case intent.CategoryProgress:
		return p.handleProgress(ctx, it, pc)
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

func (p *TutorPersona) handleScheduling(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	if it.NeedsConfirmation {
		return p.confirmation(strings.ReplaceAll(it.Action, "_", " ")), nil
	}
	lessons, err := p.svc.UpcomingLessons(ctx, pc.Query, 5)
	if err != nil {
		return p.failure(err), nil
	}
	if len(lessons) == 0 {
		return &ActionResult{
			Success:     true,
			Message:     "Your teaching schedule is clear — no upcoming lessons booked.",
			Suggestions: []string{"Update my availability"},
		}, nil
	}
	var sb strings.Builder
	sb.WriteString("Your upcoming lessons:\n")
	for _, l := range lessons {
		fmt.Fprintf(&sb, "- %s on %s (%d min, booking %s)\n",
			l.Subject, l.StartsAt.Format("Mon 2 Jan 15:04"), l.Duration, l.BookingID)
	}
	return &ActionResult{
		Success:     true,
		Message:     sb.String(),
		Data:        lessons,
		Suggestions: []string{"Check a booking status", "Update my availability"},
	}, nil
}

func (p *TutorPersona) handleBilling(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	if it.Action == "referral" {
		return referralReply(ctx, p.svc, pc)
	}
	earnings, err := p.svc.Earnings(ctx, pc.Query)
	if err != nil {
		return p.failure(err), nil
	}
	msg := fmt.Sprintf("You've taught %d lessons %s for %.2f gross. %.2f is pending payout; your next payout lands on %s.",
		earnings.LessonsTaught, earnings.PeriodLabel, earnings.GrossAmount,
		earnings.PendingPayout, earnings.NextPayoutDate)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        earnings,
		Suggestions: []string{"Show payout history", "Get my referral link"},
	}, nil
}

func (p *TutorPersona) handleProgress(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	studentID := ""
	if it.Entities != nil {
		studentID = it.Entities["studentId"]
	}
	summary, err := p.svc.Progress(ctx, pc.Query, studentID)
	if err != nil {
		return p.failure(err), nil
	}
	msg := fmt.Sprintf("That student has completed %d lessons with an average score of %.0f%% and is currently %s. %d homework tasks are still open.",
		summary.LessonsCompleted, summary.AverageScore, summary.Trend, summary.HomeworkPending)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        summary,
		Suggestions: []string{"Assign homework", "Message the student"},
	}, nil
}
