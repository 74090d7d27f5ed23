package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// EarningsSpecialist claims billing-flavored turns from the tutor persona
// and answers with payout-level detail.
type EarningsSpecialist struct {
	TutorPersona
}

// NewEarningsSpecialist creates the earnings specialist sub-persona.
func NewEarningsSpecialist(svc platform.Service) *EarningsSpecialist {
	sub := &EarningsSpecialist{TutorPersona: *NewTutorPersona(svc)}
	sub.name = "Earnings Specialist"
	sub.tone = "precise, numbers-first"
	return sub
}

func (p *EarningsSpecialist) BaseRole() platform.Role { return platform.RoleTutor }

func (p *EarningsSpecialist) Claim(category intent.Category, message string) bool {
	if category == intent.CategoryBilling {
		return true
	}
	lower := strings.ToLower(message)
	for _, kw := range []string{"payout", "earned", "earnings", "payslip", "income"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *EarningsSpecialist) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	earnings, err := p.svc.Earnings(ctx, pc.Query)
	if err != nil {
		return p.failure(err), nil
	}
	perLesson := 0.0
	if earnings.LessonsTaught > 0 {
		perLesson = earnings.GrossAmount / float64(earnings.LessonsTaught)
	}
	msg := fmt.Sprintf(
		"Earnings %s: %.2f gross over %d lessons (avg %.2f/lesson). Pending payout %.2f, arriving %s. Referral credit can be added from your referral link.",
		earnings.PeriodLabel, earnings.GrossAmount, earnings.LessonsTaught,
		perLesson, earnings.PendingPayout, earnings.NextPayoutDate)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        earnings,
		Suggestions: []string{"Show payout history", "Get my referral link", "Tax summary"},
	}, nil
}

// StudyCoach claims progress-flavored turns from the student persona and
// adds coaching framing on top of the raw numbers.
type StudyCoach struct {
	StudentPersona
}

// NewStudyCoach creates the study coach sub-persona.
func NewStudyCoach(svc platform.Service) *StudyCoach {
	sub := &StudyCoach{StudentPersona: *NewStudentPersona(svc)}
	sub.name = "Study Coach"
	sub.tone = "motivating, goal-oriented"
	return sub
}

func (p *StudyCoach) BaseRole() platform.Role { return platform.RoleStudent }

func (p *StudyCoach) Claim(category intent.Category, message string) bool {
	if category == intent.CategoryProgress {
		return true
	}
	lower := strings.ToLower(message)
	for _, kw := range []string{"struggling", "stuck", "motivat", "falling behind", "improve"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *StudyCoach) HandleIntent(ctx context.Context, it *intent.Intent, pc *Context) (*ActionResult, error) {
	summary, err := p.svc.Progress(ctx, pc.Query, "")
	if err != nil {
		return p.failure(err), nil
	}
	var coaching string
	switch summary.Trend {
	case "improving":
		coaching = "You're on a roll — a steady routine is clearly working."
	case "declining":
		coaching = "Let's turn it around: tackling the open homework first usually helps most."
	default:
		coaching = "Consistency is your friend — short, regular sessions beat cramming."
	}
	msg := fmt.Sprintf("%d lessons done, average score %.0f%%, %d homework tasks open. %s",
		summary.LessonsCompleted, summary.AverageScore, summary.HomeworkPending, coaching)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        summary,
		Suggestions: []string{"Plan my week", "Show my homework", "Book a lesson"},
	}, nil
}
