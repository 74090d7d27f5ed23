package persona

import (
	"context"
	"fmt"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/platform"
)

// generalReply answers greetings, thanks and farewells with the persona's
// own register.
func generalReply(p Persona, it *intent.Intent) *ActionResult {
	switch it.Action {
	case "greeting":
		return &ActionResult{Success: true, Message: p.Greeting(), Suggestions: []string{"What can you do?"}}
	case "thanks":
		return &ActionResult{Success: true, Message: "You're very welcome! Anything else I can help with?"}
	case "farewell":
		return &ActionResult{Success: true, Message: "Bye for now! Come back any time."}
	default:
		return &ActionResult{
			Success:     true,
			Message:     "I'm here to help with anything on the platform. What would you like to do?",
			Suggestions: []string{"What can you do?"},
		}
	}
}

// supportReply steers problem reports towards a ticket.
func supportReply(it *intent.Intent) *ActionResult {
	if it.Action == "ticket" {
		return &ActionResult{
			Success:     true,
			Message:     "Sorry something's not working. I can open a support ticket for you — just describe what happened.",
			Suggestions: []string{"Open a ticket", "Try again later"},
		}
	}
	return &ActionResult{
		Success:     true,
		Message:     "Happy to help. You can ask me about lessons, bookings, progress, or report a problem.",
		Suggestions: []string{"Report a problem", "What can you do?"},
	}
}

// platformReply answers how-the-platform-works questions.
func platformReply() *ActionResult {
	return &ActionResult{
		Success: true,
		Message: "LessonLoop connects students with tutors for one-to-one online lessons. You book lessons, meet in the built-in classroom, and track progress after every session.",
		Suggestions: []string{
			"How do I book a lesson?",
			"What subjects are available?",
		},
	}
}

// referralReply composes the caller's referral state.
func referralReply(ctx context.Context, svc platform.Service, pc *Context) (*ActionResult, error) {
	info, err := svc.Referral(ctx, pc.Query)
	if err != nil {
		return &ActionResult{
			Success:     false,
			Message:     "I couldn't fetch your referral details just now. Please try again in a moment.",
			Err:         err.Error(),
			Suggestions: []string{"Try again", "Contact support"},
		}, nil
	}
	msg := fmt.Sprintf("Here's your referral link: %s — you've referred %d people and earned %.2f in credit so far.",
		info.Link, info.Referrals, info.CreditEarned)
	return &ActionResult{
		Success:     true,
		Message:     msg,
		Data:        info,
		Suggestions: []string{"How does referral credit work?"},
	}, nil
}
