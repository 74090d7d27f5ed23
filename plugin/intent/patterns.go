package intent

import (
	"regexp"
	"strings"
)

// Pattern is one entry of the rule table. A pattern matches when any of its
// keywords is a substring of the lowercased input.
//
// The table is ordered: more specific patterns must come before generic ones
// ("referral link" before bare "help"), because the first match wins. The
// iteration order is a correctness invariant enforced by ValidatePatterns.
type Pattern struct {
	Keywords          []string
	Category          Category
	Action            string
	Confidence        float32
	NeedsConfirmation bool
}

// Matches reports whether the pattern matches the lowercased input and
// returns the keyword that triggered it.
func (p *Pattern) Matches(lower string) (string, bool) {
	for _, kw := range p.Keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// DefaultPatterns returns the curated rule table for the tutoring domain.
// Order matters; see Pattern.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Specific, multi-word phrasings first.
		{Keywords: []string{"referral link", "refer a friend", "invite code"}, Category: CategoryBilling, Action: "referral", Confidence: 0.95},
		{Keywords: []string{"cancel my lesson", "cancel my booking", "cancel the lesson"}, Category: CategoryScheduling, Action: "cancel_booking", Confidence: 0.9, NeedsConfirmation: true},
		{Keywords: []string{"reschedule", "move my lesson", "change the time"}, Category: CategoryScheduling, Action: "reschedule", Confidence: 0.9, NeedsConfirmation: true},
		{Keywords: []string{"booking status", "status of booking", "is my booking"}, Category: CategoryScheduling, Action: "booking_status", Confidence: 0.9},
		{Keywords: []string{"next lesson", "upcoming lesson", "my schedule", "my lessons"}, Category: CategoryScheduling, Action: "upcoming", Confidence: 0.85},
		{Keywords: []string{"book a lesson", "book a tutor", "schedule a lesson"}, Category: CategoryScheduling, Action: "book", Confidence: 0.85, NeedsConfirmation: true},
		{Keywords: []string{"how much have i earned", "my earnings", "payout", "payslip"}, Category: CategoryBilling, Action: "earnings", Confidence: 0.9},
		{Keywords: []string{"refund"}, Category: CategoryBilling, Action: "refund", Confidence: 0.85, NeedsConfirmation: true},
		{Keywords: []string{"invoice", "payment", "charge", "billing"}, Category: CategoryBilling, Action: "payments", Confidence: 0.8},
		{Keywords: []string{"homework", "assignment", "worksheet"}, Category: CategoryProgress, Action: "homework", Confidence: 0.85},
		{Keywords: []string{"progress", "how am i doing", "my grades", "report card"}, Category: CategoryProgress, Action: "summary", Confidence: 0.85},
		{Keywords: []string{"organisation stats", "org stats", "school report", "member activity"}, Category: CategoryOrganisation, Action: "stats", Confidence: 0.9},
		{Keywords: []string{"add a member", "remove a member", "manage members", "manage my organisation"}, Category: CategoryOrganisation, Action: "manage", Confidence: 0.9, NeedsConfirmation: true},
		{Keywords: []string{"report a bug", "something is broken", "not working", "open a ticket"}, Category: CategorySupport, Action: "ticket", Confidence: 0.85},
		{Keywords: []string{"how does the platform", "what is lessonloop", "how do i use"}, Category: CategoryPlatform, Action: "info", Confidence: 0.8},
		// Generic catch-alls last.
		{Keywords: []string{"help", "support", "assist"}, Category: CategorySupport, Action: "general", Confidence: 0.7},
		{Keywords: []string{"hello", "hi ", "hey", "good morning", "good afternoon", "good evening"}, Category: CategoryGeneral, Action: "greeting", Confidence: 0.9},
		{Keywords: []string{"thank", "thx", "cheers"}, Category: CategoryGeneral, Action: "thanks", Confidence: 0.9},
		{Keywords: []string{"bye", "goodbye", "see you"}, Category: CategoryGeneral, Action: "farewell", Confidence: 0.9},
	}
}

var (
	bookingIDPattern = regexp.MustCompile(`\b(B\d{2,})\b`)
	datePattern      = regexp.MustCompile(`\b(today|tomorrow|yesterday|monday|tuesday|wednesday|thursday|friday|saturday|sunday|next week|this week)\b`)
	subjectPattern   = regexp.MustCompile(`\b(maths?|math|english|physics|chemistry|biology|history|geography|french|spanish|german|coding|programming)\b`)
)

// ExtractEntities pulls well-known entity kinds out of the raw message.
func ExtractEntities(text string) map[string]string {
	entities := map[string]string{}
	if m := bookingIDPattern.FindString(text); m != "" {
		entities["bookingId"] = m
	}
	lower := strings.ToLower(text)
	if m := datePattern.FindString(lower); m != "" {
		entities["date"] = m
	}
	if m := subjectPattern.FindString(lower); m != "" {
		entities["subject"] = m
	}
	if len(entities) == 0 {
		return nil
	}
	return entities
}
