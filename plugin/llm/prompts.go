package llm

import (
	"fmt"
	"strings"

	"github.com/lessonloop/assistant/plugin/intent"
	"github.com/lessonloop/assistant/plugin/persona"
)

// platformKnowledge is the shared knowledge block every remote backend
// embeds in its system prompt.
const platformKnowledge = `LessonLoop is an online tutoring platform. Students book one-to-one lessons
with tutors, meet in a built-in video classroom, and receive homework and
progress reports. Parents manage billing for their children. Organisations
(schools) manage groups of students and tutors. Lessons are charged after
they take place; tutors are paid out weekly.`

// responseGuidelines keeps remote backends inside the product's voice.
const responseGuidelines = `Guidelines:
- Answer in at most three short paragraphs.
- Use a tool when the user asks about their own bookings, lessons, progress,
  earnings, referrals, organisation stats, or wants to report a problem.
- Never invent bookings, amounts or dates; fetch them with a tool or say you
  do not know.
- Finish with one concrete next step the user can take.`

// BuildSystemPrompt assembles the role-specific system prompt: persona
// description, platform knowledge, optional retrieved context, and response
// guidelines.
func BuildSystemPrompt(p persona.Persona, retrievedContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, the assistant for a LessonLoop %s. Your tone is %s.\n\n",
		p.Name(), p.Role(), p.Tone())
	sb.WriteString(platformKnowledge)
	sb.WriteString("\n\n")
	if retrievedContext != "" {
		sb.WriteString("Relevant platform documentation:\n")
		sb.WriteString(retrievedContext)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "You only help with these topics: %s.\n\n", joinCategories(p.Categories()))
	sb.WriteString(responseGuidelines)
	return sb.String()
}

// classifySystemPrompt instructs a backend to emit a strict JSON intent.
var classifySystemPrompt = fmt.Sprintf(`You classify messages sent to a tutoring-platform assistant.
Respond with a single JSON object and nothing else:
{"category": one of [%s], "action": short verb string, "confidence": 0.0-1.0,
"entities": object of extracted values (bookingId, date, subject, orgId),
"needs_confirmation": true when the user asks for a side-effecting change
(cancel, reschedule, refund, membership change)}`, joinCategories(intent.Categories()))

// classifyUserPrompt wraps the message with the persona's scope to bias the
// category choice.
func classifyUserPrompt(text string, p persona.Persona) string {
	return fmt.Sprintf("User role: %s. Handled topics: %s.\nMessage: %q",
		p.Role(), joinCategories(p.Categories()), text)
}

func joinCategories(categories []intent.Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
