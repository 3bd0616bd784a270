package facilitator

import (
	"fmt"
	"strings"

	"facilitator-agent/internal/domain"
)

func kickoffMessage(toward, other domain.Participant) string {
	return strings.Join([]string{
		fmt.Sprintf("Hi %s! I'm your AI Facilitator for this discussion with %s.", nameOr(toward, "there"), nameOr(other, "the other participant")),
		"To get started:",
		"1) What outcome do you want from this chat (e.g., decision, alignment, next steps)?",
		"2) What's one key constraint (time, budget, scope) we should keep in mind?",
		"Reply with short bullets and I'll help keep the conversation focused.",
	}, "\n")
}

func resetPrompt(other domain.Participant) string {
	return strings.Join([]string{
		"It sounds like the conversation may be stuck. Let's reset quickly.",
		"Could you share:",
		"1) Your main goal for this discussion (1 sentence)",
		fmt.Sprintf("2) One thing you need from %s today", nameOr(other, "the other person")),
		"3) A proposal or option you want to explore",
		"Then I'll suggest a clear next step and questions for both of you.",
	}, "\n")
}

func perspectiveNudge(target domain.Participant) string {
	return strings.Join([]string{
		fmt.Sprintf("I'd love to hear your perspective, %s.", nameOr(target, "there")),
		"What matters most to you here, and what would a good outcome look like?",
	}, "\n")
}

func structureNudge() string {
	return strings.Join([]string{
		"Quick nudge: could you add a bit more context?",
		"A helpful format: Goal → Constraints → Options → Next step.",
		"What's the most important decision you want to make today?",
	}, "\n")
}

func nameOr(p domain.Participant, fallback string) string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return fallback
}
