package facilitator

import (
	"regexp"
	"strings"

	"facilitator-agent/internal/domain"
)

// facilitatorLabel matches "AI", "AI(to Alice)", "ai (to both)" and labels
// such as "Facilitator AI to Tom". The word boundary keeps names that merely
// contain the letters, like "Kai Tomlinson", on the human side.
var facilitatorLabel = regexp.MustCompile(`(?i)^ai$|^ai\s*\(|\bai to\b`)

// IsFacilitator reports whether a speaker label belongs to the automated
// facilitator rather than a participant.
func IsFacilitator(speaker string) bool {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return false
	}
	return facilitatorLabel.MatchString(speaker)
}

func humanTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns))
	for _, t := range turns {
		if !IsFacilitator(t.Speaker) {
			out = append(out, t)
		}
	}
	return out
}

func lastN(turns []domain.Turn, n int) []domain.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func spokenBy(t domain.Turn, p domain.Participant) bool {
	return t.Speaker != "" && strings.EqualFold(t.Speaker, p.DisplayName)
}

// countTurns returns how many turns each participant of the pair spoke.
func countTurns(turns []domain.Turn, pair domain.Pair) (first, second int) {
	for _, t := range turns {
		switch {
		case spokenBy(t, pair.First):
			first++
		case spokenBy(t, pair.Second):
			second++
		}
	}
	return first, second
}

// quieterParticipant picks who to address when a rule needs a target but has
// no natural one: the participant with strictly fewer human turns, or on a tie
// the one who did not speak most recently. With no labelled human turn at all
// it falls back to the first participant.
func quieterParticipant(pair domain.Pair, human []domain.Turn) domain.Participant {
	c1, c2 := countTurns(human, pair)
	switch {
	case c1 < c2:
		return pair.First
	case c2 < c1:
		return pair.Second
	}

	for i := len(human) - 1; i >= 0; i-- {
		if human[i].Speaker == "" {
			continue
		}
		if spokenBy(human[i], pair.First) {
			return pair.Second
		}
		return pair.First
	}
	return pair.First
}
