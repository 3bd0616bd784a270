package facilitator

import (
	"strings"

	"facilitator-agent/internal/domain"
)

const (
	RuleStuckSignal    = "stuck_signal"
	RuleOpenQuestion   = "open_question"
	RuleImbalance      = "participation_imbalance"
	RuleLowContent     = "low_content"
	RuleDefault        = "default"
	recentWindow       = 6
	imbalanceThreshold = 3
	lowContentTokens   = 2
	lowContentTurns    = 4
)

// StuckSignals are the case-folded phrases that mark a conversation as stalled
// or strained.
var StuckSignals = []string{
	"no topic",
	"don't have any topic",
	"dont have any topic",
	"not sure what to discuss",
	"no idea",
	"stuck",
	"confused",
	"frustrated",
	"angry",
	"argument",
	"disagree",
	"waste of time",
}

// Rule is one step of the decision chain. Evaluate returns ok=true when the
// rule decides the outcome, which may itself be "no intervention".
type Rule struct {
	Name     string
	Evaluate func(s *state) (domain.Verdict, bool)
}

// DefaultRules returns the decision chain in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleStuckSignal, Evaluate: stuckSignal},
		{Name: RuleOpenQuestion, Evaluate: openQuestion},
		{Name: RuleImbalance, Evaluate: participationImbalance},
		{Name: RuleLowContent, Evaluate: lowContent},
	}
}

// state is what the rules see for one decision. Derived views are computed
// once up front.
type state struct {
	pair   domain.Pair
	human  []domain.Turn
	recent []domain.Turn
	folded string
}

func newState(pair domain.Pair, turns []domain.Turn) *state {
	human := humanTurns(turns)
	return &state{
		pair:   pair,
		human:  human,
		recent: lastN(human, recentWindow),
		folded: foldTranscript(turns),
	}
}

func foldTranscript(turns []domain.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Speaker != "" {
			b.WriteString(t.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	folded := strings.ToLower(b.String())
	return strings.NewReplacer("’", "'", "‘", "'").Replace(folded)
}

func stuckSignal(s *state) (domain.Verdict, bool) {
	for _, phrase := range StuckSignals {
		if !strings.Contains(s.folded, phrase) {
			continue
		}
		target := quieterParticipant(s.pair, s.human)
		return domain.Intervene(RuleStuckSignal, domain.UrgencyHigh, target, resetPrompt(s.pair.Other(target))), true
	}
	return domain.Verdict{}, false
}

func openQuestion(s *state) (domain.Verdict, bool) {
	if len(s.human) == 0 {
		return domain.Verdict{}, false
	}
	last := s.human[len(s.human)-1]
	if strings.HasSuffix(strings.TrimSpace(last.Text), "?") {
		return domain.NoIntervention(RuleOpenQuestion), true
	}
	return domain.Verdict{}, false
}

func participationImbalance(s *state) (domain.Verdict, bool) {
	c1, c2 := countTurns(s.recent, s.pair)
	diff := c1 - c2
	if diff < 0 {
		diff = -diff
	}
	if diff < imbalanceThreshold {
		return domain.Verdict{}, false
	}
	target := s.pair.Second
	if c1 < c2 {
		target = s.pair.First
	}
	return domain.Intervene(RuleImbalance, domain.UrgencyLow, target, perspectiveNudge(target)), true
}

func lowContent(s *state) (domain.Verdict, bool) {
	short := 0
	for _, t := range s.recent {
		if len(strings.Fields(t.Text)) <= lowContentTokens {
			short++
		}
	}
	if short < lowContentTurns {
		return domain.Verdict{}, false
	}
	target := quieterParticipant(s.pair, s.human)
	return domain.Intervene(RuleLowContent, domain.UrgencyLow, target, structureNudge()), true
}
