// Package facilitator holds the rule-based decision engine: the kickoff
// templates and the ordered heuristic chain that decides whether the
// facilitator should interject in a two-person conversation.
package facilitator

import (
	"context"

	"facilitator-agent/internal/domain"
)

// BuildKickoff returns an opening message for each participant, addressed to
// them by name and naming the other participant.
func BuildKickoff(pair domain.Pair) domain.Kickoff {
	return domain.Kickoff{Messages: [2]domain.OutboundMessage{
		{Message: kickoffMessage(pair.First, pair.Second), Target: pair.First.ID},
		{Message: kickoffMessage(pair.Second, pair.First), Target: pair.Second.ID},
	}}
}

// Decide runs the default rule chain.
func Decide(pair domain.Pair, turns []domain.Turn) domain.Verdict {
	return evaluate(DefaultRules(), pair, turns)
}

func evaluate(rules []Rule, pair domain.Pair, turns []domain.Turn) domain.Verdict {
	s := newState(pair, turns)
	for _, r := range rules {
		if v, ok := r.Evaluate(s); ok {
			return v
		}
	}
	return domain.NoIntervention(RuleDefault)
}

// Engine is the deterministic Decider. The zero value is not usable; build it
// with NewEngine.
type Engine struct {
	rules []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the decision chain.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// NewEngine returns an Engine running DefaultRules unless WithRules is given.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RuleNames lists the chain in evaluation order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

func (e *Engine) Kickoff(_ context.Context, in domain.DecisionInput) (domain.Kickoff, error) {
	return BuildKickoff(in.Pair), nil
}

func (e *Engine) Decide(_ context.Context, in domain.DecisionInput) (domain.Verdict, error) {
	return evaluate(e.rules, in.Pair, in.Turns), nil
}

func (e *Engine) Name() string { return "rules" }
