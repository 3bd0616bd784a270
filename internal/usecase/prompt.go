package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"facilitator-agent/internal/domain"
)

const previewLimit = 1200

type outboundMessage struct {
	Message string `json:"ai_message"`
	Target  string `json:"target"`
}

type initiateResponse struct {
	Messages []outboundMessage `json:"ai_messages"`
}

type facilitateResponse struct {
	ShouldIntervene *bool             `json:"should_intervene"`
	Urgency         domain.Urgency    `json:"urgency"`
	Messages        []outboundMessage `json:"ai_messages"`
}

func buildInitiateMessages(in domain.DecisionInput) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildInitiatePolicy()},
		{Role: "user", Content: buildUsersContext(in)},
	}
}

func buildFacilitateMessages(in domain.DecisionInput) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildFacilitatePolicy()},
		{Role: "user", Content: buildUsersContext(in) + "\n\nConversation (raw text, chronological):\n" + strings.TrimSpace(in.RawConversation)},
	}
}

func buildInitiatePolicy() string {
	return strings.Join([]string{
		"Role:",
		"You are a facilitator helping two users start a meaningful business discussion.",
		"",
		"Task:",
		"Write two short kickoff messages, one for each user.",
		"- Keep it friendly, professional and relevant to their profiles.",
		"- Each message is 1-2 sentences.",
		"- Ask ONE concrete question that moves the conversation forward.",
		"- target MUST be the profile id of the user the message is for.",
		"",
		"Output Contract:",
		"Return JSON only, in exactly this shape:",
		`{"ai_messages":[{"ai_message":"...","target":"PROFILE_ID_1"},{"ai_message":"...","target":"PROFILE_ID_2"}]}`,
	}, "\n")
}

func buildFacilitatePolicy() string {
	return strings.Join([]string{
		"Role:",
		"You facilitate a business discussion between two users.",
		"",
		"Task:",
		"Decide whether to intervene. Intervene only when it helps, for example when:",
		"- the conversation stalls or both say they have no topic or no idea",
		"- one user is confused or disengaged",
		"- the discussion lacks direction or structure",
		"- the conversation becomes unproductive or off-track",
		"",
		"Targeting Rules:",
		targetingRules(),
		"",
		"Output Contract:",
		facilitateContract(),
	}, "\n")
}

func targetingRules() string {
	return strings.Join([]string{
		"1) Find which user is asking for help or is most clearly stuck in the most recent messages.",
		"2) If only one user needs help, write ONE message targeted to that user.",
		"3) Write two messages, one per user, only when both users clearly need help.",
		"4) If neither user needs help, do not intervene.",
	}, "\n")
}

func facilitateContract() string {
	return strings.Join([]string{
		"Return JSON only with keys should_intervene (boolean), urgency (string) and ai_messages (array).",
		`urgency is "high" when messages must be shown now, "low" for an optional suggestion, "none" otherwise.`,
		`If should_intervene is false, urgency MUST be "none" and ai_messages MUST be [].`,
		`If should_intervene is true, urgency MUST be "high" or "low" and ai_messages MUST hold 1 or 2 items.`,
		"Each item has ai_message (1-2 sentences with ONE probing question) and target (a profile id from the users info).",
	}, "\n")
}

func buildUsersContext(in domain.DecisionInput) string {
	return fmt.Sprintf(
		"Users info (raw text):\n%s\n\nKnown profile ids: %s (%s), %s (%s)",
		strings.TrimSpace(in.RawUsersInfo),
		in.Pair.First.ID, in.Pair.First.DisplayName,
		in.Pair.Second.ID, in.Pair.Second.DisplayName,
	)
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeStrict(raw string, out any) error {
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("usecase: decode llm response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("usecase: decode llm response: multiple JSON values")
		}
		return fmt.Errorf("usecase: decode llm response trailing data: %w", err)
	}
	return nil
}

func parseKickoff(raw string, pair domain.Pair) (domain.Kickoff, error) {
	var out initiateResponse
	if err := decodeStrict(stripCodeFence(raw), &out); err != nil {
		return domain.Kickoff{}, err
	}
	if len(out.Messages) != 2 {
		return domain.Kickoff{}, errShape("ai_messages must hold exactly 2 items, got %d", len(out.Messages))
	}

	// Participants that share an id can only be told apart by position.
	sharedID := pair.First.ID == pair.Second.ID

	var k domain.Kickoff
	var seen [2]bool
	for i, m := range out.Messages {
		if err := checkMessage(m, pair); err != nil {
			return domain.Kickoff{}, err
		}
		idx := i
		if !sharedID {
			idx = 0
			if m.Target != pair.First.ID {
				idx = 1
			}
		}
		if seen[idx] {
			return domain.Kickoff{}, errShape("ai_messages target %q twice", m.Target)
		}
		seen[idx] = true
		k.Messages[idx] = domain.OutboundMessage{Message: strings.TrimSpace(m.Message), Target: m.Target}
	}
	return k, nil
}

func parseVerdict(raw, rule string, pair domain.Pair) (domain.Verdict, error) {
	var out facilitateResponse
	if err := decodeStrict(stripCodeFence(raw), &out); err != nil {
		return domain.Verdict{}, err
	}
	if out.ShouldIntervene == nil {
		return domain.Verdict{}, errShape("should_intervene missing")
	}
	if !out.Urgency.Valid() {
		return domain.Verdict{}, errShape("urgency %q not one of none, low, high", out.Urgency)
	}

	if !*out.ShouldIntervene {
		if out.Urgency != domain.UrgencyNone {
			return domain.Verdict{}, errShape("urgency must be none without intervention, got %q", out.Urgency)
		}
		if len(out.Messages) != 0 {
			return domain.Verdict{}, errShape("ai_messages must be empty without intervention")
		}
		return domain.NoIntervention(rule), nil
	}

	if out.Urgency == domain.UrgencyNone {
		return domain.Verdict{}, errShape("urgency must be low or high when intervening")
	}
	if len(out.Messages) < 1 || len(out.Messages) > 2 {
		return domain.Verdict{}, errShape("ai_messages must hold 1 or 2 items, got %d", len(out.Messages))
	}
	for _, m := range out.Messages {
		if err := checkMessage(m, pair); err != nil {
			return domain.Verdict{}, err
		}
	}

	first := out.Messages[0]
	target, _ := pair.ByID(first.Target)
	return domain.Intervene(rule, out.Urgency, target, strings.TrimSpace(first.Message)), nil
}

func checkMessage(m outboundMessage, pair domain.Pair) error {
	if strings.TrimSpace(m.Message) == "" {
		return errShape("ai_message must not be empty")
	}
	if !pair.Has(m.Target) {
		return errShape("target %q is not a participant", m.Target)
	}
	return nil
}

// shapeError marks a response that decoded but broke the output contract.
type shapeError struct {
	msg string
}

func (e *shapeError) Error() string { return "usecase: llm response shape: " + e.msg }

func errShape(format string, args ...any) error {
	return &shapeError{msg: fmt.Sprintf(format, args...)}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit])
}
