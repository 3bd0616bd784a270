package domain

type Urgency string

const (
	UrgencyNone Urgency = "none"
	UrgencyLow  Urgency = "low"
	UrgencyHigh Urgency = "high"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNone, UrgencyLow, UrgencyHigh:
		return true
	}
	return false
}

// Verdict is the outcome of an intervention decision.
//
// Urgency is UrgencyNone exactly when ShouldIntervene is false, and Target and
// Message are set exactly when ShouldIntervene is true. Use NoIntervention and
// Intervene to build values that hold these invariants.
type Verdict struct {
	ShouldIntervene bool
	Urgency         Urgency
	Target          *Participant
	Message         string
	// Rule names what produced the verdict, for logs and the audit trail.
	Rule string
}

func NoIntervention(rule string) Verdict {
	return Verdict{Urgency: UrgencyNone, Rule: rule}
}

func Intervene(rule string, urgency Urgency, target Participant, message string) Verdict {
	return Verdict{
		ShouldIntervene: true,
		Urgency:         urgency,
		Target:          &target,
		Message:         message,
		Rule:            rule,
	}
}

// OutboundMessage is a facilitator message addressed to one participant id.
type OutboundMessage struct {
	Message string `json:"ai_message"`
	Target  string `json:"target"`
}

// Kickoff holds the opening message for each participant, in participant order.
type Kickoff struct {
	Messages [2]OutboundMessage
}
