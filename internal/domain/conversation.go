package domain

// Participant is one side of a facilitated conversation. ID is the identity;
// DisplayName is what the transcript uses as the speaker label.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Pair is the two-participant conversation the decision engine operates on.
type Pair struct {
	First  Participant
	Second Participant
}

// Other returns the participant that is not p. Anything that is not First
// is treated as Second.
func (pr Pair) Other(p Participant) Participant {
	if p == pr.First {
		return pr.Second
	}
	return pr.First
}

// Has reports whether id belongs to one of the two participants.
func (pr Pair) Has(id string) bool {
	return id != "" && (id == pr.First.ID || id == pr.Second.ID)
}

// ByID returns the participant with the given id.
func (pr Pair) ByID(id string) (Participant, bool) {
	switch id {
	case "":
		return Participant{}, false
	case pr.First.ID:
		return pr.First, true
	case pr.Second.ID:
		return pr.Second, true
	}
	return Participant{}, false
}

// Turn is a single transcript entry. Speaker is empty for text that appeared
// before any speaker label.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DecisionInput is everything a decider may look at for one request. The raw
// strings are kept for deciders that work on the original text.
type DecisionInput struct {
	Pair            Pair
	Turns           []Turn
	RawUsersInfo    string
	RawConversation string
}
