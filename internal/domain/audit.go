package domain

import "time"

// DecisionRecord is the audit entry written after each decision. It is never
// read back by the decision path.
type DecisionRecord struct {
	// DecisionID is unique per decision. RequestID is the caller's
	// correlation id and may repeat across decisions.
	DecisionID      string
	RequestID       string
	Operation       string
	Engine          string
	Rule            string
	ShouldIntervene bool
	Urgency         Urgency
	TargetID        string
	ParticipantIDs  [2]string
	TurnCount       int
	CreatedAt       time.Time
}

// InterventionEvent is published when a decision intervenes.
type InterventionEvent struct {
	DecisionID string    `json:"decision_id"`
	RequestID  string    `json:"request_id"`
	Engine     string    `json:"engine"`
	Rule       string    `json:"rule"`
	Urgency    Urgency   `json:"urgency"`
	TargetID   string    `json:"target"`
	TargetName string    `json:"target_name"`
	Message    string    `json:"ai_message"`
	OccurredAt time.Time `json:"occurred_at"`
}
