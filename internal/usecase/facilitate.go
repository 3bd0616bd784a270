package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"facilitator-agent/internal/domain"
	"facilitator-agent/internal/extractor"
)

const (
	defaultMaxInputBytes = 1 << 20

	operationInitiate   = "initiate"
	operationFacilitate = "facilitate"
)

// Decider produces kickoff messages and intervention verdicts.
type Decider interface {
	Kickoff(ctx context.Context, in domain.DecisionInput) (domain.Kickoff, error)
	Decide(ctx context.Context, in domain.DecisionInput) (domain.Verdict, error)
	Name() string
}

type DecisionRecorder interface {
	RecordDecision(ctx context.Context, rec domain.DecisionRecord) error
}

type InterventionPublisher interface {
	PublishIntervention(ctx context.Context, ev domain.InterventionEvent) error
}

// FacilitatorService runs extraction and the configured Decider for the two
// API operations.
type FacilitatorService struct {
	decider       Decider
	recorder      DecisionRecorder
	publisher     InterventionPublisher
	logger        *slog.Logger
	maxInputBytes int
	now           func() time.Time
}

// ServiceOption configures a FacilitatorService.
type ServiceOption func(*FacilitatorService)

// WithRecorder enables the decision audit trail.
func WithRecorder(r DecisionRecorder) ServiceOption {
	return func(s *FacilitatorService) {
		s.recorder = r
	}
}

// WithPublisher enables intervention events.
func WithPublisher(p InterventionPublisher) ServiceOption {
	return func(s *FacilitatorService) {
		s.publisher = p
	}
}

func WithMaxInputBytes(n int) ServiceOption {
	return func(s *FacilitatorService) {
		if n > 0 {
			s.maxInputBytes = n
		}
	}
}

type InitiateInput struct {
	UsersInfo string
	RequestID string
}

type InitiateOutput struct {
	Kickoff   domain.Kickoff
	RequestID string
}

type FacilitateInput struct {
	UsersInfo    string
	Conversation string
	RequestID    string
}

type FacilitateOutput struct {
	Verdict   domain.Verdict
	RequestID string
}

// NewFacilitatorService creates a FacilitatorService. Recorder and publisher
// are optional and added with WithRecorder and WithPublisher.
func NewFacilitatorService(d Decider, logger *slog.Logger, opts ...ServiceOption) (*FacilitatorService, error) {
	if d == nil {
		return nil, errors.New("usecase: decider must not be nil")
	}
	if logger == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	s := &FacilitatorService{
		decider:       d,
		logger:        logger,
		maxInputBytes: defaultMaxInputBytes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FacilitatorService) Initiate(ctx context.Context, in InitiateInput) (InitiateOutput, error) {
	if err := s.validate(field{"users_info", in.UsersInfo}); err != nil {
		return InitiateOutput{}, err
	}
	reqID := requestID(in.RequestID)

	input := domain.DecisionInput{
		Pair:         extractor.ExtractPair(in.UsersInfo),
		RawUsersInfo: in.UsersInfo,
	}
	kickoff, err := s.decider.Kickoff(ctx, input)
	if err != nil {
		s.logger.WarnContext(ctx, "kickoff failed", "request_id", reqID, "engine", s.decider.Name(), "error", err)
		return InitiateOutput{}, asError(err, "kickoff_error")
	}

	s.logger.InfoContext(ctx, "kickoff built",
		"request_id", reqID,
		"engine", s.decider.Name(),
		"targets", []string{kickoff.Messages[0].Target, kickoff.Messages[1].Target},
	)
	s.record(ctx, domain.DecisionRecord{
		DecisionID:     newUUID(),
		RequestID:      reqID,
		Operation:      operationInitiate,
		Engine:         s.decider.Name(),
		Urgency:        domain.UrgencyNone,
		ParticipantIDs: [2]string{input.Pair.First.ID, input.Pair.Second.ID},
	})

	return InitiateOutput{Kickoff: kickoff, RequestID: reqID}, nil
}

func (s *FacilitatorService) Facilitate(ctx context.Context, in FacilitateInput) (FacilitateOutput, error) {
	if err := s.validate(
		field{"users_info", in.UsersInfo},
		field{"conversation", in.Conversation},
	); err != nil {
		return FacilitateOutput{}, err
	}
	reqID := requestID(in.RequestID)

	input := domain.DecisionInput{
		Pair:            extractor.ExtractPair(in.UsersInfo),
		Turns:           extractor.ParseTranscript(in.Conversation),
		RawUsersInfo:    in.UsersInfo,
		RawConversation: in.Conversation,
	}
	verdict, err := s.decider.Decide(ctx, input)
	if err != nil {
		s.logger.WarnContext(ctx, "decision failed", "request_id", reqID, "engine", s.decider.Name(), "error", err)
		return FacilitateOutput{}, asError(err, "decision_error")
	}

	targetID := ""
	if verdict.Target != nil {
		targetID = verdict.Target.ID
	}
	s.logger.InfoContext(ctx, "decision made",
		"request_id", reqID,
		"engine", s.decider.Name(),
		"rule", verdict.Rule,
		"should_intervene", verdict.ShouldIntervene,
		"urgency", string(verdict.Urgency),
		"target", targetID,
		"turns", len(input.Turns),
	)
	decisionID := newUUID()
	s.record(ctx, domain.DecisionRecord{
		DecisionID:      decisionID,
		RequestID:       reqID,
		Operation:       operationFacilitate,
		Engine:          s.decider.Name(),
		Rule:            verdict.Rule,
		ShouldIntervene: verdict.ShouldIntervene,
		Urgency:         verdict.Urgency,
		TargetID:        targetID,
		ParticipantIDs:  [2]string{input.Pair.First.ID, input.Pair.Second.ID},
		TurnCount:       len(input.Turns),
	})
	if verdict.ShouldIntervene {
		s.publish(ctx, domain.InterventionEvent{
			DecisionID: decisionID,
			RequestID:  reqID,
			Engine:     s.decider.Name(),
			Rule:       verdict.Rule,
			Urgency:    verdict.Urgency,
			TargetID:   verdict.Target.ID,
			TargetName: verdict.Target.DisplayName,
			Message:    verdict.Message,
			OccurredAt: s.now().UTC(),
		})
	}

	return FacilitateOutput{Verdict: verdict, RequestID: reqID}, nil
}

type field struct {
	name  string
	value string
}

func (s *FacilitatorService) validate(fields ...field) error {
	var verr *Error
	for _, f := range fields {
		var reason, msg string
		switch {
		case strings.TrimSpace(f.value) == "":
			reason, msg = "missing_"+f.name, f.name+" is required (string)"
		case len(f.value) > s.maxInputBytes:
			reason, msg = "input_too_long", fmt.Sprintf("%s must be at most %d bytes", f.name, s.maxInputBytes)
		default:
			continue
		}
		if verr == nil {
			verr = invalidField(reason, f.name, msg)
			continue
		}
		verr.Fields[f.name] = msg
	}
	if verr == nil {
		return nil
	}
	return verr
}

func (s *FacilitatorService) record(ctx context.Context, rec domain.DecisionRecord) {
	if s.recorder == nil {
		return
	}
	rec.CreatedAt = s.now()
	if err := s.recorder.RecordDecision(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "decision audit write failed", "decision_id", rec.DecisionID, "request_id", rec.RequestID, "error", err)
	}
}

func (s *FacilitatorService) publish(ctx context.Context, ev domain.InterventionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishIntervention(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "intervention publish failed", "request_id", ev.RequestID, "error", err)
	}
}

func asError(err error, reason string) error {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstream, "request_cancelled", err)
	}
	return newError(ErrorInternal, reason, err)
}

func requestID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return newUUID()
	}
	return id
}

var newUUID = func() string {
	return uuid.NewString()
}
