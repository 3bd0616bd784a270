package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"facilitator-agent/internal/domain"
)

const ruleLLM = "llm"

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type responseBodier interface {
	ResponseBody() string
}

// LLMDecider asks a chat model for kickoff messages and intervention
// verdicts. It fails closed: any upstream or contract problem is returned as
// an *Error and never replaced by a rules decision.
type LLMDecider struct {
	llm   LLMClient
	model string
}

func NewLLMDecider(llm LLMClient, model string) (*LLMDecider, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: llm model must not be empty")
	}
	return &LLMDecider{llm: llm, model: model}, nil
}

func (d *LLMDecider) Name() string { return ruleLLM }

func (d *LLMDecider) Kickoff(ctx context.Context, in domain.DecisionInput) (domain.Kickoff, error) {
	raw, err := d.llm.Chat(ctx, d.model, buildInitiateMessages(in))
	if err != nil {
		return domain.Kickoff{}, upstreamError(err)
	}
	k, err := parseKickoff(raw, in.Pair)
	if err != nil {
		return domain.Kickoff{}, responseError(raw, err)
	}
	return k, nil
}

func (d *LLMDecider) Decide(ctx context.Context, in domain.DecisionInput) (domain.Verdict, error) {
	raw, err := d.llm.Chat(ctx, d.model, buildFacilitateMessages(in))
	if err != nil {
		return domain.Verdict{}, upstreamError(err)
	}
	v, err := parseVerdict(raw, ruleLLM, in.Pair)
	if err != nil {
		return domain.Verdict{}, responseError(raw, err)
	}
	return v, nil
}

func upstreamError(err error) *Error {
	status, ok := upstreamStatusCode(err)
	if ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, "llm_rate_limited", err).withDetail("status", status)
	}
	e := newError(ErrorUpstream, "llm_error", err)
	if ok {
		e.withDetail("status", status)
	}
	var bodier responseBodier
	if errors.As(err, &bodier) && bodier.ResponseBody() != "" {
		e.withDetail("preview", preview(bodier.ResponseBody()))
	}
	return e
}

func responseError(raw string, err error) *Error {
	var shape *shapeError
	if errors.As(err, &shape) {
		return newError(ErrorShapeMismatch, "llm_shape_mismatch", err).
			withDetail("preview", preview(stripCodeFence(raw)))
	}
	return newError(ErrorUpstream, "llm_malformed_response", err).
		withDetail("preview", preview(stripCodeFence(raw))).
		withDetail("raw_preview", preview(raw))
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
