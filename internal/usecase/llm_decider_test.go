package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"facilitator-agent/internal/domain"
	"facilitator-agent/internal/extractor"
	"facilitator-agent/internal/integrations/openai"
)

type mockLLM struct {
	answer    string
	err       error
	model     string
	captured  []domain.ChatMessage
	callCount int
}

func (m *mockLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage) (string, error) {
	m.callCount++
	m.model = model
	m.captured = msgs
	return m.answer, m.err
}

func decisionInput() domain.DecisionInput {
	conv := "Alice: hi\nBob: no idea what to talk about"
	return domain.DecisionInput{
		Pair:            extractor.ExtractPair(usersInfo),
		Turns:           extractor.ParseTranscript(conv),
		RawUsersInfo:    usersInfo,
		RawConversation: conv,
	}
}

func newTestDecider(t *testing.T, llm *mockLLM) *LLMDecider {
	t.Helper()
	d, err := NewLLMDecider(llm, "gpt-4o-mini")
	require.NoError(t, err)
	return d
}

func TestNewLLMDecider_Validation(t *testing.T) {
	_, err := NewLLMDecider(nil, "gpt-4o-mini")
	require.ErrorContains(t, err, "llm client must not be nil")

	_, err = NewLLMDecider(&mockLLM{}, "  ")
	require.ErrorContains(t, err, "llm model must not be empty")
}

func TestLLMDecider_Kickoff(t *testing.T) {
	llm := &mockLLM{answer: `{"ai_messages":[{"ai_message":"Hi Bob, what brings you here?","target":"P2"},{"ai_message":"Hi Alice, what do you hope to get out of this?","target":"P1"}]}`}
	d := newTestDecider(t, llm)

	k, err := d.Kickoff(context.Background(), decisionInput())
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", llm.model)
	require.Equal(t, "P1", k.Messages[0].Target)
	require.Equal(t, "Hi Alice, what do you hope to get out of this?", k.Messages[0].Message)
	require.Equal(t, "P2", k.Messages[1].Target)

	require.Len(t, llm.captured, 2)
	require.Equal(t, "system", llm.captured[0].Role)
	require.Contains(t, llm.captured[0].Content, "kickoff")
	require.Contains(t, llm.captured[1].Content, "Known profile ids: P1 (Alice), P2 (Bob)")
}

func TestLLMDecider_KickoffFencedJSON(t *testing.T) {
	llm := &mockLLM{answer: "```json\n{\"ai_messages\":[{\"ai_message\":\"a?\",\"target\":\"P1\"},{\"ai_message\":\"b?\",\"target\":\"P2\"}]}\n```"}
	d := newTestDecider(t, llm)

	k, err := d.Kickoff(context.Background(), decisionInput())
	require.NoError(t, err)
	require.Equal(t, "a?", k.Messages[0].Message)
}

func TestLLMDecider_KickoffSharedParticipantIDUsesPosition(t *testing.T) {
	in := decisionInput()
	in.Pair = extractor.ExtractPair("Profile ID: P1\nUser Name: Alice\nProfile ID: P1\nUser Name: Bob")
	llm := &mockLLM{answer: `{"ai_messages":[{"ai_message":"Hi Alice?","target":"P1"},{"ai_message":"Hi Bob?","target":"P1"}]}`}
	d := newTestDecider(t, llm)

	k, err := d.Kickoff(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "Hi Alice?", k.Messages[0].Message)
	require.Equal(t, "Hi Bob?", k.Messages[1].Message)
	require.Equal(t, "P1", k.Messages[0].Target)
	require.Equal(t, "P1", k.Messages[1].Target)
}

func TestLLMDecider_KickoffShapeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{name: "one message", answer: `{"ai_messages":[{"ai_message":"a?","target":"P1"}]}`},
		{name: "unknown target", answer: `{"ai_messages":[{"ai_message":"a?","target":"P1"},{"ai_message":"b?","target":"P9"}]}`},
		{name: "same target twice", answer: `{"ai_messages":[{"ai_message":"a?","target":"P1"},{"ai_message":"b?","target":"P1"}]}`},
		{name: "empty text", answer: `{"ai_messages":[{"ai_message":" ","target":"P1"},{"ai_message":"b?","target":"P2"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecider(t, &mockLLM{answer: tt.answer})
			_, err := d.Kickoff(context.Background(), decisionInput())
			uerr := requireUsecaseError(t, err, ErrorShapeMismatch, "llm_shape_mismatch")
			require.NotEmpty(t, uerr.Detail["preview"])
		})
	}
}

func TestLLMDecider_Decide(t *testing.T) {
	llm := &mockLLM{answer: `{"should_intervene":true,"urgency":"high","ai_messages":[{"ai_message":"Bob, what outcome would help you most?","target":"P2"}]}`}
	d := newTestDecider(t, llm)

	v, err := d.Decide(context.Background(), decisionInput())
	require.NoError(t, err)
	require.True(t, v.ShouldIntervene)
	require.Equal(t, domain.UrgencyHigh, v.Urgency)
	require.Equal(t, "P2", v.Target.ID)
	require.Equal(t, "Bob", v.Target.DisplayName)
	require.Equal(t, "llm", v.Rule)

	require.Contains(t, llm.captured[1].Content, "Bob: no idea what to talk about")
	require.Contains(t, llm.captured[0].Content, "Targeting Rules:")
}

func TestLLMDecider_DecideNoIntervention(t *testing.T) {
	d := newTestDecider(t, &mockLLM{answer: `{"should_intervene":false,"urgency":"none","ai_messages":[]}`})

	v, err := d.Decide(context.Background(), decisionInput())
	require.NoError(t, err)
	require.False(t, v.ShouldIntervene)
	require.Equal(t, domain.UrgencyNone, v.Urgency)
	require.Nil(t, v.Target)
	require.Empty(t, v.Message)
}

func TestLLMDecider_DecideUsesFirstOfTwoMessages(t *testing.T) {
	d := newTestDecider(t, &mockLLM{answer: `{"should_intervene":true,"urgency":"low","ai_messages":[{"ai_message":"first?","target":"P1"},{"ai_message":"second?","target":"P2"}]}`})

	v, err := d.Decide(context.Background(), decisionInput())
	require.NoError(t, err)
	require.Equal(t, "P1", v.Target.ID)
	require.Equal(t, "first?", v.Message)
}

func TestLLMDecider_DecideShapeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{name: "missing should_intervene", answer: `{"urgency":"none","ai_messages":[]}`},
		{name: "bad urgency", answer: `{"should_intervene":false,"urgency":"medium","ai_messages":[]}`},
		{name: "false with urgency", answer: `{"should_intervene":false,"urgency":"low","ai_messages":[]}`},
		{name: "false with messages", answer: `{"should_intervene":false,"urgency":"none","ai_messages":[{"ai_message":"a?","target":"P1"}]}`},
		{name: "true with none", answer: `{"should_intervene":true,"urgency":"none","ai_messages":[{"ai_message":"a?","target":"P1"}]}`},
		{name: "true without messages", answer: `{"should_intervene":true,"urgency":"high","ai_messages":[]}`},
		{name: "three messages", answer: `{"should_intervene":true,"urgency":"high","ai_messages":[{"ai_message":"a?","target":"P1"},{"ai_message":"b?","target":"P2"},{"ai_message":"c?","target":"P1"}]}`},
		{name: "unknown target", answer: `{"should_intervene":true,"urgency":"high","ai_messages":[{"ai_message":"a?","target":"user_1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecider(t, &mockLLM{answer: tt.answer})
			_, err := d.Decide(context.Background(), decisionInput())
			requireUsecaseError(t, err, ErrorShapeMismatch, "llm_shape_mismatch")
		})
	}
}

func TestLLMDecider_MalformedResponse(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{name: "not json", answer: "I think they should talk more."},
		{name: "unknown field", answer: `{"should_intervene":false,"urgency":"none","ai_messages":[],"extra":1}`},
		{name: "trailing data", answer: `{"should_intervene":false,"urgency":"none","ai_messages":[]} {}`},
		{name: "wrong type", answer: `{"should_intervene":"yes","urgency":"none","ai_messages":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecider(t, &mockLLM{answer: tt.answer})
			_, err := d.Decide(context.Background(), decisionInput())
			uerr := requireUsecaseError(t, err, ErrorUpstream, "llm_malformed_response")
			require.Contains(t, uerr.Detail, "preview")
			require.Contains(t, uerr.Detail, "raw_preview")
		})
	}
}

func TestLLMDecider_MalformedPreviewIsCapped(t *testing.T) {
	d := newTestDecider(t, &mockLLM{answer: strings.Repeat("é", 5000)})

	_, err := d.Decide(context.Background(), decisionInput())
	uerr := requireUsecaseError(t, err, ErrorUpstream, "llm_malformed_response")
	require.Len(t, []rune(uerr.Detail["preview"].(string)), previewLimit)
}

func TestLLMDecider_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       ErrorCode
		reason     string
		wantStatus any
	}{
		{
			name:       "rate limited",
			err:        fmt.Errorf("openai: chat: %w", &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}),
			code:       ErrorRateLimited,
			reason:     "llm_rate_limited",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "server error",
			err:        &openai.HTTPStatusError{StatusCode: http.StatusBadGateway, Body: "bad gateway"},
			code:       ErrorUpstream,
			reason:     "llm_error",
			wantStatus: http.StatusBadGateway,
		},
		{
			name:   "network",
			err:    errors.New("dial tcp: connection refused"),
			code:   ErrorUpstream,
			reason: "llm_error",
		},
		{
			name:   "empty content",
			err:    openai.ErrEmptyResponse,
			code:   ErrorUpstream,
			reason: "llm_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{err: tt.err}
			d := newTestDecider(t, llm)

			_, err := d.Decide(context.Background(), decisionInput())
			uerr := requireUsecaseError(t, err, tt.code, tt.reason)
			require.Equal(t, tt.wantStatus, uerr.Detail["status"])
			require.Equal(t, 1, llm.callCount)
		})
	}
}

func TestLLMDecider_UpstreamErrorPreviewFromBody(t *testing.T) {
	llm := &mockLLM{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError, Body: `{"error":"overloaded"}`}}
	d := newTestDecider(t, llm)

	_, err := d.Kickoff(context.Background(), decisionInput())
	uerr := requireUsecaseError(t, err, ErrorUpstream, "llm_error")
	require.Equal(t, `{"error":"overloaded"}`, uerr.Detail["preview"])
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```JSON {\"a\":1}```":    `{"a":1}`,
		"  ```\n{\"a\":1}\n```  ": `{"a":1}`,
		"```json\n{\"a\":1}":      `{"a":1}`,
	}
	for in, want := range tests {
		require.Equal(t, want, stripCodeFence(in), "input %q", in)
	}
}
