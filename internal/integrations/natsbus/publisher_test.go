package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"facilitator-agent/internal/domain"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs       []published
	publishErr error
	drainErr   error
	drained    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return f.drainErr
}

func sampleEvent() domain.InterventionEvent {
	return domain.InterventionEvent{
		RequestID:  "req-1",
		Engine:     "rules",
		Rule:       "stuck_signal",
		Urgency:    domain.UrgencyHigh,
		TargetID:   "P2",
		TargetName: "Bob",
		Message:    "Bob, what would help?",
		OccurredAt: time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishIntervention(t *testing.T) {
	conn := &fakeConn{}
	p, err := New(conn, " facilitator.intervention ", nil)
	require.NoError(t, err)

	require.NoError(t, p.PublishIntervention(context.Background(), sampleEvent()))
	require.Len(t, conn.msgs, 1)
	require.Equal(t, "facilitator.intervention.high", conn.msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &got))
	require.Equal(t, "req-1", got["request_id"])
	require.Equal(t, "P2", got["target"])
	require.Equal(t, "Bob, what would help?", got["ai_message"])
	require.Equal(t, "high", got["urgency"])
	require.Equal(t, "2026-02-25T10:00:00Z", got["occurred_at"])
}

func TestPublishIntervention_NoUrgencyUsesBaseSubject(t *testing.T) {
	conn := &fakeConn{}
	p, err := New(conn, "facilitator.intervention", nil)
	require.NoError(t, err)

	ev := sampleEvent()
	ev.Urgency = ""
	require.NoError(t, p.PublishIntervention(context.Background(), ev))
	require.Equal(t, "facilitator.intervention", conn.msgs[0].subject)
}

func TestPublishIntervention_Errors(t *testing.T) {
	conn := &fakeConn{publishErr: errors.New("nats: connection closed")}
	p, err := New(conn, "facilitator.intervention", nil)
	require.NoError(t, err)

	err = p.PublishIntervention(context.Background(), sampleEvent())
	require.ErrorContains(t, err, "natsbus: publish facilitator.intervention.high")
	require.ErrorContains(t, err, "connection closed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.PublishIntervention(ctx, sampleEvent())
	require.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	conn := &fakeConn{}
	p, err := New(conn, "s", nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.True(t, conn.drained)

	conn.drainErr = errors.New("already closed")
	require.ErrorContains(t, p.Close(), "natsbus: drain")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "s", nil)
	require.ErrorContains(t, err, "conn must not be nil")

	_, err = New(&fakeConn{}, " ", nil)
	require.ErrorContains(t, err, "subject must not be empty")
}
