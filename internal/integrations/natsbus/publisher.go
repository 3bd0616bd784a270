// Package natsbus publishes intervention events to NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"facilitator-agent/internal/domain"
)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a Publisher for subject. The connection
// retries in the background, so an unreachable server does not fail startup.
func Connect(url, token, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("ai-facilitator"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect: %w", err)
	}
	return New(nc, subject, logger)
}

func New(c conn, subject string, logger *slog.Logger) (*Publisher, error) {
	if c == nil {
		return nil, errors.New("natsbus: conn must not be nil")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("natsbus: subject must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, subject: subject, logger: logger}, nil
}

// PublishIntervention sends ev as JSON on the subject suffixed with the
// event urgency, e.g. "facilitator.intervention.high".
func (p *Publisher) PublishIntervention(ctx context.Context, ev domain.InterventionEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("natsbus: publish: %w", err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("natsbus: marshal event: %w", err)
	}
	subject := p.subjectFor(ev.Urgency)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", subject, err)
	}
	p.logger.DebugContext(ctx, "intervention published", "subject", subject, "request_id", ev.RequestID)
	return nil
}

func (p *Publisher) subjectFor(u domain.Urgency) string {
	if u == "" {
		return p.subject
	}
	return p.subject + "." + string(u)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("natsbus: drain: %w", err)
	}
	return nil
}
