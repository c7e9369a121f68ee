package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NewNATS constructs a thin NATS-based publisher.
func NewNATS(log *slog.Logger, nc *nats.Conn) Publisher {
	return &natsPublisher{log: log, nc: nc}
}

type natsPublisher struct {
	log *slog.Logger
	nc  *nats.Conn
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Type == "" {
		return errors.New("event type required")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(event.Subject(), body); err != nil {
		return err
	}
	p.log.Debug("published document event", "subject", event.Subject(), "id", event.ID, "document_id", event.DocumentID)
	return nil
}

// Close drains pending messages before closing the connection.
func (p *natsPublisher) Close() error {
	return p.nc.Drain()
}
