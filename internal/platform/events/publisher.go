package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamPublisher is the subset of jetstream.JetStream used to publish.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Identified payloads carry a stable id used for JetStream de-duplication.
type Identified interface {
	MessageID() string
}

// Publisher publishes JSON payloads to JetStream.
type Publisher struct {
	js JetStreamPublisher
}

// NewPublisher wraps a JetStream context.
func NewPublisher(js JetStreamPublisher) *Publisher {
	return &Publisher{js: js}
}

// Publish marshals payload and publishes it on subject. A payload exposing
// MessageID is published with that id so redeliveries inside the stream's
// duplicate window are dropped by the server.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	if p == nil || p.js == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("platform/events: marshal %s: %w", subject, err)
	}
	var opts []jetstream.PublishOpt
	if id, ok := payload.(Identified); ok && id.MessageID() != "" {
		opts = append(opts, jetstream.WithMsgID(id.MessageID()))
	}
	if _, err := p.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("platform/events: publish %s: %w", subject, err)
	}
	return nil
}
