package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// SubjectPrefix prefixes inbound lifecycle subjects; the remainder is the
// event type, e.g. travel.events.ticket.issued.
const SubjectPrefix = "travel.events."

// ConsumerName is the durable JetStream consumer of the ledger.
const ConsumerName = "atlas-ledger-posting"

// message is the part of jetstream.Msg the subscriber acknowledges through.
type message interface {
	Subject() string
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	TermWithReason(reason string) error
}

// Subscriber feeds JetStream lifecycle events into the dispatcher.
type Subscriber struct {
	hooks    Dispatcher
	logger   *slog.Logger
	nakDelay time.Duration
	consume  jetstream.ConsumeContext
}

// NewSubscriber constructs a subscriber.
func NewSubscriber(hooks Dispatcher, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{hooks: hooks, logger: logger, nakDelay: 5 * time.Second}
}

// Start creates the durable consumer on stream and begins consuming.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (s *Subscriber) Start(ctx context.Context, js jetstream.JetStream, stream string) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: SubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("integration: create consumer: %w", err)
	}
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("integration: consume: %w", err)
	}
	s.consume = cc
	s.logger.Info("subscribed to lifecycle events", slog.String("stream", stream), slog.String("consumer", ConsumerName))
	return nil
}

// Stop stops consuming.
func (s *Subscriber) Stop() {
	if s.consume != nil {
		s.consume.Stop()
	}
}

// handle acknowledges recorded events, including those whose posting was
// deferred to the retry queue. Malformed events are terminated; anything else
// is redelivered.
func (s *Subscriber) handle(ctx context.Context, msg message) {
	env := Envelope{Type: strings.TrimPrefix(msg.Subject(), SubjectPrefix), Payload: msg.Data()}
	logger := s.logger.With(slog.String("subject", msg.Subject()), slog.String("type", env.Type))
	out, err := s.hooks.Dispatch(ctx, env)
	switch {
	case err == nil:
		if out.PostingErr != nil {
			logger.Warn("lifecycle event recorded, posting deferred", slog.Any("error", out.PostingErr))
		}
		s.ack(logger, msg.Ack())
	case errors.Is(err, shared.ErrValidation):
		logger.Warn("lifecycle event rejected", slog.Any("error", err))
		s.ack(logger, msg.TermWithReason(err.Error()))
	case shared.IsConflict(err):
		logger.Info("lifecycle event already applied", slog.Any("error", err))
		s.ack(logger, msg.Ack())
	default:
		logger.Error("lifecycle event failed", slog.Any("error", err))
		s.ack(logger, msg.NakWithDelay(s.nakDelay))
	}
}

func (s *Subscriber) ack(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("acknowledge lifecycle event", slog.Any("error", err))
	}
}
