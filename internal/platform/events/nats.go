// Package events carries accounting events over NATS JetStream.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// PostedStream stores outbound posted-transaction events.
	PostedStream = "ATLAS_ACCOUNTING_POSTED"
	// PostedSubjects is the subject filter of PostedStream.
	PostedSubjects = "accounting.posted.>"
	// InboundStream stores travel lifecycle events awaiting posting.
	InboundStream = "ATLAS_TRAVEL_EVENTS"
	// InboundSubjects is the subject filter of InboundStream.
	InboundSubjects = "travel.events.>"
)

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("atlas-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/events: connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("platform/events: jetstream: %w", err)
	}
	return nc, js, nil
}

// StreamManager is the subset of jetstream.JetStream used to declare streams.
type StreamManager interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EnsureStreams declares the posted and inbound streams.
func EnsureStreams(ctx context.Context, js StreamManager, logger *slog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:       PostedStream,
			Subjects:   []string{PostedSubjects},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     7 * 24 * time.Hour,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
		{
			Name:      InboundStream,
			Subjects:  []string{InboundSubjects},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.WorkQueuePolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("platform/events: stream %s: %w", cfg.Name, err)
		}
		if logger != nil {
			logger.Info("ensured stream", slog.String("stream", cfg.Name))
		}
	}
	return nil
}
