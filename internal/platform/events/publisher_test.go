package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
	opts    int
}

type fakeJetStream struct {
	msgs    []published
	streams []jetstream.StreamConfig
	err     error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data, opts: len(opts)})
	return &jetstream.PubAck{Stream: PostedStream, Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeJetStream) CreateOrUpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.streams = append(f.streams, cfg)
	return nil, nil
}

type posted struct {
	Reference string `json:"reference_number"`
}

func (p posted) MessageID() string { return p.Reference }

func TestPublishMarshalsAndSetsMessageID(t *testing.T) {
	js := &fakeJetStream{}
	pub := NewPublisher(js)

	require.NoError(t, pub.Publish(context.Background(), "accounting.posted.ticket_issue", posted{Reference: "JE-20240603-0001"}))
	require.NoError(t, pub.Publish(context.Background(), "accounting.posted.misc", map[string]string{"k": "v"}))

	require.Len(t, js.msgs, 2)
	require.Equal(t, "accounting.posted.ticket_issue", js.msgs[0].subject)
	require.Equal(t, 1, js.msgs[0].opts)
	require.Equal(t, 0, js.msgs[1].opts)

	var body posted
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &body))
	require.Equal(t, "JE-20240603-0001", body.Reference)
}

func TestPublishWrapsBrokerErrors(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	err := NewPublisher(js).Publish(context.Background(), "accounting.posted.x", posted{})
	require.ErrorContains(t, err, "no responders")

	var nilPub *Publisher
	require.NoError(t, nilPub.Publish(context.Background(), "accounting.posted.x", posted{}))
}

func TestEnsureStreamsDeclaresPostedAndInbound(t *testing.T) {
	js := &fakeJetStream{}
	require.NoError(t, EnsureStreams(context.Background(), js, nil))
	require.Len(t, js.streams, 2)
	require.Equal(t, PostedStream, js.streams[0].Name)
	require.Equal(t, []string{PostedSubjects}, js.streams[0].Subjects)
	require.Equal(t, 10*time.Minute, js.streams[0].Duplicates)
	require.Equal(t, jetstream.WorkQueuePolicy, js.streams[1].Retention)
}
