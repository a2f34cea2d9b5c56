// Package kafka forwards audit events to a Kafka topic so downstream
// registries can follow changes to subject records.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "registrar/pkg/platform/audit"
)

// Sink implements audit.Store by producing one record per event, keyed by
// subject id so a subject's events stay ordered within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON published to Kafka.
type payload struct {
	ID              string   `json:"id"`
	Category        string   `json:"category"`
	Timestamp       string   `json:"timestamp"`
	SubjectID       string   `json:"subjectId"`
	Action          string   `json:"action"`
	ChangeRequestID string   `json:"changeRequestId,omitempty"`
	Decision        string   `json:"decision,omitempty"`
	Fields          []string `json:"fields,omitempty"`
	ActorID         string   `json:"actorId,omitempty"`
	RequestID       string   `json:"requestId,omitempty"`
}

// New connects to brokers and returns a sink producing to topic.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic when missing. An existing topic is not an error.
func (s *Sink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Append produces the event synchronously.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	body, err := json.Marshal(payload{
		ID:              event.ID,
		Category:        string(category),
		Timestamp:       event.Timestamp.UTC().Format(time.RFC3339Nano),
		SubjectID:       event.SubjectID,
		Action:          event.Action,
		ChangeRequestID: event.ChangeRequestID,
		Decision:        event.Decision,
		Fields:          event.Fields,
		ActorID:         event.ActorID,
		RequestID:       event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.SubjectID),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close flushes and closes the underlying client.
func (s *Sink) Close() {
	s.client.Close()
}
