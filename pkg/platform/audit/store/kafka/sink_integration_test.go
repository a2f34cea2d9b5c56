//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "registrar/pkg/platform/audit"
	"registrar/pkg/platform/audit/store/kafka"
	"registrar/pkg/testutil/containers"
)

type SinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *SinkSuite) TestAppendProducesKeyedRecord() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "registrar.audit." + uuid.NewString()
	sink, err := kafka.New([]string{s.redpanda.Broker}, topic)
	s.Require().NoError(err)
	defer sink.Close()

	s.Require().NoError(sink.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(sink.EnsureTopic(ctx, 1, 1), "existing topic is not an error")
	s.Require().NoError(sink.Ping(ctx))

	event := audit.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		SubjectID: "1234567890",
		Action:    string(audit.EventSubjectRecordUpdated),
		Fields:    []string{"email", "phone"},
		ActorID:   "agent-7",
	}
	s.Require().NoError(sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().Len(records, 1)

	rec := records[0]
	s.Equal("1234567890", string(rec.Key))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Value, &body))
	s.Equal(event.ID, body["id"])
	s.Equal("compliance", body["category"])
	s.Equal("subject_record_updated", body["action"])
	s.Equal([]any{"email", "phone"}, body["fields"])
}
