// Package kafka forwards search audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "peoplefinder/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store publishes each event as one JSON record keyed by caller, so one
// operator's searches stay ordered within a partition.
type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) (*Store, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &Store{producer: producer, topic: topic}, nil
}

// Dial connects a franz-go client to brokers. The returned close func flushes
// and closes the client.
func Dial(brokers []string, topic string) (*Store, func(), error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	store, err := New(client, topic)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}

// payload is the wire shape of one event.
type payload struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"`
	Timestamp    string            `json:"timestamp"`
	Caller       string            `json:"caller,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Term         string            `json:"term"`
	Contributors []string          `json:"contributors"`
	ResultCount  int               `json:"result_count"`
	Errors       map[string]string `json:"errors,omitempty"`
	AllTimedOut  bool              `json:"all_timed_out"`
	Retried      bool              `json:"retried,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

func (s *Store) Append(ctx context.Context, event audit.SearchEvent) error {
	body, err := json.Marshal(payload{
		ID:           event.ID,
		Action:       event.Action,
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		Caller:       event.Caller,
		RequestID:    event.RequestID,
		Term:         event.Term,
		Contributors: append([]string{}, event.Contributors...),
		ResultCount:  event.ResultCount,
		Errors:       event.Errors,
		AllTimedOut:  event.AllTimedOut,
		Retried:      event.Retried,
		DurationMS:   event.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Caller),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event to %s: %w", s.topic, err)
	}
	return nil
}
