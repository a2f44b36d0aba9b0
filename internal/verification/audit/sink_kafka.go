package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"eudi-storefront/internal/platform/kafka/producer"
)

// MessageProducer is satisfied by *producer.Producer.
type MessageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSink publishes records keyed by subject, so one subject's records
// stay ordered within a partition.
type KafkaSink struct {
	producer MessageProducer
	topic    string
}

func NewKafkaSink(p MessageProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, r Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(r.SubjectID),
		Value: value,
		Headers: map[string]string{
			"content-type": "application/json",
			"action":       string(r.Action),
		},
	})
}
