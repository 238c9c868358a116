package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"keystone/internal/platform/kafka/producer"
)

// KafkaSink streams audit entries to a Kafka topic. Entries for the same
// stream share a record key so per-aggregate ordering is preserved.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(entry.StreamKey),
		Value: value,
		Headers: map[string]string{
			"event_type": entry.EventType,
		},
	})
}
