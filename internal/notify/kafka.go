package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a topic keyed by mission id, so every event of
// one mission lands on the same partition in order.
type Kafka struct {
	writer messageWriter
}

var _ Notifier = (*Kafka)(nil)

// NewKafka creates a publisher for topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *Kafka) Notify(ctx context.Context, e streaming.Event) error {
	if e.ID == "" || e.Type == "" {
		return fmt.Errorf("event missing required fields: id=%q, type=%q", e.ID, e.Type)
	}
	msg, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(e.MissionID), 10)),
		Value: msg,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s for track %d: %w", e.Type, e.TrackID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
