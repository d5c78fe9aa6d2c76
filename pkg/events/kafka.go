package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Event is the envelope written to Kafka. Topic holds the logical room topic
// (room/{pin}/...); Kafka itself carries every room on one topic keyed by pin.
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Pin       string          `json:"pin"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Str("module", "events").Err(err).Int("messages", len(messages)).Msg("failed to deliver events")
			}
		},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
	}
}

// Publish hands the event to the async writer and returns without waiting
// for broker acknowledgement. Delivery failures are logged by the writer.
func (k *KafkaClient) Publish(ctx context.Context, topic string, payload any) {
	msg, err := NewMessage(topic, payload, time.Now())
	if err != nil {
		log.Error().Str("module", "events").Str("topic", topic).Err(err).Msg("failed to encode event")
		return
	}
	if err := k.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		log.Error().Str("module", "events").Str("topic", topic).Err(err).Msg("failed to write event")
	}
}

// NewMessage builds the Kafka message for a logical topic.
func NewMessage(topic string, payload any, now time.Time) (kafka.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	pin := PinFromTopic(topic)
	event := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Pin:       pin,
		Timestamp: now,
		Payload:   raw,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(pin),
		Value: value,
	}, nil
}

// ConsumeEvents reads until ctx is done or the reader fails. Undecodable
// messages and handler errors are logged and skipped.
func (k *KafkaClient) ConsumeEvents(ctx context.Context, handler func(Event) error) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Str("module", "events").Err(err).Int64("offset", msg.Offset).Msg("skipping undecodable event")
			continue
		}

		if err := handler(event); err != nil {
			log.Warn().Str("module", "events").Err(err).Str("topic", event.Topic).Msg("failed to handle event")
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
