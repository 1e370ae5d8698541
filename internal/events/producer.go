package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	MessageSent    = "message.sent"
	MessageRead    = "message.read"
	MessageDeleted = "message.deleted"
	CallLogged     = "call.logged"
)

// Event is the envelope written to the topic.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Producer struct {
	writer writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w, topic: topic}
}

// Publish keys by conversation or call id so related events share a partition.
func (p *Producer) Publish(ctx context.Context, eventType, key string, data any) error {
	now := time.Now().UTC()
	b, err := json.Marshal(Event{Type: eventType, At: now, Data: data})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  now,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Discard drops events when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, string, any) error { return nil }
