package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string        // used when a message carries none
	BatchTimeout time.Duration // default 10ms
}

// Producer is a thin wrapper around segmentio/kafka-go Writer.
type Producer struct {
	w     *kafka.Writer
	topic string
}

func NewProducer(c ProducerConfig) *Producer {
	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           bt,
		AllowAutoTopicCreation: true,
	}
	return &Producer{w: w, topic: c.Topic}
}

// Publish writes msgs synchronously. Messages with the same key land on the
// same partition, which keeps one session's events in order.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	for i := range msgs {
		if msgs[i].Topic == "" {
			msgs[i].Topic = p.topic
		}
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error { return p.w.Close() }
