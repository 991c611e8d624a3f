// Package events publishes pricing events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/geo-pricing/internal/domain/cart"
)

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// defaultTimeout bounds a publish when no timeout is configured.
const defaultTimeout = 2 * time.Second

var _ cart.Publisher = (*Publisher)(nil)

// Publisher writes cart.PricedEvent messages keyed by cart token, so events
// for one cart stay on one partition.
type Publisher struct {
	w       MessageWriter
	timeout time.Duration
}

// NewWriter creates a kafka.Writer for topic on brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewPublisher creates a Publisher writing through w. Each publish is
// bounded by timeout so a stalled broker cannot hold up webhook responses; a
// non-positive timeout selects the default.
func NewPublisher(w MessageWriter, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Publisher{w: w, timeout: timeout}
}

// Publish implements cart.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev cart.PricedEvent) error {
	e := &jx.Encoder{}
	ev.Encode(e)

	msg := kafka.Message{
		Key:   []byte(ev.Token),
		Value: e.Bytes(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("cart.priced")},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write cart priced event")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
