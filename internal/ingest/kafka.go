package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/metrics"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader returns a consumer-group reader starting at the oldest
// offset, so a new group replays the topic from the beginning.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})
}

// Consumer feeds indexer events from Kafka into a Dispatcher. Offsets are
// committed after an event is handled, so delivery is at-least-once.
type Consumer struct {
	reader     MessageReader
	dispatcher *Dispatcher
	log        zerolog.Logger
	metrics    *metrics.Metrics
	backoff    time.Duration
}

func NewConsumer(r MessageReader, d *Dispatcher, l zerolog.Logger, m *metrics.Metrics) *Consumer {
	if m == nil {
		m = metrics.Nop()
	}
	return &Consumer{
		reader:     r,
		dispatcher: d,
		log:        logging.For(l, "kafka"),
		metrics:    m,
		backoff:    time.Second,
	}
}

// Run consumes until ctx is done. Messages that cannot be decoded or applied
// are logged and committed so they do not block the partition.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("consumer started")
	defer c.log.Info().Msg("consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				// reader closed
				return nil
			}
			c.log.Warn().Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ev, err := DecodeEvent(msg.Value)
	if err != nil {
		c.metrics.IngestErrors.WithLabelValues("decode").Inc()
		c.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("dropping undecodable message")
		return
	}
	if _, err := c.dispatcher.Handle(ctx, ev); err != nil {
		c.metrics.IngestErrors.WithLabelValues("handle").Inc()
		c.log.Error().Err(err).Str(logging.EventType, ev.Name).Str(logging.ID, ev.ID()).Msg("failed to apply event")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
