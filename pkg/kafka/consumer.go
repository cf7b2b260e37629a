// Package kafka wraps segmentio/kafka-go for the streaming mapper: a
// consumer that commits a document message only once it has been handled,
// and a producer that writes JSON result events.
package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// Message is a fetched record as seen by a Handler.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// Handler processes one message. A nil return commits it. An error keeps
// the consumer on the same message, retrying with backoff, because
// committing a later offset would acknowledge this one too.
type Handler func(ctx context.Context, msg Message) error

// ConsumerStats counts what the loop did with fetched messages.
type ConsumerStats struct {
	Fetched   int64 `json:"fetched"`
	Committed int64 `json:"committed"`
	Retries   int64 `json:"retries"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	handler Handler
	backoff resilience.Backoff
	logger  *slog.Logger

	fetched   atomic.Int64
	committed atomic.Int64
	retries   atomic.Int64
}

var handlerBackoff = resilience.Backoff{
	Initial: 500 * time.Millisecond,
	Max:     30 * time.Second,
	Factor:  2,
}

// NewConsumer joins cfg.ConsumerGroup on topic. A group without committed
// offsets starts from the oldest document.
func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler, handlerBackoff)
}

func newConsumer(r messageReader, topic string, handler Handler, backoff resilience.Backoff) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		backoff: backoff,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Run fetches, handles and commits messages until ctx is cancelled, then
// closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		c.fetched.Add(1)
		msg := fromKafka(raw)
		if !c.handle(ctx, msg) {
			c.logger.Info("consumer stopping with message in flight", "partition", msg.Partition, "offset", msg.Offset)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, raw); err != nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		c.committed.Add(1)
	}
}

// handle runs the handler until it succeeds. It reports false when ctx
// ends first.
func (c *Consumer) handle(ctx context.Context, msg Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.retries.Add(1)
		wait := c.backoff.Delay(attempt)
		c.logger.Warn("handler failed, retrying message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
	}
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Fetched:   c.fetched.Load(),
		Committed: c.committed.Load(),
		Retries:   c.retries.Load(),
	}
}

func fromKafka(m kafka.Message) Message {
	msg := Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
