package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/segmentio/kafka-go"
)

// HeaderContentType is set on every produced message.
const HeaderContentType = "content-type"

// Event is one record to produce. Key picks the partition, so events for
// the same document stay in order. Value is encoded as JSON.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

// Publisher is what the stream processor needs from a Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer writes synchronously with acks from all replicas, so a nil
// Publish means the events are durable and the input may be committed.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes events and writes them in one call. Nothing is written
// if any value fails to encode.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		m, err := toKafka(ev)
		if err != nil {
			return err
		}
		msgs[i] = m
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d events: %w", len(msgs), err)
	}
	p.logger.Debug("events published", "count", len(msgs))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafka(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %s: %w", ev.Key, err)
	}
	keys := make([]string, 0, len(ev.Headers))
	for k := range ev.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headers := make([]kafka.Header, 0, len(keys)+1)
	headers = append(headers, kafka.Header{Key: HeaderContentType, Value: []byte("application/json")})
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(ev.Headers[k])})
	}
	return kafka.Message{Key: []byte(ev.Key), Value: value, Headers: headers}, nil
}
