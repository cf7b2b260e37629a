// Package stream maps documents arriving on a Kafka topic. Each message
// carries one document or a batch of them; the batch goes through the
// orchestrator, is resolved, and one result event per document is published
// before the message is committed.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rdsm-lab/disease-mapper/internal/corpus"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/orchestrator"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	"github.com/rdsm-lab/disease-mapper/pkg/kafka"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

// DocumentMessage is the payload of the documents topic. Either the embedded
// document or Documents is set.
type DocumentMessage struct {
	corpus.Document
	Documents []corpus.Document `json:"documents,omitempty"`
}

// ResultEvent is published to the results topic for every document in a
// message, including skipped ones.
type ResultEvent struct {
	RunID        string        `json:"run_id"`
	DocumentID   string        `json:"document_id"`
	Column       string        `json:"column,omitempty"`
	Hits         []matcher.Hit `json:"hits"`
	DiseaseIDs   []string      `json:"disease_ids"`
	DiseaseNames []string      `json:"disease_names"`
	Skipped      string        `json:"skipped,omitempty"`
	ProcessedAt  time.Time     `json:"processed_at"`
}

// Processor turns document messages into result events.
type Processor struct {
	orch      *orchestrator.Orchestrator
	resolver  *resolver.Resolver
	publisher kafka.Publisher
	batchSize int
	metrics   *metrics.Metrics
	retry     resilience.Backoff
	source    func() (*orchestrator.Orchestrator, *resolver.Resolver)
	logger    *slog.Logger
}

// Config tunes a Processor. Zero values pick defaults.
type Config struct {
	BatchSize int
	Metrics   *metrics.Metrics
	Retry     resilience.Backoff
	// Source, when set, supplies the orchestrator and resolver for every
	// message so that pipeline rebuilds are picked up. The ones passed to
	// NewProcessor are used otherwise.
	Source func() (*orchestrator.Orchestrator, *resolver.Resolver)
}

func NewProcessor(orch *orchestrator.Orchestrator, res *resolver.Resolver, pub kafka.Publisher, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = orchestrator.DefaultBatchSize
	}
	return &Processor{
		orch:      orch,
		resolver:  res,
		publisher: pub,
		batchSize: cfg.BatchSize,
		metrics:   cfg.Metrics,
		retry:     cfg.Retry,
		source:    cfg.Source,
		logger:    slog.Default().With("component", "stream-processor"),
	}
}

// HeaderRunID carries the orchestrator run id on every result event.
const HeaderRunID = "run-id"

// Handler returns the kafka.Handler for the documents topic. Messages that
// cannot be decoded are logged and acknowledged. A failed publish is
// returned so the consumer retries the message instead of committing it.
func (p *Processor) Handler() kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		docs, err := decode(msg.Value)
		if err != nil {
			p.count("invalid")
			p.logger.Error("dropping undecodable document message",
				"key", string(msg.Key),
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return nil
		}
		events, err := p.Process(ctx, docs)
		if err != nil {
			p.count("error")
			return err
		}
		if err := p.publish(ctx, events); err != nil {
			p.count("publish_error")
			return err
		}
		p.count("ok")
		return nil
	}
}

// Process maps docs and returns one event per input document, in input order.
func (p *Processor) Process(ctx context.Context, docs []corpus.Document) ([]ResultEvent, error) {
	orch, rsv := p.orch, p.resolver
	if p.source != nil {
		orch, rsv = p.source()
	}
	res, err := orch.Run(ctx, docs, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("mapping %d documents: %w", len(docs), err)
	}

	skipped := make(map[string]string, len(res.Skipped))
	for _, s := range res.Skipped {
		skipped[skipKey(s.DocumentID, s.Column)] = s.Reason
	}
	now := time.Now().UTC()
	events := make([]ResultEvent, 0, len(docs))
	for _, doc := range docs {
		ev := ResultEvent{
			RunID:        res.RunID,
			DocumentID:   doc.ID,
			Column:       doc.Column,
			Hits:         hitsForColumn(res.Table[doc.ID], doc.Column),
			DiseaseIDs:   []string{},
			DiseaseNames: []string{},
			Skipped:      skipped[skipKey(doc.ID, doc.Column)],
			ProcessedAt:  now,
		}
		if r, ok := rsv.ResolveHits(ev.Hits); ok {
			ev.DiseaseIDs, ev.DiseaseNames = r.DiseaseIDs, r.DiseaseNames
		}
		events = append(events, ev)
	}
	p.logger.Debug("message mapped",
		"run_id", res.RunID,
		"documents", len(docs),
		"hits", res.Hits,
		"skipped", len(res.Skipped),
	)
	return events, nil
}

func (p *Processor) publish(ctx context.Context, events []ResultEvent) error {
	batch := make([]kafka.Event, 0, len(events))
	for _, ev := range events {
		batch = append(batch, kafka.Event{
			Key:     ev.DocumentID,
			Value:   ev,
			Headers: map[string]string{HeaderRunID: ev.RunID},
		})
	}
	return resilience.Retry(ctx, "publish-results", p.retry, func(ctx context.Context) error {
		return p.publisher.Publish(ctx, batch...)
	})
}

func (p *Processor) count(status string) {
	if p.metrics != nil {
		p.metrics.StreamMessagesTotal.WithLabelValues(status).Inc()
	}
}

func decode(value []byte) ([]corpus.Document, error) {
	var msg DocumentMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("decoding document message: %w", err)
	}
	if len(msg.Documents) > 0 {
		return msg.Documents, nil
	}
	if msg.ID == "" && msg.Text == "" {
		return nil, errors.New("decoding document message: no document")
	}
	return []corpus.Document{msg.Document}, nil
}

// hitsForColumn keeps the hits of one source column. The table is keyed by
// document id only, so several columns of the same record share an entry.
func hitsForColumn(hits []matcher.Hit, column string) []matcher.Hit {
	out := make([]matcher.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Column == column {
			out = append(out, h)
		}
	}
	return out
}

func skipKey(id, column string) string {
	return id + "\x00" + column
}
