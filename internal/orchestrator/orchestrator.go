// Package orchestrator runs the normalize, tokenize, match and filter
// pipeline over a document collection. Documents are cut into contiguous
// batches; a bounded pool of workers each owns whole batches, and the
// per-batch tables are merged in batch order once every worker is done.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/corpus"
	"github.com/rdsm-lab/disease-mapper/internal/filter"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
	"github.com/rdsm-lab/disease-mapper/pkg/logger"
	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	"github.com/rdsm-lab/disease-mapper/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize suits corpora in the hundred-thousand document range.
const DefaultBatchSize = 5000

// ReasonPanic marks a document whose processing panicked.
const ReasonPanic = "panic"

// Options tunes a run. Zero values pick the defaults.
type Options struct {
	Workers     int
	MaxTextSize int
	Metrics     *metrics.Metrics
}

// DefaultWorkers keeps one core free, with a floor of one worker.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Skipped describes a document that produced no result because it failed
// validation or processing.
type Skipped struct {
	DocumentID string `json:"document_id"`
	Column     string `json:"column,omitempty"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
}

// Result is everything a run produced. On cancellation it holds the batches
// that finished.
type Result struct {
	RunID     string        `json:"run_id"`
	Table     matcher.Table `json:"-"`
	Skipped   []Skipped     `json:"skipped"`
	Documents int           `json:"documents"`
	Hits      int           `json:"hits"`
	Filtered  int           `json:"filtered"`
	Batches   int           `json:"batches"`
	Completed int           `json:"completed_batches"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type batchResult struct {
	done     bool
	table    matcher.Table
	skipped  []Skipped
	docs     int
	hits     int
	filtered int
}

// Orchestrator is safe for concurrent runs; it holds only read-only state.
type Orchestrator struct {
	norm    *textnorm.Normalizer
	matcher *matcher.Matcher
	bl      blacklist.Snapshot
	opts    Options
	logger  *slog.Logger
}

func New(norm *textnorm.Normalizer, m *matcher.Matcher, bl blacklist.Snapshot, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.MaxTextSize <= 0 {
		opts.MaxTextSize = corpus.DefaultMaxTextSize
	}
	return &Orchestrator{
		norm:    norm,
		matcher: m,
		bl:      bl,
		opts:    opts,
		logger:  slog.Default().With("component", "orchestrator"),
	}
}

// Run processes docs in batches of batchSize (DefaultBatchSize when not
// positive). Once ctx is done no further batch is started; batches already
// running finish, and the partial result is returned with ctx's error.
func (o *Orchestrator) Run(ctx context.Context, docs []corpus.Document, batchSize int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	res := &Result{
		RunID:     uuid.NewString(),
		Table:     make(matcher.Table),
		StartedAt: time.Now(),
		Batches:   (len(docs) + batchSize - 1) / batchSize,
	}
	ctx = logger.WithRunID(ctx, res.RunID)
	ctx, span := tracing.StartSpan(ctx, "mapper.run", res.RunID)
	log := logger.FromContext(ctx).With("component", "orchestrator")

	results := make([]batchResult, res.Batches)
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for b := 0; b < res.Batches; b++ {
		if ctx.Err() != nil {
			break
		}
		start := b * batchSize
		end := min(start+batchSize, len(docs))
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[b] = o.runBatch(ctx, b, docs[start:end])
			return nil
		})
	}
	_ = g.Wait()

	for _, br := range results {
		if !br.done {
			continue
		}
		res.Completed++
		res.Table.Merge(br.table)
		res.Skipped = append(res.Skipped, br.skipped...)
		res.Documents += br.docs
		res.Hits += br.hits
		res.Filtered += br.filtered
	}
	res.Duration = time.Since(res.StartedAt)

	span.SetAttr("documents", res.Documents)
	span.SetAttr("hits", res.Hits)
	span.SetAttr("batches", res.Completed)
	span.End()
	span.Log(ctx, log)

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled, returning partial results",
			"completed_batches", res.Completed,
			"batches", res.Batches,
			"error", err,
		)
		return res, fmt.Errorf("run %s cancelled after %d of %d batches: %w", res.RunID, res.Completed, res.Batches, err)
	}
	log.Info("run complete",
		"documents", res.Documents,
		"skipped", len(res.Skipped),
		"hits", res.Hits,
		"filtered", res.Filtered,
		"batches", res.Batches,
		"workers", o.opts.Workers,
		"duration", res.Duration,
	)
	return res, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, index int, docs []corpus.Document) batchResult {
	_, span := tracing.StartChildSpan(ctx, fmt.Sprintf("batch-%d", index))
	start := time.Now()
	br := batchResult{done: true, table: make(matcher.Table)}
	for _, doc := range docs {
		hits, filtered, skip := o.process(doc)
		if skip != nil {
			br.skipped = append(br.skipped, *skip)
			continue
		}
		br.docs++
		br.filtered += filtered
		br.hits += len(hits)
		if len(hits) > 0 {
			br.table[doc.ID] = append(br.table[doc.ID], hits...)
		}
	}
	span.SetAttr("documents", len(docs))
	span.End()
	if m := o.opts.Metrics; m != nil {
		m.BatchDuration.Observe(time.Since(start).Seconds())
		m.DocumentsProcessed.Add(float64(br.docs))
		m.HitsFiltered.Add(float64(br.filtered))
		for _, s := range br.skipped {
			m.DocumentsSkipped.WithLabelValues(s.Reason).Inc()
		}
		for _, hits := range br.table {
			for _, h := range hits {
				m.HitsTotal.WithLabelValues(h.PatternType.String()).Inc()
			}
		}
	}
	return br
}

// Process runs one document through the pipeline and returns its filtered
// hits. A document that fails validation or panics yields an error.
func (o *Orchestrator) Process(doc corpus.Document) ([]matcher.Hit, error) {
	hits, _, skip := o.process(doc)
	if skip != nil {
		return nil, fmt.Errorf("document %s skipped (%s): %s", doc.ID, skip.Reason, skip.Error)
	}
	return hits, nil
}

func (o *Orchestrator) process(doc corpus.Document) (hits []matcher.Hit, filtered int, skip *Skipped) {
	defer func() {
		if r := recover(); r != nil {
			hits, filtered = nil, 0
			skip = &Skipped{DocumentID: doc.ID, Column: doc.Column, Reason: ReasonPanic, Error: fmt.Sprint(r)}
			o.logger.Error("document processing panicked", "doc_id", doc.ID, "error", r)
		}
	}()
	if err := corpus.Validate(doc, o.opts.MaxTextSize); err != nil {
		o.logger.Warn("skipping document", "doc_id", doc.ID, "reason", corpus.SkipReason(err), "error", err)
		return nil, 0, &Skipped{DocumentID: doc.ID, Column: doc.Column, Reason: corpus.SkipReason(err), Error: err.Error()}
	}

	text := o.norm.Normalize(doc.Text)
	if text == "" {
		o.logger.Warn("skipping document", "doc_id", doc.ID, "reason", corpus.ReasonEmpty)
		return nil, 0, &Skipped{DocumentID: doc.ID, Column: doc.Column, Reason: corpus.ReasonEmpty, Error: "text is empty after normalization"}
	}
	raw := o.matcher.MatchTokens(doc.ID, text, tokenizer.Tokenize(text))
	for i := range raw {
		raw[i].Column = doc.Column
	}
	kept := filter.Hits(doc.ID, raw, o.bl)
	return kept, len(raw) - len(kept), nil
}
