// Package store persists mapper runs, their hits and the resolved per-document
// diseases to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/postgres"
)

// Schema creates the tables the store writes to.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS diseases (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		synonyms TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS mapper_runs (
		id          UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		documents   INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		hits        INTEGER NOT NULL,
		filtered    INTEGER NOT NULL,
		stats       JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS run_matches (
		run_id       UUID NOT NULL REFERENCES mapper_runs(id) ON DELETE CASCADE,
		document_id  TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		matched_text TEXT NOT NULL,
		disease_id   TEXT NOT NULL,
		span_start   INTEGER NOT NULL,
		span_end     INTEGER NOT NULL,
		source_col   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS run_resolved (
		run_id        UUID NOT NULL REFERENCES mapper_runs(id) ON DELETE CASCADE,
		document_id   TEXT NOT NULL,
		disease_ids   TEXT[] NOT NULL,
		disease_names TEXT[] NOT NULL,
		PRIMARY KEY (run_id, document_id)
	)`,
}

// Run summarizes one orchestrated run.
type Run struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Documents int             `json:"documents"`
	Skipped   int             `json:"skipped"`
	Hits      int             `json:"hits"`
	Filtered  int             `json:"filtered"`
	Stats     json.RawMessage `json:"stats,omitempty"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run row, every hit and every resolved document in one
// transaction. Hits and resolved rows are bulk loaded with COPY.
func (s *Store) SaveRun(ctx context.Context, run Run, table matcher.Table, resolved map[string]resolver.Resolved) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var stats any
		if len(run.Stats) > 0 {
			stats = []byte(run.Stats)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mapper_runs (id, started_at, duration_ms, documents, skipped, hits, filtered, stats)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID, run.StartedAt.UTC(), run.Duration.Milliseconds(),
			run.Documents, run.Skipped, run.Hits, run.Filtered, stats,
		); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		if err := copyRows(ctx, tx, "run_matches",
			[]string{"run_id", "document_id", "pattern_type", "matched_text", "disease_id", "span_start", "span_end", "source_col"},
			func(emit func(args ...any) error) error {
				for _, docID := range sortedKeys(table) {
					for _, h := range table[docID] {
						if err := emit(run.ID, docID, h.PatternType.String(), h.MatchedText, h.DiseaseID, h.Span.Start, h.Span.End, h.Column); err != nil {
							return err
						}
					}
				}
				return nil
			}); err != nil {
			return err
		}

		return copyRows(ctx, tx, "run_resolved",
			[]string{"run_id", "document_id", "disease_ids", "disease_names"},
			func(emit func(args ...any) error) error {
				for _, docID := range sortedKeys(resolved) {
					r := resolved[docID]
					if err := emit(run.ID, docID, pq.Array(r.DiseaseIDs), pq.Array(r.DiseaseNames)); err != nil {
						return err
					}
				}
				return nil
			})
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	s.logger.Info("run saved",
		"run_id", run.ID,
		"documents", len(table),
		"resolved", len(resolved),
	)
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, cols []string, rows func(emit func(args ...any) error) error) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, cols...))
	if err != nil {
		return fmt.Errorf("preparing copy into %s: %w", table, err)
	}
	defer stmt.Close()
	if err := rows(func(args ...any) error {
		_, err := stmt.ExecContext(ctx, args...)
		return err
	}); err != nil {
		return fmt.Errorf("copying into %s: %w", table, err)
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy into %s: %w", table, err)
	}
	return nil
}

// LatestRun returns the most recent run, or nil, nil when there is none.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListRuns returns the last limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, documents, skipped, hits, filtered, stats
		 FROM mapper_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r     Run
			ms    int64
			stats []byte
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &ms, &r.Documents, &r.Skipped, &r.Hits, &r.Filtered, &stats); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		if len(stats) > 0 {
			r.Stats = json.RawMessage(stats)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Resolved loads the resolved diseases of one document in a run.
func (s *Store) Resolved(ctx context.Context, runID, docID string) (resolver.Resolved, error) {
	var r resolver.Resolved
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT disease_ids, disease_names FROM run_resolved WHERE run_id = $1 AND document_id = $2`,
		runID, docID,
	).Scan(pq.Array(&r.DiseaseIDs), pq.Array(&r.DiseaseNames))
	if errors.Is(err, sql.ErrNoRows) {
		return r, apperrors.Newf(apperrors.ErrNotFound, "document %s not found in run %s", docID, runID)
	}
	if err != nil {
		return r, fmt.Errorf("querying resolved document: %w", err)
	}
	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
