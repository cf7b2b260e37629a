package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/pkg/postgres"
)

// DefaultQuery reads the diseases table created by the store migrations.
const DefaultQuery = "SELECT id, name, synonyms FROM diseases ORDER BY id"

// PostgresSource reads records with a query returning (id, name, synonyms
// text[]) rows.
type PostgresSource struct {
	client *postgres.Client
	query  string
}

func NewPostgresSource(client *postgres.Client, query string) *PostgresSource {
	if query == "" {
		query = DefaultQuery
	}
	return &PostgresSource{client: client, query: query}
}

func (s *PostgresSource) Load(ctx context.Context) ([]lexicon.Record, error) {
	rows, err := s.client.DB.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying diseases: %w", err)
	}
	defer rows.Close()

	var out []lexicon.Record
	for rows.Next() {
		var (
			rec  lexicon.Record
			name sql.NullString
			syns []sql.NullString
		)
		if err := rows.Scan(&rec.ID, &name, pq.Array(&syns)); err != nil {
			return nil, fmt.Errorf("scanning disease row: %w", err)
		}
		rec.Name = name.String
		for _, s := range syns {
			if s.Valid {
				rec.Synonyms = append(rec.Synonyms, s.String)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating disease rows: %w", err)
	}
	return out, nil
}

// Save upserts records into the diseases table.
func (s *PostgresSource) Save(ctx context.Context, records []lexicon.Record) error {
	return s.client.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO diseases (id, name, synonyms)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, synonyms = EXCLUDED.synonyms`)
		if err != nil {
			return fmt.Errorf("preparing disease upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Name, pq.Array(r.Synonyms)); err != nil {
				return fmt.Errorf("upserting disease %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
