package corpus

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rdsm-lab/disease-mapper/pkg/postgres"
)

// PostgresSource reads documents with a query returning (id, text) or
// (id, text, column) rows.
type PostgresSource struct {
	client *postgres.Client
	query  string
}

func NewPostgresSource(client *postgres.Client, query string) *PostgresSource {
	return &PostgresSource{client: client, query: query}
}

func (s *PostgresSource) Load(ctx context.Context) ([]Document, error) {
	rows, err := s.client.DB.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading document columns: %w", err)
	}
	if len(cols) != 2 && len(cols) != 3 {
		return nil, fmt.Errorf("document query must return 2 or 3 columns, got %d", len(cols))
	}

	var docs []Document
	for rows.Next() {
		var (
			doc    Document
			text   sql.NullString
			column sql.NullString
		)
		dest := []any{&doc.ID, &text}
		if len(cols) == 3 {
			dest = append(dest, &column)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		doc.Text = text.String
		doc.Column = column.String
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}
