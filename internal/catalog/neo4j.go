package catalog

import (
	"context"
	"fmt"

	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
)

// RareDiseaseQuery selects GARD disease nodes by their is_rare flag.
const RareDiseaseQuery = "MATCH (d:DATA) " +
	"WHERE d.is_rare = $is_rare " +
	"RETURN d.gard_id AS gard_id, d.name AS name, d.synonyms AS synonyms"

// RowReader runs a read query and returns the rows as maps. *neo4j.Driver
// from pkg/neo4j implements it.
type RowReader interface {
	ReadRows(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Neo4jSource reads the GARD graph.
type Neo4jSource struct {
	reader RowReader
	isRare bool
}

func NewNeo4jSource(reader RowReader, isRare bool) *Neo4jSource {
	return &Neo4jSource{reader: reader, isRare: isRare}
}

func (s *Neo4jSource) Load(ctx context.Context) ([]lexicon.Record, error) {
	rows, err := s.reader.ReadRows(ctx, RareDiseaseQuery, map[string]any{"is_rare": s.isRare})
	if err != nil {
		return nil, fmt.Errorf("querying disease nodes: %w", err)
	}
	out := make([]lexicon.Record, 0, len(rows))
	for _, row := range rows {
		rec := lexicon.Record{
			ID:   idString(row["gard_id"]),
			Name: stringValue(row["name"]),
		}
		switch syns := row["synonyms"].(type) {
		case []any:
			for _, v := range syns {
				if s := stringValue(v); s != "" {
					rec.Synonyms = append(rec.Synonyms, s)
				}
			}
		case []string:
			rec.Synonyms = append(rec.Synonyms, syns...)
		case string:
			if syns != "" {
				rec.Synonyms = []string{syns}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
