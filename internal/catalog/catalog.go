// Package catalog reads disease records from the supported catalog
// sources: JSON exports, the NCATS Neo4j GARD graph and PostgreSQL.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// Source yields every disease record of a catalog.
type Source interface {
	Load(ctx context.Context) ([]lexicon.Record, error)
}

// rawRecord accepts both the Neo4j export shape ("GARD id", "Name",
// "Synonyms") and the GARD search shape ("gard_id", "name", "synonyms").
type rawRecord struct {
	GardID    any      `json:"GARD id"`
	Name      string   `json:"Name"`
	Synonyms  []string `json:"Synonyms"`
	AltID     any      `json:"gard_id"`
	AltName   string   `json:"name"`
	AltSyns   []string `json:"synonyms"`
	PlainID   any      `json:"id"`
	IsRare    *bool    `json:"is_rare"`
	AltIsRare *bool    `json:"Is_rare"`
}

func (r rawRecord) record() (lexicon.Record, *bool) {
	rec := lexicon.Record{ID: idString(r.GardID), Name: r.Name, Synonyms: r.Synonyms}
	if rec.ID == "" {
		rec.ID = idString(r.AltID)
	}
	if rec.ID == "" {
		rec.ID = idString(r.PlainID)
	}
	if rec.Name == "" {
		rec.Name = r.AltName
	}
	if rec.Synonyms == nil {
		rec.Synonyms = r.AltSyns
	}
	rare := r.IsRare
	if rare == nil {
		rare = r.AltIsRare
	}
	return rec, rare
}

// LoadJSON decodes a JSON array of disease records. When rareOnly is set,
// records explicitly flagged is_rare=false are dropped; unflagged records
// are kept.
func LoadJSON(r io.Reader, rareOnly bool) ([]lexicon.Record, error) {
	var raws []rawRecord
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "decoding catalog: %v", err)
	}
	out := make([]lexicon.Record, 0, len(raws))
	for _, raw := range raws {
		rec, rare := raw.record()
		if rareOnly && rare != nil && !*rare {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// FileSource reads a JSON catalog export from disk.
type FileSource struct {
	Path     string
	RareOnly bool
}

func (s FileSource) Load(_ context.Context) ([]lexicon.Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrMissingInput, "opening catalog %s: %v", s.Path, err)
	}
	defer f.Close()
	recs, err := LoadJSON(f, s.RareOnly)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", s.Path, err)
	}
	return recs, nil
}

// WriteJSON writes records in the GARD search shape.
func WriteJSON(w io.Writer, records []lexicon.Record) error {
	type out struct {
		ID       string   `json:"gard_id"`
		Name     string   `json:"name"`
		Synonyms []string `json:"synonyms"`
	}
	rows := make([]out, len(records))
	for i, r := range records {
		rows[i] = out{ID: r.ID, Name: r.Name, Synonyms: r.Synonyms}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
