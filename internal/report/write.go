package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/resolver"
)

// Output file names inside the configured output directory.
const (
	MatchesFile  = "matches.json"
	ResolvedFile = "resolved.json"
	WeightsFile  = "weighted_matches.csv"
	SummaryFile  = "run.json"
)

// WriteJSON encodes v with two-space indentation. Map keys come out sorted.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteMatches writes document_id → hits.
func WriteMatches(w io.Writer, table matcher.Table) error {
	return WriteJSON(w, table)
}

// WriteResolved writes document_id → {disease_ids, disease_names}.
func WriteResolved(w io.Writer, resolved map[string]resolver.Resolved) error {
	return WriteJSON(w, resolved)
}

var weightHeader = []string{
	"ID", "COLUMN", "Matched_Word", "CONTEXT", "GARD_id", "#OCCUR", "#DISEASE", "WEIGHT",
}

// WriteWeightsCSV writes the ranking in the column layout the GARD curation
// spreadsheets expect.
func WriteWeightsCSV(w io.Writer, weights []Weight) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(weightHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, wt := range weights {
		rec := []string{
			wt.DocumentID,
			wt.Column,
			wt.MatchedText,
			wt.Context,
			wt.DiseaseID,
			strconv.Itoa(wt.Occurrences),
			strconv.Itoa(wt.Diseases),
			strconv.FormatFloat(wt.Weight, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", wt.DocumentID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// WriteFile writes dir/name (creating dir) through fn. The data goes to a
// temporary file first and is renamed into place, so a failed run never
// leaves a truncated output behind.
func WriteFile(dir, name string, fn func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tmp, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return path, nil
}
