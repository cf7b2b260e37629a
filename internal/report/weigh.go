// Package report turns a run's match table into the files analysts read:
// raw and resolved JSON, and a per-document disease ranking.
package report

import (
	"sort"
	"strings"

	"github.com/rdsm-lab/disease-mapper/internal/matcher"
)

// baseWeight is the starting score of a (document, disease) pair before the
// penalties for competing diseases and column position.
const baseWeight = 100

// Weight ranks one disease within one document and source column.
type Weight struct {
	DocumentID  string  `json:"document_id"`
	Column      string  `json:"column,omitempty"`
	DiseaseID   string  `json:"disease_id"`
	MatchedText string  `json:"matched_text"`
	Context     string  `json:"context,omitempty"`
	Occurrences int     `json:"occurrences"`
	Diseases    int     `json:"diseases"`
	Raw         int     `json:"raw_weight"`
	Weight      float64 `json:"weight"`
}

// Weigh scores every distinct (document, disease, column) in table.
// Occurrences counts the hits of the same phrase in the document and
// Diseases the distinct phrases matched in it. The raw score
//
//	(100 - Diseases) - order² + Occurrences
//
// penalises later columns, where order is the column's index in columns
// (0 when absent). Scores are min-max scaled per document; a document whose
// scores are all equal gets 1 everywhere. Output is ordered by document id,
// then by first appearance.
func Weigh(table matcher.Table, columns []string) []Weight {
	order := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := order[c]; !ok {
			order[c] = i
		}
	}

	docIDs := make([]string, 0, len(table))
	for id := range table {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	var out []Weight
	for _, docID := range docIDs {
		hits := table[docID]
		occur := make(map[string]int)
		for _, h := range hits {
			occur[strings.ToLower(h.MatchedText)]++
		}

		type pairKey struct{ disease, column string }
		seen := make(map[pairKey]struct{})
		start := len(out)
		for _, h := range hits {
			k := pairKey{h.DiseaseID, h.Column}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			word := strings.ToLower(h.MatchedText)
			col := order[h.Column]
			w := Weight{
				DocumentID:  docID,
				Column:      h.Column,
				DiseaseID:   h.DiseaseID,
				MatchedText: word,
				Context:     h.Context,
				Occurrences: occur[word],
				Diseases:    len(occur),
			}
			w.Raw = (baseWeight - w.Diseases) - col*col + w.Occurrences
			out = append(out, w)
		}
		normalize(out[start:])
	}
	return out
}

func normalize(ws []Weight) {
	if len(ws) == 0 {
		return
	}
	lo, hi := ws[0].Raw, ws[0].Raw
	for _, w := range ws[1:] {
		lo = min(lo, w.Raw)
		hi = max(hi, w.Raw)
	}
	for i := range ws {
		if hi == lo {
			ws[i].Weight = 1
			continue
		}
		ws[i].Weight = float64(ws[i].Raw-lo) / float64(hi-lo)
	}
}
