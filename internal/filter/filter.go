// Package filter drops curated false positives from match results. It runs
// after matching so blacklist edits take effect without rescanning.
package filter

import (
	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
)

// Stats counts what a filter pass removed.
type Stats struct {
	Documents int `json:"documents"`
	Hits      int `json:"hits"`
}

// Hits returns the hits of one document that survive the blacklist. A
// document whose id is a blacklisted subject loses every hit.
func Hits(docID string, hits []matcher.Hit, snap blacklist.Snapshot) []matcher.Hit {
	if snap.ContainsSubject(docID) {
		return nil
	}
	if snap.Len(blacklist.Terms) == 0 {
		return hits
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if !snap.ContainsTerm(h.MatchedText) {
			kept = append(kept, h)
		}
	}
	return kept
}

// Apply returns a filtered copy of table. Documents left with no hits are
// dropped.
func Apply(table matcher.Table, snap blacklist.Snapshot) (matcher.Table, Stats) {
	out := make(matcher.Table, len(table))
	var stats Stats
	for docID, hits := range table {
		if snap.ContainsSubject(docID) {
			stats.Documents++
			stats.Hits += len(hits)
			continue
		}
		kept := Hits(docID, hits, snap)
		stats.Hits += len(hits) - len(kept)
		if len(kept) > 0 {
			out[docID] = kept
		}
	}
	return out, stats
}
