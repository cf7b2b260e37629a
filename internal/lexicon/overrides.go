package lexicon

import (
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/rdsm-lab/disease-mapper/internal/tokenizer"
)

// Override patches one term after the build. An empty ID removes the term;
// otherwise the term is added (or repointed) as a Synonym of ID.
type Override struct {
	Term string `yaml:"term" json:"term"`
	ID   string `yaml:"id" json:"id,omitempty"`
}

// DefaultOverrides fixes known catalog gaps: common short forms missing from
// the catalog and generic words that happen to be listed as synonyms.
func DefaultOverrides() []Override {
	return []Override{
		{Term: "cf", ID: "GARD:0006233"},
		{Term: "als", ID: "GARD:0005786"},
		{Term: "dyspraxia"},
		{Term: "fava"},
		{Term: "arms"},
	}
}

// ApplyOverrides patches the lexicon in place and returns how many overrides
// changed something. Adds that name an id missing from the catalog are
// ignored. It must be called before the lexicon is shared.
func (l *Lexicon) ApplyOverrides(overrides []Override, norm *textnorm.Normalizer) int {
	applied := 0
	for _, o := range overrides {
		text := o.Term
		if norm != nil {
			text = norm.Normalize(text)
		}
		key := tokenizer.Key(text)
		if key == "" {
			continue
		}
		if o.ID == "" {
			if _, ok := l.terms[key]; ok {
				delete(l.terms, key)
				applied++
			}
			continue
		}
		if !l.HasID(o.ID) {
			continue
		}
		if prev, ok := l.terms[key]; ok && prev.ID == o.ID {
			continue
		}
		l.terms[key] = Entry{ID: o.ID, Type: Synonym}
		if !containsString(l.synonyms[o.ID], text) {
			l.synonyms[o.ID] = append(l.synonyms[o.ID], text)
		}
		applied++
	}
	if applied > 0 {
		l.reindex()
	}
	return applied
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
