package lexicon

import (
	"fmt"
	"strings"
)

// PatternType says whether a lexicon term came from a canonical name or a
// synonym.
type PatternType uint8

const (
	Name PatternType = iota + 1
	Synonym
)

func (p PatternType) String() string {
	switch p {
	case Name:
		return "Name"
	case Synonym:
		return "Synonym"
	default:
		return "Unknown"
	}
}

func (p PatternType) MarshalText() ([]byte, error) {
	if p != Name && p != Synonym {
		return nil, fmt.Errorf("invalid pattern type %d", p)
	}
	return []byte(p.String()), nil
}

func (p *PatternType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "name":
		*p = Name
	case "synonym":
		*p = Synonym
	default:
		return fmt.Errorf("invalid pattern type %q", b)
	}
	return nil
}

// Record is one disease from the catalog.
type Record struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// Entry is what a lexicon term points at.
type Entry struct {
	ID   string      `json:"id"`
	Type PatternType `json:"type"`
}
