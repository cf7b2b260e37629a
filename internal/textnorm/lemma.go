package textnorm

import (
	"strings"
	"sync"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/kljensen/snowball/english"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// Lemmatizer reduces a lower-case word to its base form.
type Lemmatizer interface {
	Lemma(word string) string
}

// LemmatizerFunc adapts a plain function to Lemmatizer.
type LemmatizerFunc func(string) string

func (f LemmatizerFunc) Lemma(word string) string { return f(word) }

// Noop leaves words untouched.
var Noop Lemmatizer = LemmatizerFunc(func(w string) string { return w })

var (
	dictOnce sync.Once
	dictLem  *golem.Lemmatizer
	dictErr  error
)

type dictionaryLemmatizer struct {
	l *golem.Lemmatizer
}

func (d dictionaryLemmatizer) Lemma(word string) string {
	return strings.ToLower(d.l.Lemma(word))
}

// Dictionary returns the shared English dictionary lemmatizer. The word list
// is loaded once per process.
func Dictionary() (Lemmatizer, error) {
	dictOnce.Do(func() {
		dictLem, dictErr = golem.New(en.New())
	})
	if dictErr != nil {
		return nil, dictErr
	}
	return dictionaryLemmatizer{l: dictLem}, nil
}

// Stem is a Porter2 stemmer. It is coarser than Dictionary and produces
// non-words ("syndrom"), but needs no word list.
var Stem Lemmatizer = LemmatizerFunc(func(w string) string {
	return english.Stem(w, false)
})

// LemmatizerByName maps a configuration value to an implementation:
// "dictionary" (default), "stem" or "none".
func LemmatizerByName(name string) (Lemmatizer, error) {
	switch name {
	case "", "dictionary":
		return Dictionary()
	case "stem":
		return Stem, nil
	case "none":
		return Noop, nil
	}
	return nil, apperrors.Newf(apperrors.ErrInvalidInput, "unknown lemmatizer %q", name)
}
