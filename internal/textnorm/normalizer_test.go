package textnorm

import (
	"testing"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stubLemmas = LemmatizerFunc(func(w string) string {
	switch w {
	case "diseases":
		return "disease"
	case "syndromes":
		return "syndrome"
	case "occurs":
		return "occur"
	case "degenerations":
		return "degeneration"
	}
	return w
})

func newTestNormalizer() *Normalizer {
	_, terms := blacklist.Defaults()
	return New(stubLemmas, blacklist.NewSnapshot(nil, terms))
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whitespace", "  Cystic\tFibrosis \n ", "cystic fibrosis"},
		{"tags", "<b>Retinal</b> degeneration<br/>", "retinal degeneration"},
		{"unicode quotes and accents", "Sjögren’s syndromes", "sjogren syndrome"},
		{"unicode dash", "Non‐small cell", "non-small cell"},
		{"and/or", "hearing loss and/or deafness", "hearing loss and deafness"},
		{"non space", "non small cell", "nonsmall cell"},
		{"non hyphen space", "Non- small cell", "nonsmall cell"},
		{"non inside word", "canon camera", "canon camera"},
		{"disallowed characters", "fever & chills! #rare", "fever chills rare"},
		{"possessive", "Parkinson's Diseases", "parkinson disease"},
		{"acronym kept", "mTOR pathway Diseases", "mTOR pathway disease"},
		{"short caps word kept", "CF Diseases", "CF disease"},
		{"long caps word lemmatized", "DEGENERATIONS of the retina", "degeneration of the retina"},
		{"caps run lemmatized", "RARE SYNDROMES (CF)", "rare syndrome"},
		{"greek letters kept", "β-thalassemia and α-thalassemia", "β-thalassemia and α-thalassemia"},
		{"greek capitals folded", "Β-THALASSEMIA carrier", "β-thalassemia carrier"},
		{"acronym parenthetical", "cystic fibrosis (CF)", "cystic fibrosis"},
		{"every acronym group", "foo (AB) bar (CD) baz", "foo bar baz"},
		{"blacklisted group", "diabetes (type 2) insipidus", "diabetes insipidus"},
		{"blacklisted word in group", "ataxia (formerly known) syndrome", "ataxia syndrome"},
		{"plain group kept", "fever (recurrent) syndrome", "fever (recurrent) syndrome"},
		{"nested group", "foo (ABC (CD)) bar", "foo bar"},
		{"genomic notation", "Del(5)(q13) syndrome (ABC)", "del(5)(q13) syndrome (ABC)"},
		{"only group kept", "(CF)", "(CF)"},
		{"empty", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	samples := []string{
		"Patient has Mackay Shek Carr Syndrome and related retinal degeneration with nanophthalmos.",
		"cystic fibrosis (CF) occurs",
		"Sjögren’s syndromes — <i>rare</i> and/or common",
		"NON-SMALL cell lung cancer (NSCLC), type 2",
		"Del(5)(q13) (ABC) non  small",
		"foo (ABC (CD)) bar (fever)",
		"mTOR ABCA4 HIV-1 A.B.C. e.g. o'brien's",
		"(CF)",
		"'s 's's",
		"RARE SYNDROMES (CF) and ALS",
		"Β-THALASSEMIA α-thalassemia",
	}
	for _, lem := range []Lemmatizer{stubLemmas, Noop, Stem} {
		n := New(lem, blacklist.NewSnapshot(nil, []string{"type 2", "type"}))
		for _, s := range samples {
			once := n.Normalize(s)
			assert.Equal(t, once, n.Normalize(once), "input %q", s)
		}
	}
}

func TestNormalizeCaseWithDictionary(t *testing.T) {
	lem, err := Dictionary()
	require.NoError(t, err)
	n := New(lem, blacklist.Snapshot{})
	for _, in := range []string{"muscular dystrophies", "Muscular Dystrophies", "MUSCULAR DYSTROPHIES"} {
		assert.Equal(t, "muscular dystrophy", n.Normalize(in), in)
	}
}

func TestLemmaFixpoint(t *testing.T) {
	chain := LemmatizerFunc(func(w string) string {
		switch w {
		case "aaa":
			return "bbb"
		case "bbb":
			return "ccc"
		case "xxx":
			return "yyy"
		case "yyy":
			return "xxx"
		case "num":
			return "n2"
		}
		return w
	})
	n := New(chain, blacklist.Snapshot{})
	assert.Equal(t, "ccc", n.Normalize("aaa"))
	assert.Equal(t, "xxx", n.Normalize("xxx"))
	assert.Equal(t, "num", n.Normalize("num"))
}

func TestLemmatizerByName(t *testing.T) {
	lem, err := LemmatizerByName("none")
	require.NoError(t, err)
	assert.Equal(t, "diseases", lem.Lemma("diseases"))

	lem, err = LemmatizerByName("stem")
	require.NoError(t, err)
	assert.Equal(t, "syndrom", lem.Lemma("syndromes"))

	_, err = LemmatizerByName("wordnet")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDictionaryLemmatizer(t *testing.T) {
	lem, err := Dictionary()
	require.NoError(t, err)
	n := New(lem, blacklist.Snapshot{})
	assert.Equal(t, "rare disease", n.Normalize("Rare Diseases"))
	once := n.Normalize("Children with cystic fibrosis were studied")
	assert.Equal(t, once, n.Normalize(once))
}

func BenchmarkNormalize(b *testing.B) {
	n := newTestNormalizer()
	text := "Patient has Mackay Shek Carr Syndrome (MSCS) and related retinal degeneration with nanophthalmos, cystic macular degeneration, and/or angle closure glaucoma."
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.Normalize(text)
	}
}
