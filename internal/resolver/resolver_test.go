package resolver

import (
	"math/rand/v2"
	"testing"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/lexicon"
	"github.com/rdsm-lab/disease-mapper/internal/matcher"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLexicon(t *testing.T) (*lexicon.Lexicon, *textnorm.Normalizer) {
	t.Helper()
	norm := textnorm.New(textnorm.Noop, blacklist.Snapshot{})
	opts := lexicon.DefaultOptions()
	opts.Normalizer = norm
	lex, _ := lexicon.Build([]lexicon.Record{
		{ID: "GARD:0006233", Name: "Cystic fibrosis", Synonyms: []string{"Mucoviscidosis", "CF"}},
		{ID: "D1", Name: "Mackay Shek Carr syndrome", Synonyms: []string{"Retinal degeneration with nanophthalmos"}},
		{ID: "D2", Name: "Ocular degeneration", Synonyms: []string{"retinal degeneration syndrome"}},
		{ID: "GARD:0000777", Name: "Parkinson's disease"},
		{ID: "GARD:0000042", Name: "Alpha 1 antitrypsin deficiency"},
	}, opts, blacklist.Snapshot{})
	return lex, norm
}

func TestAutosearchEquivalentQueries(t *testing.T) {
	lex, norm := testLexicon(t)
	r := New(lex, WithNormalizer(norm))

	want := []string{"cystic fibrosis", "mucoviscidosis"}
	for _, q := range []string{"GARD:0006233", "gard:0006233", "6233", "0006233", "cystic fibrosis", "Cystic Fibrosis", "mucoviscidosis"} {
		got, err := r.Autosearch(q)
		require.NoError(t, err, q)
		assert.Equal(t, want, got, q)
	}

	res, err := r.Lookup("6233")
	require.NoError(t, err)
	assert.Equal(t, OutcomeID, res.Outcome)
	assert.Equal(t, "GARD:0006233", res.ID)

	res, err = r.Lookup("cystic fibrosis")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerm, res.Outcome)
}

func TestAutosearchInvalidID(t *testing.T) {
	lex, _ := testLexicon(t)
	r := New(lex)

	_, err := r.Autosearch("12345678")
	assert.ErrorIs(t, err, apperrors.ErrInvalidID)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = r.Autosearch("GARD:0000001")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = r.Autosearch("9")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAutosearchRetry(t *testing.T) {
	lex, _ := testLexicon(t)
	r := New(lex)

	got, err := r.Autosearch("alpha-1 antitrypsin deficiency")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha 1 antitrypsin deficiency"}, got)

	got, err = r.Autosearch("Parkinson's disease")
	require.NoError(t, err)
	assert.Equal(t, []string{"parkinson disease"}, got)
}

func TestAutosearchFallback(t *testing.T) {
	lex, norm := testLexicon(t)
	r := New(lex, WithNormalizer(norm))

	res, err := r.Lookup("  Some Unknown-Thing ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, []string{"Some Unknown-Thing"}, res.Terms)
	assert.Empty(t, res.ID)
}

func TestResolveHit(t *testing.T) {
	lex, _ := testLexicon(t)
	r := New(lex)

	got := r.ResolveHit(matcher.Hit{PatternType: lexicon.Name, MatchedText: "Mackay Shek Carr Syndrome"})
	assert.Equal(t, []Match{{ID: "D1", Name: "Mackay Shek Carr syndrome"}}, got)

	assert.Empty(t, r.ResolveHit(matcher.Hit{PatternType: lexicon.Name, MatchedText: "mackay shek carr"}),
		"names must match exactly")

	got = r.ResolveHit(matcher.Hit{PatternType: lexicon.Synonym, MatchedText: "retinal degeneration"})
	require.Len(t, got, 2, "synonyms match by containment")
	assert.Equal(t, "D1", got[0].ID)
	assert.Equal(t, "D2", got[1].ID)

	again := r.ResolveHit(matcher.Hit{PatternType: lexicon.Synonym, MatchedText: "Retinal  Degeneration"})
	assert.Equal(t, got, again)

	assert.Empty(t, r.ResolveHit(matcher.Hit{PatternType: lexicon.Synonym, MatchedText: "  "}))
}

func TestResolveTable(t *testing.T) {
	lex, _ := testLexicon(t)
	r := New(lex)
	table := matcher.Table{
		"7": {
			{DocumentID: "7", PatternType: lexicon.Name, MatchedText: "Mackay Shek Carr Syndrome"},
			{DocumentID: "7", PatternType: lexicon.Synonym, MatchedText: "retinal degeneration with nanophthalmos"},
		},
		"8": {
			{DocumentID: "8", PatternType: lexicon.Name, MatchedText: "unknown"},
		},
	}
	got := r.ResolveTable(table)
	assert.Equal(t, map[string]Resolved{
		"7": {DiseaseIDs: []string{"D1"}, DiseaseNames: []string{"Mackay Shek Carr syndrome"}},
	}, got)
}

func TestRandomHelpers(t *testing.T) {
	lex, _ := testLexicon(t)
	r := New(lex, WithRand(rand.New(rand.NewPCG(1, 2))))

	id, err := r.RandomID()
	require.NoError(t, err)
	assert.True(t, lex.HasID(id))

	terms, err := r.RandomDiseaseTerms()
	require.NoError(t, err)
	assert.NotEmpty(t, terms)

	term, err := r.RandomDisease()
	require.NoError(t, err)
	_, ok := lex.Lookup(term)
	assert.True(t, ok, term)

	empty, _ := lexicon.Build(nil, lexicon.DefaultOptions(), blacklist.Snapshot{})
	_, err = New(empty).RandomID()
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIDScheme(t *testing.T) {
	s := DefaultIDScheme()
	assert.Equal(t, 12, s.Len())
	assert.Equal(t, "GARD:0000777", s.Format(777))

	id, ok, err := s.Parse("777")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "GARD:0000777", id)

	_, ok, err = s.Parse("gard:12ab567")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = s.Parse("cystic fibrosis")
	assert.False(t, ok)

	custom := IDScheme{Prefix: "ORPHA", Width: 5}
	id, ok, err = custom.Parse("orpha:00586")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ORPHA:00586", id)
	_, _, err = custom.Parse("123456")
	assert.ErrorIs(t, err, apperrors.ErrInvalidID)
}
