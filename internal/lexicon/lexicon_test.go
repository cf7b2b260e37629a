package lexicon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rdsm-lab/disease-mapper/internal/blacklist"
	"github.com/rdsm-lab/disease-mapper/internal/textnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords() []Record {
	return []Record{
		{ID: "D1", Name: "Mackay Shek Carr syndrome", Synonyms: []string{
			"Retinal degeneration with nanophthalmos",
			"retinal degeneration with nanophthalmos, cystic macular degeneration, and angle closure glaucoma",
			"MSCS",
		}},
		{ID: "GARD:0006233", Name: "Cystic fibrosis", Synonyms: []string{"CF", "Mucoviscidosis", "abc", "about", "Type 2"}},
		{ID: "D3", Name: "Pulmonary disorder", Synonyms: []string{"fibrosis", "lung scarring"}},
		{ID: "D4", Name: "Fibrosis", Synonyms: []string{"lung scarring"}},
		{ID: "D5", Name: "X"},
		{ID: "", Name: "No id"},
		{ID: "D7", Name: "  "},
		{ID: "GARD:0005786", Name: "Amyotrophic lateral sclerosis", Synonyms: []string{"Dyspraxia", "arms", "fava bean allergy", "fava"}},
	}
}

func buildTest(t *testing.T) (*Lexicon, BuildStats) {
	t.Helper()
	bl := blacklist.NewSnapshot(nil, []string{"type 2"})
	opts := DefaultOptions()
	opts.Normalizer = textnorm.New(textnorm.Noop, bl)
	return Build(testRecords(), opts, bl)
}

func TestBuild(t *testing.T) {
	lex, stats := buildTest(t)

	assert.Equal(t, 8, stats.Records)
	assert.Equal(t, 2, stats.SkippedRecords)
	assert.Equal(t, 2, stats.Acronyms)
	assert.Equal(t, 1, stats.Blacklisted)
	assert.Equal(t, 2, stats.TooShort, "name X and synonym abc")
	assert.Equal(t, 1, stats.Stopwords)
	assert.Equal(t, 11, stats.MaxPhraseLen)
	assert.Equal(t, 11, lex.MaxPhraseLen())

	e, ok := lex.Lookup("mackay shek carr syndrome")
	require.True(t, ok)
	assert.Equal(t, Entry{ID: "D1", Type: Name}, e)

	e, ok = lex.Lookup("retinal degeneration with nanophthalmos")
	require.True(t, ok)
	assert.Equal(t, Entry{ID: "D1", Type: Synonym}, e)

	for _, missing := range []string{"mscs", "cf", "abc", "about", "type 2", "x"} {
		_, ok := lex.Lookup(missing)
		assert.False(t, ok, "term %q should not be a key", missing)
	}

	assert.Contains(t, lex.Synonyms("GARD:0006233"), "CF")
	assert.True(t, lex.HasID("D5"))
	assert.False(t, lex.HasID("D7"))
	assert.Equal(t, "Cystic fibrosis", lex.DisplayName("GARD:0006233"))
	assert.Equal(t, "cystic fibrosis", lex.CanonicalName("GARD:0006233"))
	assert.Equal(t, []string{"D1", "D3", "D4", "D5", "GARD:0005786", "GARD:0006233"}, lex.IDs())
}

func TestBuildConflictPolicy(t *testing.T) {
	lex, stats := buildTest(t)

	e, ok := lex.Lookup("fibrosis")
	require.True(t, ok)
	assert.Equal(t, Entry{ID: "D4", Type: Name}, e, "a name overrides an earlier synonym")

	e, ok = lex.Lookup("lung scarring")
	require.True(t, ok)
	assert.Equal(t, Entry{ID: "D3", Type: Synonym}, e, "first synonym wins")

	assert.Equal(t, 2, stats.Conflicts)
	names, synonyms := lex.CountByType()
	assert.Equal(t, stats.Names, names)
	assert.Equal(t, stats.Synonyms, synonyms)
}

func TestTermsOrdering(t *testing.T) {
	lex, _ := buildTest(t)
	assert.Equal(t, []string{
		"retinal degeneration with nanophthalmos cystic macular degeneration and angle closure glaucoma",
		"retinal degeneration with nanophthalmos",
		"mackay shek carr syndrome",
	}, lex.Terms("D1"))
	assert.Equal(t, []string{"amyotrophic lateral sclerosis", "fava bean allergy", "dyspraxia", "arms", "fava"},
		lex.Terms("GARD:0005786"))
}

func TestApplyOverrides(t *testing.T) {
	lex, _ := buildTest(t)
	norm := textnorm.New(textnorm.Noop, blacklist.Snapshot{})

	applied := lex.ApplyOverrides(append(DefaultOverrides(), Override{Term: "ghost", ID: "GARD:9999999"}), norm)
	assert.Equal(t, 5, applied)

	e, ok := lex.Lookup("cf")
	require.True(t, ok)
	assert.Equal(t, "GARD:0006233", e.ID)
	e, ok = lex.Lookup("als")
	require.True(t, ok)
	assert.Equal(t, "GARD:0005786", e.ID)
	for _, removed := range []string{"dyspraxia", "fava", "arms", "ghost"} {
		_, ok := lex.Lookup(removed)
		assert.False(t, ok, removed)
	}
	assert.Equal(t, []string{"amyotrophic lateral sclerosis", "fava bean allergy", "als"}, lex.Terms("GARD:0005786"))
	assert.Contains(t, lex.Synonyms("GARD:0005786"), "als")

	assert.Zero(t, lex.ApplyOverrides(DefaultOverrides(), norm), "second application is a no-op")
}

func TestEmptyLexicon(t *testing.T) {
	lex, stats := Build(nil, DefaultOptions(), blacklist.Snapshot{})
	assert.Equal(t, 1, lex.MaxPhraseLen())
	assert.Zero(t, lex.Len())
	assert.Zero(t, stats.Records)
}

func TestSnapshotRoundTrip(t *testing.T) {
	lex, _ := buildTest(t)
	path := filepath.Join(t.TempDir(), "lexicon", "gard.rdlx")
	require.NoError(t, WriteSnapshot(path, lex, "stem"))

	got, hdr, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(lex.Len()), hdr.TermCount)
	assert.Equal(t, uint32(11), hdr.MaxPhraseLen)
	assert.Equal(t, "stem", hdr.Lemmatizer)
	assert.Equal(t, lex.terms, got.terms)
	assert.Equal(t, lex.byID, got.byID)
	assert.Equal(t, lex.nameIndex, got.nameIndex)
	assert.Equal(t, lex.IDs(), got.IDs())
	assert.Equal(t, lex.MaxPhraseLen(), got.MaxPhraseLen())
	assert.Equal(t, lex.Synonyms("D1"), got.Synonyms("D1"))
	assert.Equal(t, lex.DisplayName("D1"), got.DisplayName("D1"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteSnapshotRemovesTempFileOnFailure(t *testing.T) {
	lex, _ := buildTest(t)
	path := filepath.Join(t.TempDir(), "gard.rdlx")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	err := WriteSnapshot(path, lex, "stem")
	require.ErrorContains(t, err, "renaming snapshot file")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(path, "occupied"))
	assert.NoError(t, err)
}

func TestSnapshotCorruption(t *testing.T) {
	lex, _ := buildTest(t)
	path := filepath.Join(t.TempDir(), "gard.rdlx")
	require.NoError(t, WriteSnapshot(path, lex, "stem"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, _, err = ReadSnapshot(path)
	assert.ErrorContains(t, err, "checksum")

	data[0] = 0
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, _, err = ReadSnapshot(path)
	assert.ErrorContains(t, err, "magic")

	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))
	_, _, err = ReadSnapshot(path)
	assert.Error(t, err)
}

func TestPatternTypeText(t *testing.T) {
	b, err := json.Marshal(Entry{ID: "D1", Type: Synonym})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"D1","type":"Synonym"}`, string(b))

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(`{"id":"D2","type":"name"}`), &e))
	assert.Equal(t, Name, e.Type)
	assert.Error(t, json.Unmarshal([]byte(`{"type":"alias"}`), &e))

	_, err = PatternType(0).MarshalText()
	assert.Error(t, err)
}
