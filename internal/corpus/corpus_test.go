package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/rdsm-lab/disease-mapper/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSONArray(t *testing.T) {
	in := `[
		{"id": 7, "text": "Patient has Mackay Shek Carr Syndrome.", "title": "case"},
		{"id": "b", "text": ""}
	]`
	docs, err := LoadJSON(strings.NewReader(in), JSONOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "7", docs[0].ID)
	assert.Equal(t, "Patient has Mackay Shek Carr Syndrome.", docs[0].Text)
	assert.Equal(t, map[string]any{"title": "case"}, docs[0].Metadata)
	assert.Empty(t, docs[0].Column)
	assert.Equal(t, "b", docs[1].ID)
	assert.Empty(t, docs[1].Text, "empty documents are kept for the orchestrator to count")
}

func TestLoadJSONLines(t *testing.T) {
	in := "{\"pmid\": \"1\", \"title\": \"Cystic fibrosis\", \"abstract\": \"A study.\"}\n" +
		"{\"pmid\": \"2\", \"title\": \"\", \"abstract\": \"Only abstract.\"}\n"
	docs, err := LoadJSON(strings.NewReader(in), JSONOptions{IDField: "pmid", TextFields: []string{"title", "abstract"}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, Document{ID: "1", Text: "Cystic fibrosis", Column: "title"}, docs[0])
	assert.Equal(t, "abstract", docs[1].Column)
	assert.Equal(t, Document{ID: "2", Text: "Only abstract.", Column: "abstract"}, docs[2])
}

func TestLoadJSONPairs(t *testing.T) {
	in := `[["We support families living with ALS", {"name": "ALS", "title": "ALS", "subscribers": 5000}]]`
	docs, err := LoadJSON(strings.NewReader(in), JSONOptions{IDField: "name"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ALS", docs[0].ID)
	assert.Equal(t, "We support families living with ALS", docs[0].Text)
	assert.Equal(t, float64(5000), docs[0].Metadata["subscribers"])
}

func TestLoadJSONErrors(t *testing.T) {
	docs, err := LoadJSON(strings.NewReader("  \n"), JSONOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = LoadJSON(strings.NewReader(`[{"id": 1,}]`), JSONOptions{})
	assert.Error(t, err)

	_, err = LoadJSON(strings.NewReader(`[["only text"]]`), JSONOptions{})
	assert.ErrorContains(t, err, "pair")

	_, err = LoadJSONFile(filepath.Join(t.TempDir(), "missing.json"), JSONOptions{})
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}

func TestLoadCSV(t *testing.T) {
	in := "\ufeffpmid;title;abstract;year\n" +
		"11;Cystic fibrosis in adults;Lung function declines.;2020\n" +
		"12;;\"Abstract; with delimiter\";2021\n"
	docs, err := LoadCSV(strings.NewReader(in), CSVOptions{
		IDField: "pmid", TextFields: []string{"title", "abstract"}, Comma: ';',
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "11", docs[0].ID)
	assert.Equal(t, "title", docs[0].Column)
	assert.Equal(t, map[string]any{"year": "2020"}, docs[0].Metadata)
	assert.Equal(t, "Abstract; with delimiter", docs[2].Text)
	assert.Equal(t, "abstract", docs[2].Column)

	_, err = LoadCSV(strings.NewReader(in), CSVOptions{IDField: "id", TextFields: []string{"title"}, Comma: ';'})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = LoadCSV(strings.NewReader(in), CSVOptions{})
	assert.ErrorIs(t, err, apperrors.ErrMissingInput)
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.tsv")
	require.NoError(t, os.WriteFile(path, []byte("id\ttext\n1\tcystic fibrosis\n"), 0o644))
	docs, err := LoadCSVFile(path, CSVOptions{IDField: "id", TextFields: []string{"text"}, Comma: ParseComma(`\t`)})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{ID: "1", Text: "cystic fibrosis"}, docs[0])
}

func TestParseComma(t *testing.T) {
	assert.Equal(t, ',', ParseComma(""))
	assert.Equal(t, '\t', ParseComma("tab"))
	assert.Equal(t, ';', ParseComma(";"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		doc    Document
		reason string
	}{
		{"no id", Document{Text: "x"}, ReasonNoID},
		{"empty", Document{ID: "1", Text: " \t"}, ReasonEmpty},
		{"encoding", Document{ID: "1", Text: "bad \xff byte"}, ReasonEncoding},
		{"too large", Document{ID: "1", Text: "abcdef"}, ReasonTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc, 5)
			require.Error(t, err)
			assert.Equal(t, tt.reason, SkipReason(err))
		})
	}
	assert.NoError(t, Validate(Document{ID: "1", Text: "abcdef"}, 0))
	assert.ErrorIs(t, Validate(Document{ID: "1"}, 0), apperrors.ErrEmptyDocument)
	assert.ErrorIs(t, Validate(Document{ID: "1", Text: "\xff"}, 0), apperrors.ErrInvalidInput)
	assert.Equal(t, "invalid", SkipReason(assert.AnError))
}

func TestPostgresSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pmid, title, 'title'").
		WillReturnRows(sqlmock.NewRows([]string{"pmid", "title", "column"}).
			AddRow("1", "Cystic fibrosis", "title").
			AddRow("2", nil, "title"))

	src := NewPostgresSource(postgres.FromDB(db), "SELECT pmid, title, 'title' FROM abstracts")
	docs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Document{
		{ID: "1", Text: "Cystic fibrosis", Column: "title"},
		{ID: "2", Text: "", Column: "title"},
	}, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSourceBadShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	_, err = NewPostgresSource(postgres.FromDB(db), "SELECT id FROM docs").Load(context.Background())
	assert.ErrorContains(t, err, "2 or 3 columns")
}
