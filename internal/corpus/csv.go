package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// CSVOptions describes a delimited file with a header row. Every column in
// TextFields becomes its own Document with Column set; other columns go to
// Metadata.
type CSVOptions struct {
	IDField    string
	TextFields []string
	Comma      rune
}

// LoadCSVFile opens path and calls LoadCSV.
func LoadCSVFile(path string, opts CSVOptions) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrMissingInput, "opening corpus %s: %v", path, err)
	}
	defer f.Close()
	docs, err := LoadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("loading corpus %s: %w", path, err)
	}
	return docs, nil
}

func LoadCSV(r io.Reader, opts CSVOptions) ([]Document, error) {
	if opts.IDField == "" || len(opts.TextFields) == 0 {
		return nil, apperrors.New(apperrors.ErrMissingInput, "csv input needs an id column and at least one text column")
	}
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	idCol, ok := cols[opts.IDField]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "csv has no %q column", opts.IDField)
	}
	textCols := make([]int, len(opts.TextFields))
	for i, f := range opts.TextFields {
		c, ok := cols[f]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "csv has no %q column", f)
		}
		textCols[i] = c
	}

	var docs []Document
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		id := cell(row, idCol)
		meta := make(map[string]any)
		for name, c := range cols {
			if c == idCol || containsInt(textCols, c) {
				continue
			}
			if v := cell(row, c); v != "" {
				meta[name] = v
			}
		}
		if len(meta) == 0 {
			meta = nil
		}
		for i, c := range textCols {
			text := cell(row, c)
			if len(textCols) > 1 && strings.TrimSpace(text) == "" {
				continue
			}
			doc := Document{ID: id, Text: text, Metadata: meta}
			if len(textCols) > 1 {
				doc.Column = opts.TextFields[i]
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ParseComma turns a configured delimiter ("\t", ";", "") into a rune.
func ParseComma(s string) rune {
	switch s {
	case "":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
