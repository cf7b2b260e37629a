package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// JSONOptions names the fields that carry the id and the text. Records
// with several text fields produce one Document per non-empty field.
type JSONOptions struct {
	IDField    string
	TextFields []string
}

func (o JSONOptions) withDefaults() JSONOptions {
	if o.IDField == "" {
		o.IDField = "id"
	}
	if len(o.TextFields) == 0 {
		o.TextFields = []string{"text"}
	}
	return o
}

// LoadJSONFile opens path and calls LoadJSON.
func LoadJSONFile(path string, opts JSONOptions) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrMissingInput, "opening corpus %s: %v", path, err)
	}
	defer f.Close()
	docs, err := LoadJSON(f, opts)
	if err != nil {
		return nil, fmt.Errorf("loading corpus %s: %w", path, err)
	}
	return docs, nil
}

// LoadJSON reads documents from a JSON array or from JSON lines. Array
// elements are either objects or [text, {context}] pairs as written by the
// subreddit collector, in which case the id comes from the context object.
func LoadJSON(r io.Reader, opts JSONOptions) ([]Document, error) {
	opts = opts.withDefaults()
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&raws); err != nil {
			return nil, fmt.Errorf("decoding document array: %w", err)
		}
	} else {
		dec := json.NewDecoder(br)
		for {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err == io.EOF {
				break
			} else if err != nil {
				return nil, fmt.Errorf("decoding document %d: %w", len(raws), err)
			}
			raws = append(raws, raw)
		}
	}

	docs := make([]Document, 0, len(raws))
	for i, raw := range raws {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, recordDocuments(rec, opts, i)...)
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != ' ' && b != '\n' && b != '\r' && b != '\t' {
			return b, br.UnreadByte()
		}
	}
}

// decodeRecord accepts an object or a [text, object] pair and returns a flat
// field map.
func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("expected [text, context] pair, got %d elements", len(pair))
		}
		var text string
		if err := json.Unmarshal(pair[0], &text); err != nil {
			return nil, fmt.Errorf("pair text: %w", err)
		}
		rec := map[string]any{}
		if err := json.Unmarshal(pair[1], &rec); err != nil {
			return nil, fmt.Errorf("pair context: %w", err)
		}
		rec["text"] = text
		return rec, nil
	}
	rec := map[string]any{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func recordDocuments(rec map[string]any, opts JSONOptions, index int) []Document {
	id := stringify(rec[opts.IDField])
	if id == "" {
		if name := stringify(rec["name"]); name != "" {
			id = name
		} else {
			id = strconv.Itoa(index)
		}
	}
	meta := make(map[string]any)
	text := make(map[string]struct{}, len(opts.TextFields))
	for _, f := range opts.TextFields {
		text[f] = struct{}{}
	}
	for k, v := range rec {
		if _, isText := text[k]; !isText && k != opts.IDField {
			meta[k] = v
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	if len(opts.TextFields) == 1 {
		return []Document{{ID: id, Text: stringify(rec[opts.TextFields[0]]), Metadata: meta}}
	}
	var docs []Document
	for _, f := range opts.TextFields {
		if t := stringify(rec[f]); t != "" {
			docs = append(docs, Document{ID: id, Text: t, Column: f, Metadata: meta})
		}
	}
	return docs
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
