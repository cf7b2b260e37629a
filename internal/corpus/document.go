// Package corpus loads the documents a run scans and validates them before
// they reach the matcher.
package corpus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// DefaultMaxTextSize bounds a single document's text.
const DefaultMaxTextSize = 10 << 20

// Document is one unit of text to scan. Column names the source field when
// one input record yields several documents.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Column   string         `json:"column,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Skip reasons reported by Validate.
const (
	ReasonEmpty    = "empty"
	ReasonEncoding = "encoding"
	ReasonTooLarge = "too_large"
	ReasonNoID     = "no_id"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Reason string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	if e.Reason == ReasonEmpty {
		return apperrors.ErrEmptyDocument
	}
	return apperrors.ErrInvalidInput
}

// Validate checks that doc has an id and non-blank, valid UTF-8 text of at
// most maxTextSize bytes. A maxTextSize of zero disables the size check.
func Validate(doc Document, maxTextSize int) error {
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return &ValidationError{Reason: ReasonNoID, Fields: map[string]string{"id": "id is required"}}
	case !utf8.ValidString(doc.Text):
		return &ValidationError{Reason: ReasonEncoding, Fields: map[string]string{"text": "text is not valid UTF-8"}}
	case strings.TrimSpace(doc.Text) == "":
		return &ValidationError{Reason: ReasonEmpty, Fields: map[string]string{"text": "text is required and must not be empty"}}
	case maxTextSize > 0 && len(doc.Text) > maxTextSize:
		return &ValidationError{Reason: ReasonTooLarge, Fields: map[string]string{
			"text": fmt.Sprintf("text must be at most %d bytes", maxTextSize),
		}}
	}
	return nil
}

// SkipReason extracts the reason from a Validate error, or "invalid" for
// anything else.
func SkipReason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return "invalid"
}
