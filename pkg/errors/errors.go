// Package errors classifies mapper failures. The same value tells the HTTP
// API which status to answer with and the batch CLIs which exit code to use.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Wrap them with New or Newf to attach a caller-facing message.
var (
	ErrInvalidID     = errors.New("invalid disease id")
	ErrNotFound      = errors.New("not found")
	ErrMissingInput  = errors.New("missing required input")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidRecord = errors.New("invalid catalog record")
	ErrEmptyDocument = errors.New("empty document")
	ErrTimeout       = errors.New("operation timed out")
)

// Exit codes used by the batch commands.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

type class struct {
	kind   error
	status int
	exit   int
}

var classes = []class{
	{ErrInvalidID, http.StatusBadRequest, ExitUsage},
	{ErrNotFound, http.StatusNotFound, ExitFailure},
	{ErrMissingInput, http.StatusBadRequest, ExitUsage},
	{ErrInvalidInput, http.StatusBadRequest, ExitUsage},
	{ErrInvalidRecord, http.StatusBadRequest, ExitUsage},
	{ErrEmptyDocument, http.StatusBadRequest, ExitUsage},
	{ErrTimeout, http.StatusServiceUnavailable, ExitFailure},
}

// Error is a classified failure with a message safe to show to callers.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func classify(err error) (class, bool) {
	for _, c := range classes {
		if errors.Is(err, c.kind) {
			return c, true
		}
	}
	return class{}, false
}

// HTTPStatus maps err to a response code. Unclassified errors are 500.
func HTTPStatus(err error) int {
	if c, ok := classify(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// ExitCode is ExitUsage for bad input and ExitFailure for anything else.
func ExitCode(err error) int {
	if c, ok := classify(err); ok {
		return c.exit
	}
	return ExitFailure
}

// Message returns the caller-facing text of err: the attached message when
// err carries one, otherwise the full error string.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
