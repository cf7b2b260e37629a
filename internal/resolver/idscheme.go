package resolver

import (
	"fmt"
	"strings"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
)

// IDScheme describes canonical ids: a prefix, a colon and a fixed number of
// zero-padded digits ("GARD:0006233").
type IDScheme struct {
	Prefix string
	Width  int
}

func DefaultIDScheme() IDScheme {
	return IDScheme{Prefix: "GARD", Width: 7}
}

// Len is the length of a full canonical id.
func (s IDScheme) Len() int {
	return len(s.Prefix) + 1 + s.Width
}

// Format zero-pads n into a canonical id.
func (s IDScheme) Format(n int) string {
	return fmt.Sprintf("%s:%0*d", s.Prefix, s.Width, n)
}

// Parse recognizes a full id in any letter case or a bare number of at most
// Width digits. ok is false when term does not look like an id at all. A
// number wider than the scheme is an ErrInvalidID.
func (s IDScheme) Parse(term string) (id string, ok bool, err error) {
	t := strings.TrimSpace(term)
	head := s.Prefix + ":"
	if len(t) == s.Len() && strings.EqualFold(t[:len(head)], head) && isDigits(t[len(head):]) {
		return head + t[len(head):], true, nil
	}
	if !isDigits(t) {
		return "", false, nil
	}
	if len(t) > s.Width {
		return "", false, apperrors.Newf(apperrors.ErrInvalidID,
			"%q has more than %d digits", t, s.Width)
	}
	return head + strings.Repeat("0", s.Width-len(t)) + t, true, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
