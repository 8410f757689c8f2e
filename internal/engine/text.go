package engine

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText NFC-normalizes s and enforces a byte limit on the result.
// Invalid UTF-8 is rejected.
func NormalizeText(op, field, s string, max int) (string, error) {
	if !utf8.ValidString(s) {
		return "", NewInvalidInputError(op, "%s is not valid UTF-8", field)
	}
	s = norm.NFC.String(s)
	if max > 0 && len(s) > max {
		return "", NewInvalidInputError(op, "%s is %d bytes, limit is %d", field, len(s), max)
	}
	return s, nil
}
