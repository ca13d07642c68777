// Package fingerprint computes the content identity of a submitted image.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rxledger/rxledger/internal/errors"
)

// Length is the number of hex characters in a Fingerprint.
const Length = sha256.Size * 2

const shortLength = 12

// Fingerprint is the lower-case hex SHA-256 of an image's raw bytes.
type Fingerprint string

// Of returns the fingerprint of b. Empty input is valid.
func Of(b []byte) Fingerprint {
	sum := sha256.Sum256(b)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Parse validates s as a fingerprint. Only lower-case hex is accepted so that
// two spellings of the same digest never become two cache keys.
func Parse(s string) (Fingerprint, error) {
	if len(s) != Length {
		return "", errors.Newf("invalid fingerprint: want %d hex characters, got %d", Length, len(s)).
			Component("fingerprint").
			Category(errors.CategoryValidation).
			Build()
	}
	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", errors.New(fmt.Errorf("invalid fingerprint: character %q at %d is not lower-case hex", c, i)).
				Component("fingerprint").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return Fingerprint(s), nil
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string { return string(f) }

// Short returns a prefix for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= shortLength {
		return string(f)
	}
	return string(f[:shortLength])
}
