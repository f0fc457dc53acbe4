package fingerprint

import (
	"errors"
	"fmt"
)

// ErrMismatch reports that the live schema changed after the plan was made.
var ErrMismatch = errors.New("schema fingerprint mismatch")

// Compare compares two schema fingerprints and returns an error if they don't match
func Compare(expected, actual *SchemaFingerprint) error {
	if expected.Hash == actual.Hash {
		return nil
	}
	return fmt.Errorf("%w - expected: %s, actual: %s", ErrMismatch, preview(expected.Hash), preview(actual.Hash))
}

func preview(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
