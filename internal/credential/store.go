// Package credential looks up the API key used for synthesis calls.
//
// The key lives in the configuration (file or READALOUD_API_KEY) and, as a
// fallback, in a small YAML file in the user data directory managed by
// "readaloud auth".
package credential

import (
	"context"
	"errors"
	"strings"
)

// APIKey is the key under which the synthesis API key is stored.
const APIKey = "api_key"

// maxMaskLength caps the length of a masked key.
const maxMaskLength = 20

// ErrNotFound is returned by a Store that does not hold the requested key.
var ErrNotFound = errors.New("credential not found")

// Store is a read-only credential source.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Mask renders a stored key for display without revealing it.
func Mask(key string) string {
	n := len(key)
	if n > maxMaskLength {
		n = maxMaskLength
	}
	return strings.Repeat("*", n)
}
