package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Key builds a cache key from a function identity and its arguments.
// Arguments are trimmed and lower-cased so equivalent requests share an entry.
func Key(fn string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, fn)
	for _, a := range args {
		parts = append(parts, Canonical(a))
	}
	return makeKey(parts...)
}

// Canonical normalizes a single key argument.
func Canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func makeKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	h := sha1.Sum([]byte(joined))
	return hex.EncodeToString(h[:])
}
