// Package idgen generates request identifiers.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// MaxRequestIDLength bounds caller-supplied request IDs.
const MaxRequestIDLength = 128

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// RequestID returns incoming when it is a usable request ID, otherwise a
// fresh one. Usable means non-empty, at most MaxRequestIDLength bytes, and
// free of control characters.
func RequestID(incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" || len(incoming) > MaxRequestIDLength {
		return New()
	}
	for _, r := range incoming {
		if r < 0x20 || r == 0x7f {
			return New()
		}
	}
	return incoming
}
