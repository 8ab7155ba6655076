package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey builds a deterministic key "<scope>:<digest>" from parts. The
// scope stays readable so keys of one kind can be scanned together.
func GenerateKey(scope string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))

	return scope + ":" + hex.EncodeToString(h.Sum(nil))
}
