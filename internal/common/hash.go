package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests input with SHA-256 and returns lowercase hex. Refresh
// tokens are stored as this digest so a database leak does not leak sessions.
func Sha256Hex(input string) string {
	digest := sha256.Sum256([]byte(input))
	return hex.EncodeToString(digest[:])
}
