package migration

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ComputeChecksum hashes the given payloads into a stable 256-bit hex digest.
// Line endings are normalized and surrounding whitespace trimmed so the same
// content checked out on different platforms hashes identically.
func ComputeChecksum(payloads ...string) string {
	hash, _ := blake2b.New256(nil)
	for _, payload := range payloads {
		payload = strings.ReplaceAll(payload, "\r\n", "\n")
		payload = strings.TrimSpace(payload)
		hash.Write([]byte(payload))
	}
	return hex.EncodeToString(hash.Sum(nil))
}
