package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const ownerPrefixLen = 24

// OwnerPrefix derives the storage directory for an uploader. Account ids never
// appear in object keys directly.
func OwnerPrefix(ownerID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ownerID)))
	return hex.EncodeToString(sum[:])[:ownerPrefixLen]
}
