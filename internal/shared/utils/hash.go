package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator cannot appear in a function name, so joined fields never collide
const fieldSeparator = "\x00"

// Hash returns the hex SHA-256 digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex SHA-256 digest of s
func HashString(s string) string {
	return Hash([]byte(s))
}

// HashFields hashes fields in order
func HashFields(fields ...string) string {
	return HashString(strings.Join(fields, fieldSeparator))
}

// ShortHash truncates a digest to 16 characters for display and ETags
func ShortHash(full string) string {
	if len(full) < 16 {
		return full
	}
	return full[:16]
}
