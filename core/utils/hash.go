package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func Sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint is a short, log-safe identifier for a secret such as a bearer token.
func Fingerprint(secret string) string {
	if secret == "" {
		return "-"
	}
	return Sha256Hex([]byte(secret))[:12]
}
