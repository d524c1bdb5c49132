package helpers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// ComputeVerifier derives the stored password verifier: lowercase hex SHA-256
// over the UTF-8 bytes of the plaintext. Deterministic and one-way; length
// policy is enforced by the orchestration layer, not here.
func ComputeVerifier(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword recomputes the verifier for plain and compares it against
// the stored one in constant time.
func VerifyPassword(plain, verifier string) bool {
	computed := ComputeVerifier(plain)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(verifier)) == 1
}
