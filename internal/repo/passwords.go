package repo

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Salted SHA-256 password storage for the stub backend, stored as
// "salt$digest". Dev-only accounts; the real backend hashes with bcrypt.

func HashPassword(password string) string {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return hex.EncodeToString(salt) + "$" + digest(hex.EncodeToString(salt), password)
}

func VerifyPassword(stored, password string) bool {
	salt, want, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	got := digest(salt, password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func digest(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}
