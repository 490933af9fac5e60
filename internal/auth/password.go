// Package auth implements the stored password hash contract: a 20-character
// salt prefix followed by the base64 SHA-256 digest of password+salt.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const saltLen = 20

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashPassword produces a salted hash suitable for storage.
func HashPassword(password string) string {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		panic("auth: rand.Read: " + err.Error())
	}
	for i := range salt {
		salt[i] = saltAlphabet[int(salt[i])%len(saltAlphabet)]
	}
	return string(salt) + digest(password, string(salt))
}

// CheckPassword reports whether password matches the stored salted hash.
// Malformed stored values simply fail the check.
func CheckPassword(password, saltedHash string) bool {
	if len(saltedHash) <= saltLen {
		return false
	}
	salt := saltedHash[:saltLen]
	want := saltedHash[saltLen:]
	got := digest(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func digest(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}
