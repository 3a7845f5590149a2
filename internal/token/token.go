// Package token provides tracking identifier generation.
package token

import (
	"crypto/rand"
	"regexp"
)

// Length is the fixed tracking identifier length. The beacon path matcher
// and registration validation both depend on it.
const Length = 10

var charset = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

var validPattern = regexp.MustCompile(`^[a-zA-Z0-9]{10}$`)

// Generate returns a new random tracking identifier.
func Generate() (string, error) {
	b := make([]byte, Length)
	randomBytes := make([]byte, Length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = charset[int(randomBytes[i])%len(charset)]
	}
	return string(b), nil
}

// Valid reports whether s is a well-formed tracking identifier.
func Valid(s string) bool {
	return validPattern.MatchString(s)
}
