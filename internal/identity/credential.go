package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// credentialLength is the length of generated one-time passwords.
const credentialLength = 12

// NewCredential generates a one-time password from cryptographically random
// bytes, base64-encoded and truncated to a fixed length.
func NewCredential() (string, error) {
	buf := make([]byte, credentialLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf)[:credentialLength], nil
}

// Username derives a login name from the first three letters of each name,
// lowercased. Shorter names contribute what they have.
func Username(firstName, lastName string) string {
	return prefix(firstName) + prefix(lastName)
}

func prefix(s string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(s)))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}
