package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const confirmTokenBytes = 24

// GenerateConfirmToken returns a random hex key for email confirmation links.
func GenerateConfirmToken() (string, error) {
	buf := make([]byte, confirmTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate confirm token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
